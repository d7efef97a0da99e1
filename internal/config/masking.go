package config

import (
	"strings"
)

// maskSecret keeps the first and last 4 characters of secret.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	if len(secret) < 8 {
		return "***"
	}

	prefix := secret[:4]
	suffix := secret[len(secret)-4:]
	masked := strings.Repeat("*", len(secret)-8)

	return prefix + masked + suffix
}

// maskToken hides everything after the first segment of a bot token. The first
// segment only encodes the bot's user id and helps spotting the wrong bot.
func maskToken(token string) string {
	id, rest, ok := strings.Cut(token, ".")
	if !ok {
		return maskSecret(token)
	}
	return id + "." + strings.Repeat("*", len(rest))
}

// formatValidationError builds a ValidationError, masking secret in the message.
func formatValidationError(field, message string, secret string) error {
	errorMsg := field + ": " + message
	if secret != "" {
		errorMsg += " (value: " + maskToken(secret) + ")"
	}

	return &ValidationError{Field: field, Message: errorMsg}
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Redacted returns a copy of c safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Discord.Token = maskToken(c.Discord.Token)
	return &out
}
