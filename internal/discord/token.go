package discord

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/wasilibs/go-re2"
)

const botPrefix = "Bot "

// A bot token is three base64url segments: user id, timestamp, HMAC.
var tokenPattern = re2.MustCompile(`^[A-Za-z0-9_-]{16,}\.[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]{20,}$`)

// ValidateToken checks the shape of a bot token without calling the API.
func ValidateToken(token string) error {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), botPrefix))
	if token == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("%w: expected three dot-separated segments", ErrInvalidToken)
	}

	idPart, _, _ := strings.Cut(token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(idPart, "="))
	if err != nil {
		return fmt.Errorf("%w: first segment is not base64", ErrInvalidToken)
	}
	if _, err := strconv.ParseUint(string(raw), 10, 64); err != nil {
		return fmt.Errorf("%w: first segment does not encode a user id", ErrInvalidToken)
	}
	return nil
}

// BotAuthorization returns the Authorization header value for token.
func BotAuthorization(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, botPrefix) {
		return token
	}
	return botPrefix + token
}
