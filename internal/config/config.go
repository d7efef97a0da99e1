package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/retention"
	"github.com/aatumaykin/autodelete/internal/supervisor"
)

// Load reads the configuration at path, applies defaults, expands ${VAR}
// references and applies environment overrides. An empty path configures from
// the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := expandEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml", "":
		return toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q (expected .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []error{err}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fieldError(fe))
		}
	}

	if c.Discord.Token != "" {
		if err := discord.ValidateToken(c.Discord.Token); err != nil {
			errs = append(errs, formatValidationError("discord.token", err.Error(), c.Discord.Token))
		}
	}

	for id, d := range c.Retention.Channels {
		if !retention.ValidChannelID(id) {
			errs = append(errs, formatValidationError("retention.channels",
				fmt.Sprintf("invalid channel id %q (expected a 17-20 digit snowflake)", id), ""))
		}
		if d < 0 {
			errs = append(errs, formatValidationError("retention.channels."+id,
				fmt.Sprintf("negative retention %s", d), ""))
		}
	}

	if c.Sweep.MinCallInterval != nil && *c.Sweep.MinCallInterval < 0 {
		errs = append(errs, formatValidationError("sweep.min_call_interval", "must not be negative", ""))
	}

	if c.Sweep.Schedule != "" {
		if _, err := supervisor.ParseSchedule(c.Sweep.Schedule); err != nil {
			errs = append(errs, formatValidationError("sweep.schedule", err.Error(), ""))
		}
	}

	return errs
}

func fieldError(fe validator.FieldError) error {
	// Namespace is "Config.<section>.<field>"; drop the root type.
	_, field, _ := strings.Cut(fe.Namespace(), ".")

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "required_if":
		msg = "is required when " + strings.ReplaceAll(fe.Param(), " ", "=")
	case "oneof":
		msg = fmt.Sprintf("invalid value %v (expected one of: %s)", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		msg = fmt.Sprintf("must be >= %s (got %v)", fe.Param(), fe.Value())
	case "max":
		msg = fmt.Sprintf("must be <= %s (got %v)", fe.Param(), fe.Value())
	default:
		msg = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return formatValidationError(field, msg, "")
}

// Policy builds the retention policy described by the configuration.
func (c *Config) Policy() (*retention.Policy, error) {
	channels := make(map[string]time.Duration, len(c.Retention.Channels))
	for id, d := range c.Retention.Channels {
		channels[id] = d.Std()
	}
	return retention.NewPolicy(channels, c.Retention.DeletePinned)
}

// expandEnvVars resolves ${VAR} references in the fields that accept them.
func expandEnvVars(c *Config) error {
	if strings.HasPrefix(c.Discord.Token, "${") {
		c.Discord.Token = expandEnv(c.Discord.Token)
	}
	if strings.HasPrefix(c.Logging.Output, "${") {
		c.Logging.Output = expandEnv(c.Logging.Output)
	}
	return nil
}

// expandEnv resolves a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if key, defaultVal, ok := strings.Cut(content, ":"); ok {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}

	return os.Getenv(content)
}
