package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/aatumaykin/autodelete/internal/retention"
)

// envOverrides are the variables a container deployment sets instead of a file.
type envOverrides struct {
	Token            string `envconfig:"DISCORD_TOKEN"`
	ChannelRetention string `envconfig:"CHANNEL_RETENTION"`
	DeletePinned     string `envconfig:"DELETE_PINNED"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
}

// LoadEnvOptional loads variables from a .env file if it exists. Variables already
// present in the environment win.
func LoadEnvOptional(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides c with whatever the environment sets.
func applyEnv(c *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.Token != "" {
		c.Discord.Token = env.Token
	}

	if env.ChannelRetention != "" {
		channels, err := retention.ParseChannelRetention(env.ChannelRetention)
		if err != nil {
			return fmt.Errorf("CHANNEL_RETENTION: %w", err)
		}
		c.Retention.Channels = make(map[string]Duration, len(channels))
		for id, d := range channels {
			c.Retention.Channels[id] = Duration(d)
		}
	}

	if env.DeletePinned != "" {
		c.Retention.DeletePinned = env.DeletePinned == "true"
	}

	if env.LogLevel != "" {
		c.Logging.Level = strings.ToLower(env.LogLevel)
	}

	return nil
}
