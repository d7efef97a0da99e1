// Package config provides configuration loading and validation for autodelete.
// It reads a TOML or YAML file, applies defaults, then lets the environment
// override the settings that deployments usually inject.
//
// Configuration structure:
//   - [discord]: bot token
//   - [retention]: per-channel retention and pinned-message handling
//   - [sweep]: paging, retries, call spacing, concurrency and schedule
//   - [logging]: level, format and output
//   - [metrics]: Prometheus endpoint
//
// Environment variables:
// The token can reference the environment using ${VAR} or ${VAR:default} syntax.
// DISCORD_TOKEN, CHANNEL_RETENTION, DELETE_PINNED and LOG_LEVEL override the file.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/autodelete/internal/retention"
)

// Config represents the main application configuration.
type Config struct {
	Discord   DiscordConfig   `toml:"discord" yaml:"discord"`
	Retention RetentionConfig `toml:"retention" yaml:"retention"`
	Sweep     SweepConfig     `toml:"sweep" yaml:"sweep"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// DiscordConfig holds the bot credential.
type DiscordConfig struct {
	Token string `toml:"token" yaml:"token" validate:"required"`
}

// RetentionConfig maps channel ids to how long their messages are kept.
type RetentionConfig struct {
	DeletePinned bool                `toml:"delete_pinned" yaml:"delete_pinned"`
	Channels     map[string]Duration `toml:"channels" yaml:"channels"`
}

// SweepConfig tunes a sweep.
type SweepConfig struct {
	PageSize        int       `toml:"page_size" yaml:"page_size" validate:"min=1,max=100"`
	MaxPages        int       `toml:"max_pages" yaml:"max_pages" validate:"min=1"`
	MaxRetries      int       `toml:"max_retries" yaml:"max_retries" validate:"min=1,max=20"`
	MinCallInterval *Duration `toml:"min_call_interval" yaml:"min_call_interval"` // unset means 1s; "0s" disables spacing
	Concurrency     int       `toml:"concurrency" yaml:"concurrency" validate:"min=1,max=16"`
	Schedule        string    `toml:"schedule" yaml:"schedule"` // cron expression; empty derives it from the shortest retention

	// SeekCutoff starts each walk at now-retention. When false the walk starts at
	// the newest message and covers at most page_size*max_pages messages per sweep,
	// so a busy channel may never reach its expired tail.
	SeekCutoff *bool `toml:"seek_cutoff" yaml:"seek_cutoff"`
}

// LoggingConfig controls log level, format and destination.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" yaml:"format" validate:"oneof=json text"`
	Output string `toml:"output" yaml:"output" validate:"required"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Listen    string `toml:"listen" yaml:"listen" validate:"required_if=Enabled true"`
	Namespace string `toml:"namespace" yaml:"namespace" validate:"required"`
}

// Duration is a time.Duration written as "7d", "36h" or "1w2d" in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := retention.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// CallInterval is the effective minimum spacing between Discord calls.
func (s SweepConfig) CallInterval() time.Duration {
	if s.MinCallInterval == nil {
		return DefaultMinCallInterval
	}
	return s.MinCallInterval.Std()
}

// SeekCutoffEnabled reports the effective seek_cutoff setting.
func (s SweepConfig) SeekCutoffEnabled() bool {
	return s.SeekCutoff == nil || *s.SeekCutoff
}
