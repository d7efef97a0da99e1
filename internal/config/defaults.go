package config

import (
	"strings"
	"time"
)

const (
	DefaultPageSize         = 100
	DefaultMaxPages         = 50
	DefaultMaxRetries       = 5
	DefaultMinCallInterval  = time.Second
	DefaultConcurrency      = 1
	DefaultMetricsListen    = ":9102"
	DefaultMetricsNamespace = "autodelete"
)

// applyDefaults fills in every setting left unset.
func applyDefaults(c *Config) {
	if c.Retention.Channels == nil {
		c.Retention.Channels = make(map[string]Duration)
	}

	if c.Sweep.PageSize == 0 {
		c.Sweep.PageSize = DefaultPageSize
	}
	if c.Sweep.MaxPages == 0 {
		c.Sweep.MaxPages = DefaultMaxPages
	}
	if c.Sweep.MaxRetries == 0 {
		c.Sweep.MaxRetries = DefaultMaxRetries
	}
	if c.Sweep.Concurrency == 0 {
		c.Sweep.Concurrency = DefaultConcurrency
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
}
