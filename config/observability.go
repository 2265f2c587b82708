package config

import "strings"

// ObservabilityConfig groups configuration that controls metrics emission.
type ObservabilityConfig struct {
	Metrics    ObservabilityMetricsConfig
	Prometheus PrometheusConfig `envPrefix:"PROMETHEUS_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Prometheus.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"METRICS_PREFIX"         envDefault:"mmk_auth"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// PrometheusConfig exposes auth metrics on a scrape endpoint.
type PrometheusConfig struct {
	Enabled   bool   `env:"ENABLED"   envDefault:"false"`
	Addr      string `env:"ADDR"      envDefault:"127.0.0.1:9464"`
	Namespace string `env:"NAMESPACE" envDefault:"mmk"`
}

// Sanitize disables the endpoint when no listen address remains.
func (c *PrometheusConfig) Sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	c.Namespace = strings.TrimSpace(c.Namespace)
	if c.Addr == "" {
		c.Enabled = false
	}
}
