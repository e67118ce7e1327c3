package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"
)

// OutputFormat selects how the final report is printed.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Config is the immutable run configuration assembled at startup.
type Config struct {
	TargetURL    string            `mapstructure:"target"`
	Method       Method            `mapstructure:"method"`
	Headers      map[string]string `mapstructure:"headers"`
	Body         string            `mapstructure:"body"`
	BodyFile     string            `mapstructure:"body_file"`
	Rate         int               `mapstructure:"rate"`
	Duration     time.Duration     `mapstructure:"duration"`
	Connections  int               `mapstructure:"connections"`
	MaxQueued    int               `mapstructure:"max_queued"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	DrainTimeout time.Duration     `mapstructure:"drain_timeout"`
	Retries      int               `mapstructure:"retries"`
	HTTP2        bool              `mapstructure:"http2"`
	Debug        bool              `mapstructure:"debug"`
	LogFormat    string            `mapstructure:"log_format"`
	LogSuccesses bool              `mapstructure:"log_successes"`
	Output       OutputFormat      `mapstructure:"output"`
	SummaryFile  string            `mapstructure:"summary_file"`
	HistoryDB    string            `mapstructure:"history_db"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	ConfigFile   string            `mapstructure:"-"`

	// Warnings collected while loading; never fatal.
	Warnings []Warning `mapstructure:"-"`
}

// TracingConfig configures OpenTelemetry export of request spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether spans are exported or trace headers injected.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate
}

// ShouldPropagate reports whether W3C trace headers are added to outgoing requests.
func (t TracingConfig) ShouldPropagate() bool { return t.Propagate }

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		TargetURL:    "http://localhost:80/",
		Method:       MethodGet,
		Headers:      map[string]string{},
		Rate:         100,
		Duration:     10 * time.Second,
		Connections:  10,
		Timeout:      30 * time.Second,
		LogFormat:    "text",
		LogSuccesses: true,
		Output:       OutputText,
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var issues []string

	if target := strings.TrimSpace(c.TargetURL); target == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(target); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, fmt.Sprintf("target must be an absolute http(s) URL, got %q", target))
	}

	if c.Rate <= 0 {
		issues = append(issues, "rate must be > 0")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.Connections <= 0 {
		issues = append(issues, "connections must be > 0")
	}
	if c.MaxQueued < 0 {
		issues = append(issues, "max queued must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.DrainTimeout < 0 {
		issues = append(issues, "drain timeout must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if strings.TrimSpace(c.Body) != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and bodyFile are mutually exclusive")
	}
	if c.BodyFile != "" {
		if _, err := os.Stat(c.BodyFile); err != nil {
			issues = append(issues, fmt.Sprintf("body file: %v", err))
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log format must be text or json, got %q", c.LogFormat))
	}
	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be text, json or yaml, got %q", c.Output))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

// Fields returns the settings worth logging at startup. Header values and bodies are omitted.
func (c Config) Fields() map[string]any {
	names := make([]string, 0, len(c.Headers))
	for name := range c.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return map[string]any{
		"target":        c.TargetURL,
		"method":        c.Method.String(),
		"rate":          c.Rate,
		"duration":      c.Duration.String(),
		"connections":   c.Connections,
		"max_queued":    c.MaxQueued,
		"timeout":       c.Timeout.String(),
		"drain_timeout": c.DrainTimeout.String(),
		"retries":       c.Retries,
		"http2":         c.HTTP2,
		"headers":       names,
		"has_body":      c.Body != "" || c.BodyFile != "",
	}
}

// highLoadWarnings flags settings that can overwhelm an unprepared target.
func (c Config) highLoadWarnings() []Warning {
	var warnings []Warning
	if c.Rate > 1000 {
		warnings = append(warnings, Warning{
			Kind:    WarningHighLoad,
			Message: fmt.Sprintf("high rate configured (%d RPS), ensure you have authorization to test the target system", c.Rate),
		})
	}
	if c.Connections > 500 {
		warnings = append(warnings, Warning{
			Kind:    WarningHighLoad,
			Message: fmt.Sprintf("high connection count configured (%d), ensure you have authorization to test the target system", c.Connections),
		})
	}
	return warnings
}
