package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ratefire",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	defaults := Defaults()

	// Request flags
	flags.String("target", defaults.TargetURL, "Target URL to load test (env TARGET_URL)")
	flags.StringP("method", "X", string(defaults.Method), "HTTP method: GET, POST, PUT, PATCH, DELETE, HEAD or OPTIONS (env HTTP_METHOD)")
	flags.StringArrayP("header", "H", nil, "Request header in \"Name: value\" form (repeatable)")
	flags.String("headers", "", "Pipe separated header list, e.g. \"Accept: */*|X-Id: 1\" (env HTTP_HEADERS)")
	flags.String("body", "", "Inline request body, sent for POST, PUT and PATCH (env REQUEST_BODY)")
	flags.String("body-file", "", "Path to file containing the request body")

	// Schedule flags
	flags.IntP("rate", "r", defaults.Rate, "Requests started per second (env RATE)")
	flags.DurationP("duration", "d", defaults.Duration, "How long to generate requests (env DURATION)")
	flags.IntP("connections", "c", defaults.Connections, "Max concurrent requests (env CONNECTIONS)")
	flags.Int("max-queued", 0, "Requests allowed to wait for a free connection before being dropped")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.Duration("drain-timeout", 0, "Max wait for outstanding requests after the run (0 = interval x connections)")
	flags.Int("retries", 0, "Retries per failed request, within the same slot")
	flags.Bool("http2", false, "Negotiate HTTP/2 over TLS")

	// Logging and output flags
	flags.Bool("debug", false, "Enable debug logging (env DEBUG_ENABLED)")
	flags.String("log-format", defaults.LogFormat, "Log format: text or json")
	flags.Bool("log-successes", defaults.LogSuccesses, "Log a line for every successful request")
	flags.StringP("output", "o", string(defaults.Output), "Report format: text, json or yaml")
	flags.String("summary-file", "", "Append a JSON summary line to this file")
	flags.String("history-db", "", "Record the run in this bbolt database")
	flags.String("metrics-addr", "", "Expose Prometheus metrics on this address during the run")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Threshold flags
	flags.StringArray("threshold", nil, "Performance thresholds (repeatable, e.g. 'http_req_duration:p95 < 500')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.String("tracing-protocol", defaults.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported on spans (env OTEL_SERVICE_NAME)")
	flags.Float64("tracing-sample-rate", defaults.Tracing.SampleRate, "Fraction of requests traced")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers into requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and the environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("method") {
		val, err := fs.GetString("method")
		if err != nil {
			return err
		}
		cfg.Method = Method(val)
	}
	if fs.Changed("body") {
		val, err := fs.GetString("body")
		if err != nil {
			return err
		}
		cfg.Body = val
		cfg.BodyFile = ""
	}
	if fs.Changed("body-file") {
		val, err := fs.GetString("body-file")
		if err != nil {
			return err
		}
		cfg.BodyFile = val
		cfg.Body = ""
	}

	ints := []struct {
		flag string
		dst  *int
	}{
		{"rate", &cfg.Rate},
		{"connections", &cfg.Connections},
		{"max-queued", &cfg.MaxQueued},
		{"retries", &cfg.Retries},
	}
	for _, f := range ints {
		if !fs.Changed(f.flag) {
			continue
		}
		val, err := fs.GetInt(f.flag)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	durations := []struct {
		flag string
		dst  *time.Duration
	}{
		{"duration", &cfg.Duration},
		{"timeout", &cfg.Timeout},
		{"drain-timeout", &cfg.DrainTimeout},
	}
	for _, f := range durations {
		if !fs.Changed(f.flag) {
			continue
		}
		val, err := fs.GetDuration(f.flag)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	bools := []struct {
		flag string
		dst  *bool
	}{
		{"http2", &cfg.HTTP2},
		{"debug", &cfg.Debug},
		{"log-successes", &cfg.LogSuccesses},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
	}
	for _, f := range bools {
		if !fs.Changed(f.flag) {
			continue
		}
		val, err := fs.GetBool(f.flag)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	strs := []struct {
		flag string
		dst  *string
	}{
		{"log-format", &cfg.LogFormat},
		{"summary-file", &cfg.SummaryFile},
		{"history-db", &cfg.HistoryDB},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
	}
	for _, f := range strs {
		if !fs.Changed(f.flag) {
			continue
		}
		val, err := fs.GetString(f.flag)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(val)
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("threshold") {
		vals, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = vals
	}

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if fs.Changed("headers") {
		val, err := fs.GetString("headers")
		if err != nil {
			return err
		}
		hdrs, warnings := ParseHeaderList(val)
		for k, v := range hdrs {
			cfg.Headers[k] = v
		}
		cfg.Warnings = append(cfg.Warnings, warnings...)
	}

	vals, err := fs.GetStringArray("header")
	if err != nil {
		return err
	}
	for _, entry := range vals {
		name, value, err := parseHeaderEntry(entry)
		if err != nil {
			return err
		}
		cfg.Headers[name] = value
	}

	return nil
}
