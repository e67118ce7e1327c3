package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, the environment and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// envBindings maps setting keys to the environment variables that can supply them.
// When several names are listed the first one that is set wins.
var envBindings = map[string][]string{
	"target":               {"TARGET_URL"},
	"duration":             {"DURATION"},
	"rate":                 {"RATE"},
	"connections":          {"CONNECTIONS"},
	"max_queued":           {"MAX_QUEUED"},
	"method":               {"HTTP_METHOD", "K6_HTTP_METHOD"},
	"body":                 {"REQUEST_BODY", "K6_REQUEST_BODY"},
	"body_file":            {"REQUEST_BODY_FILE"},
	"headers":              {"HTTP_HEADERS"},
	"debug":                {"DEBUG_ENABLED"},
	"timeout":              {"REQUEST_TIMEOUT"},
	"drain_timeout":        {"DRAIN_TIMEOUT"},
	"retries":              {"RETRIES"},
	"http2":                {"HTTP2"},
	"log_format":           {"LOG_FORMAT"},
	"log_successes":        {"LOG_SUCCESSES"},
	"output":               {"OUTPUT"},
	"summary_file":         {"SUMMARY_FILE"},
	"history_db":           {"HISTORY_DB"},
	"metrics_addr":         {"METRICS_ADDR"},
	"thresholds":           {"THRESHOLDS"},
	"tracing.endpoint":     {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"tracing.service_name": {"OTEL_SERVICE_NAME"},
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, the environment and an optional config file.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.LoadFlags(flagSet)
}

// LoadFlags builds a Config from a flag set that was already parsed, e.g. by cobra.
// Precedence from lowest to highest: defaults, config file, environment, flags.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	for key, names := range envBindings {
		if err := cfgViper.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	method, warn := ParseMethod(string(cfg.Method))
	cfg.Method = method
	if warn != nil {
		cfg.Warnings = append(cfg.Warnings, *warn)
	}
	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output))))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	cfg.Warnings = append(cfg.Warnings, cfg.highLoadWarnings()...)

	return &cfg, nil
}

// applyConfigSettings applies settings from a config file or the environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target", "target_url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			cfg.Method = Method(val)
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		if err := applyHeaderSetting(cfg, raw); err != nil {
			return fmt.Errorf("headers: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		cfg.Body = val
	}

	if raw, ok := lookupSetting(settings, "body_file", "bodyfile", "body-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("bodyFile: %w", err)
		}
		cfg.BodyFile = val
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "connections", "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("connections: %w", err)
		}
		cfg.Connections = val
	}

	if raw, ok := lookupSetting(settings, "max_queued", "maxqueued", "max-queued"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("maxQueued: %w", err)
		}
		cfg.MaxQueued = val
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "drain_timeout", "draintimeout", "drain-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("drainTimeout: %w", err)
		}
		cfg.DrainTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		cfg.Retries = val
	}

	boolSettings := []struct {
		name string
		keys []string
		dst  *bool
	}{
		{"http2", []string{"http2"}, &cfg.HTTP2},
		{"debug", []string{"debug"}, &cfg.Debug},
		{"logSuccesses", []string{"log_successes", "logsuccesses", "log-successes"}, &cfg.LogSuccesses},
	}
	for _, s := range boolSettings {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			*s.dst = val
		}
	}

	stringSettings := []struct {
		name string
		keys []string
		dst  *string
	}{
		{"logFormat", []string{"log_format", "logformat", "log-format"}, &cfg.LogFormat},
		{"summaryFile", []string{"summary_file", "summaryfile", "summary-file"}, &cfg.SummaryFile},
		{"historyDB", []string{"history_db", "historydb", "history-db"}, &cfg.HistoryDB},
		{"metricsAddr", []string{"metrics_addr", "metricsaddr", "metrics-addr"}, &cfg.MetricsAddr},
	}
	for _, s := range stringSettings {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			cfg.Output = OutputFormat(val)
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asThresholdList(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

// applyHeaderSetting accepts either a map (config file) or a pipe separated list (HTTP_HEADERS).
func applyHeaderSetting(cfg *Config, raw interface{}) error {
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if list, ok := raw.(string); ok {
		hdrs, warnings := ParseHeaderList(list)
		for k, v := range hdrs {
			cfg.Headers[k] = v
		}
		cfg.Warnings = append(cfg.Warnings, warnings...)
		return nil
	}
	hdrs, err := asStringMap(raw)
	if err != nil {
		return err
	}
	// Config file keys arrive lowercased, so restore the canonical form.
	for k, v := range hdrs {
		cfg.Headers[http.CanonicalHeaderKey(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = val
	}
	return nil
}
