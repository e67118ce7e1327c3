package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/ratefire/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://localhost:80/" {
		t.Errorf("TargetURL = %q, want http://localhost:80/", cfg.TargetURL)
	}
	if cfg.Method != config.MethodGet {
		t.Errorf("Method = %q, want GET", cfg.Method)
	}
	if cfg.Rate != 100 {
		t.Errorf("Rate = %d, want 100", cfg.Rate)
	}
	if cfg.Duration != 10*time.Second {
		t.Errorf("Duration = %s, want 10s", cfg.Duration)
	}
	if cfg.Connections != 10 {
		t.Errorf("Connections = %d, want 10", cfg.Connections)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Timeout)
	}
	if cfg.Debug {
		t.Error("Debug = true, want false")
	}
	if !cfg.LogSuccesses {
		t.Error("LogSuccesses = false, want true")
	}
	if cfg.Output != config.OutputText {
		t.Errorf("Output = %q, want text", cfg.Output)
	}
	if len(cfg.Headers) != 0 {
		t.Errorf("Headers len = %d, want 0", len(cfg.Headers))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TARGET_URL", "https://api.example.com/orders")
	t.Setenv("DURATION", "30s")
	t.Setenv("RATE", "250")
	t.Setenv("CONNECTIONS", "20")
	t.Setenv("K6_HTTP_METHOD", "post")
	t.Setenv("K6_REQUEST_BODY", `{"id":1}`)
	t.Setenv("HTTP_HEADERS", "Content-Type: application/json|Authorization: Bearer abc")
	t.Setenv("DEBUG_ENABLED", "true")

	cfg, err := config.NewLoader().Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "https://api.example.com/orders" {
		t.Errorf("TargetURL = %q", cfg.TargetURL)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %s, want 30s", cfg.Duration)
	}
	if cfg.Rate != 250 || cfg.Connections != 20 {
		t.Errorf("Rate/Connections = %d/%d, want 250/20", cfg.Rate, cfg.Connections)
	}
	if cfg.Method != config.MethodPost {
		t.Errorf("Method = %q, want POST", cfg.Method)
	}
	if cfg.Body != `{"id":1}` {
		t.Errorf("Body = %q", cfg.Body)
	}
	if cfg.Headers["Content-Type"] != "application/json" || cfg.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("Headers = %v", cfg.Headers)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", cfg.Warnings)
	}
}

func TestLoadPrefersPrimaryEnvName(t *testing.T) {
	t.Setenv("HTTP_METHOD", "PUT")
	t.Setenv("K6_HTTP_METHOD", "PATCH")

	cfg, err := config.NewLoader().Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Method != config.MethodPut {
		t.Errorf("Method = %q, want PUT", cfg.Method)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratefire.yaml")
	if err := os.WriteFile(path, []byte(`
target: https://file.example.com
rate: 10
connections: 3
duration: 1m
log_format: json
headers:
  X-Source: file
`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("RATE", "20")

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--connections", "7"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "https://file.example.com" {
		t.Errorf("TargetURL = %q, want value from file", cfg.TargetURL)
	}
	if cfg.Rate != 20 {
		t.Errorf("Rate = %d, want env value 20", cfg.Rate)
	}
	if cfg.Connections != 7 {
		t.Errorf("Connections = %d, want flag value 7", cfg.Connections)
	}
	if cfg.Duration != time.Minute {
		t.Errorf("Duration = %s, want 1m", cfg.Duration)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.Headers["X-Source"] != "file" {
		t.Errorf("Headers = %v", cfg.Headers)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoadJSONConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"target": "https://api.example.com",
		"method": "PUT",
		"body": "{\"foo\":\"bar\"}",
		"rate": 40,
		"thresholds": ["http_req_failed:rate < 0.01"],
		"tracing": {"endpoint": "localhost:4318", "protocol": "http", "insecure": true}
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--method", "PATCH"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Method != config.MethodPatch {
		t.Errorf("Method = %q, want PATCH", cfg.Method)
	}
	if cfg.Body != `{"foo":"bar"}` {
		t.Errorf("Body = %q", cfg.Body)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "localhost:4318" || cfg.Tracing.Protocol != "http" || !cfg.Tracing.Insecure {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsNonNumericRate(t *testing.T) {
	t.Setenv("RATE", "NaN")
	if _, err := config.NewLoader().Load(nil); err == nil {
		t.Fatal("expected error for non-numeric RATE")
	}
}

func TestLoadUnsupportedMethodFallsBackToGet(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"-X", "TRACE", "--body", "ignored"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Method != config.MethodGet {
		t.Errorf("Method = %q, want GET", cfg.Method)
	}
	if len(cfg.Warnings) != 1 || cfg.Warnings[0].Kind != config.WarningUnsupportedMethod {
		t.Errorf("Warnings = %v, want one unsupported method warning", cfg.Warnings)
	}
}

func TestLoadHighLoadWarning(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--rate", "5000"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Warnings) != 1 || cfg.Warnings[0].Kind != config.WarningHighLoad {
		t.Errorf("Warnings = %v, want one high load warning", cfg.Warnings)
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestParseHeaderList(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		want         map[string]string
		wantWarnings int
	}{
		{name: "empty", input: "", want: map[string]string{}},
		{name: "two headers", input: "X-A: 1|X-B: 2", want: map[string]string{"X-A": "1", "X-B": "2"}},
		{name: "malformed entry", input: "bad-header", want: map[string]string{}, wantWarnings: 1},
		{name: "value with colons", input: "X-Url: http://a:8080/x", want: map[string]string{"X-Url": "http://a:8080/x"}},
		{name: "empty name", input: ": value|X-Ok: yes", want: map[string]string{"X-Ok": "yes"}, wantWarnings: 1},
		{name: "trailing separator", input: "X-A: 1|", want: map[string]string{"X-A": "1"}, wantWarnings: 1},
		{name: "empty value", input: "X-Empty:", want: map[string]string{"X-Empty": ""}},
		{name: "whitespace trimmed", input: "  X-A  :   spaced  ", want: map[string]string{"X-A": "spaced"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := config.ParseHeaderList(tt.input)
			if len(warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", warnings, tt.wantWarnings)
			}
			for _, w := range warnings {
				if w.Kind != config.WarningHeaderParse {
					t.Errorf("warning kind = %q", w.Kind)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		input       string
		want        config.Method
		wantWarning bool
		allowsBody  bool
	}{
		{input: "get", want: config.MethodGet},
		{input: "post", want: config.MethodPost, allowsBody: true},
		{input: "Put", want: config.MethodPut, allowsBody: true},
		{input: "PATCH", want: config.MethodPatch, allowsBody: true},
		{input: "delete", want: config.MethodDelete},
		{input: "head", want: config.MethodHead},
		{input: "options", want: config.MethodOptions},
		{input: "", want: config.MethodGet},
		{input: "TRACE", want: config.MethodGet, wantWarning: true},
		{input: "fetch", want: config.MethodGet, wantWarning: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, warn := config.ParseMethod(tt.input)
			if got != tt.want {
				t.Errorf("ParseMethod(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if (warn != nil) != tt.wantWarning {
				t.Errorf("ParseMethod(%q) warning = %v, want %v", tt.input, warn, tt.wantWarning)
			}
			if got.AllowsBody() != tt.allowsBody {
				t.Errorf("%s.AllowsBody() = %v, want %v", got, got.AllowsBody(), tt.allowsBody)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "zero rate", mutate: func(c *config.Config) { c.Rate = 0 }, wantErr: "rate must be > 0"},
		{name: "negative rate", mutate: func(c *config.Config) { c.Rate = -5 }, wantErr: "rate must be > 0"},
		{name: "zero connections", mutate: func(c *config.Config) { c.Connections = 0 }, wantErr: "connections must be > 0"},
		{name: "zero duration", mutate: func(c *config.Config) { c.Duration = 0 }, wantErr: "duration must be > 0"},
		{name: "negative queue", mutate: func(c *config.Config) { c.MaxQueued = -1 }, wantErr: "max queued"},
		{name: "missing target", mutate: func(c *config.Config) { c.TargetURL = "" }, wantErr: "target is required"},
		{name: "relative target", mutate: func(c *config.Config) { c.TargetURL = "/path" }, wantErr: "absolute http(s) URL"},
		{name: "ftp target", mutate: func(c *config.Config) { c.TargetURL = "ftp://host/x" }, wantErr: "absolute http(s) URL"},
		{name: "body and file", mutate: func(c *config.Config) { c.Body = "x"; c.BodyFile = "y" }, wantErr: "mutually exclusive"},
		{name: "missing body file", mutate: func(c *config.Config) { c.BodyFile = "/does/not/exist" }, wantErr: "body file"},
		{name: "bad log format", mutate: func(c *config.Config) { c.LogFormat = "xml" }, wantErr: "log format"},
		{name: "bad output", mutate: func(c *config.Config) { c.Output = "csv" }, wantErr: "output must be"},
		{name: "bad tracing protocol", mutate: func(c *config.Config) { c.Tracing.Protocol = "thrift" }, wantErr: "tracing protocol"},
		{name: "bad sample rate", mutate: func(c *config.Config) { c.Tracing.SampleRate = 2 }, wantErr: "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var vErr config.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCollectsEveryIssue(t *testing.T) {
	cfg := config.Defaults()
	cfg.Rate = 0
	cfg.Connections = 0
	cfg.Duration = 0

	var vErr config.ValidationError
	if !errors.As(cfg.Validate(), &vErr) {
		t.Fatal("expected ValidationError")
	}
	if got := len(vErr.Issues()); got != 3 {
		t.Errorf("Issues() = %v, want 3 entries", vErr.Issues())
	}
}

func TestConfigFieldsOmitsSecrets(t *testing.T) {
	cfg := config.Defaults()
	cfg.Headers = map[string]string{"Authorization": "Bearer secret"}
	cfg.Body = "password=hunter2"

	fields := cfg.Fields()
	for k, v := range fields {
		if s, ok := v.(string); ok && (strings.Contains(s, "secret") || strings.Contains(s, "hunter2")) {
			t.Errorf("field %s leaks a secret: %q", k, s)
		}
	}
	if fields["has_body"] != true {
		t.Errorf("has_body = %v, want true", fields["has_body"])
	}
}
