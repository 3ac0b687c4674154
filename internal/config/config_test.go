package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/pulsewire/internal/config"
)

func TestLoadWithoutArgsRequestsHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--target", "checkout"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ReportInterval != 2*time.Second {
		t.Errorf("ReportInterval = %s, want 2s", cfg.ReportInterval)
	}
	if cfg.WindowSize != 100 {
		t.Errorf("WindowSize = %d, want 100", cfg.WindowSize)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %s, want 5s", cfg.RequestTimeout)
	}
	if cfg.Start {
		t.Error("Start = true, want false")
	}
	if cfg.UserAgent != config.DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, config.DefaultUserAgent)
	}
	if cfg.Producer.Type != config.ProducerSynthetic {
		t.Errorf("Producer.Type = %q, want synthetic", cfg.Producer.Type)
	}
	if cfg.Tracing.Enabled() {
		t.Error("tracing enabled without an endpoint")
	}
	if len(cfg.Headers) != 0 {
		t.Errorf("Headers len = %d, want 0", len(cfg.Headers))
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsewire.json")
	if err := os.WriteFile(path, []byte(`{
		"collector_endpoint": "http://collector.local/metrics",
		"target": "https://api.example.com",
		"reportInterval": "1s",
		"window_size": 50,
		"headers": {"x-env": "staging"},
		"producer": {"rate": 20, "concurrency": 2}
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--window-size", "10", "--header", "X-Run=7"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CollectorURL != "http://collector.local/metrics" {
		t.Errorf("CollectorURL = %q", cfg.CollectorURL)
	}
	if cfg.ReportInterval != time.Second {
		t.Errorf("ReportInterval = %v, want 1s", cfg.ReportInterval)
	}
	// Flags win over the file.
	if cfg.WindowSize != 10 {
		t.Errorf("WindowSize = %d, want 10", cfg.WindowSize)
	}
	if cfg.Headers["X-Env"] != "staging" || cfg.Headers["X-Run"] != "7" {
		t.Errorf("Headers = %v, want X-Env and X-Run merged", cfg.Headers)
	}
	if cfg.Producer.Rate != 20 || cfg.Producer.Concurrency != 2 {
		t.Errorf("Producer = %+v, want rate 20 concurrency 2", cfg.Producer)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsewire.yaml")
	if err := os.WriteFile(path, []byte(`
collector_endpoint: wss://collector.local/stream
target: orders
start: true
active_duration: 90s
log_format: console
producer:
  type: none
tracing:
  endpoint: localhost:4318
  protocol: HTTP
`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CollectorURL != "wss://collector.local/stream" {
		t.Errorf("CollectorURL = %q", cfg.CollectorURL)
	}
	if !cfg.Start {
		t.Error("Start = false, want true")
	}
	if cfg.ActiveDuration != 90*time.Second {
		t.Errorf("ActiveDuration = %v, want 90s", cfg.ActiveDuration)
	}
	if cfg.LogFormat != "console" {
		t.Errorf("LogFormat = %q, want console", cfg.LogFormat)
	}
	if cfg.Producer.Type != config.ProducerNone {
		t.Errorf("Producer.Type = %q, want none", cfg.Producer.Type)
	}
	if cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing.Protocol = %q, want http", cfg.Tracing.Protocol)
	}
	if !cfg.Tracing.ShouldPropagate() {
		t.Error("ShouldPropagate() = false, want true when tracing is enabled")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() config.Config {
	cfg := config.Defaults()
	cfg.CollectorURL = "http://localhost:8080/metrics"
	cfg.Target = "https://api.example.com"
	return cfg
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing collector", func(c *config.Config) { c.CollectorURL = "" }, "collector endpoint is required"},
		{"bad scheme", func(c *config.Config) { c.CollectorURL = "ftp://host/x" }, "scheme"},
		{"missing host", func(c *config.Config) { c.CollectorURL = "http:///metrics" }, "must include a host"},
		{"missing target", func(c *config.Config) { c.Target = " " }, "target is required"},
		{"zero interval", func(c *config.Config) { c.ReportInterval = 0 }, "report interval"},
		{"zero window", func(c *config.Config) { c.WindowSize = 0 }, "window size"},
		{"zero timeout", func(c *config.Config) { c.RequestTimeout = 0 }, "request timeout"},
		{"negative active duration", func(c *config.Config) { c.ActiveDuration = -time.Second }, "active duration"},
		{"dashboard with json", func(c *config.Config) { c.Dashboard = true; c.JSONOutput = true }, "mutually exclusive"},
		{"header injection", func(c *config.Config) { c.Headers["X-A"] = "x\r\ny" }, "invalid header value"},
		{"token injection", func(c *config.Config) { c.AuthToken = "a\nb" }, "invalid auth token"},
		{"log level", func(c *config.Config) { c.LogLevel = "trace" }, "log level"},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }, "log format"},
		{"producer type", func(c *config.Config) { c.Producer.Type = "replay" }, "producer type"},
		{"producer concurrency", func(c *config.Config) { c.Producer.Concurrency = 0 }, "concurrency"},
		{"failure ratio", func(c *config.Config) { c.Producer.FailureRatio = 1.5 }, "failure ratio"},
		{"latency bounds", func(c *config.Config) { c.Producer.LatencyMax = time.Millisecond }, "latency max"},
		{"arrival model", func(c *config.Config) { c.Producer.Arrival = "burst" }, "arrival model"},
		{"oauth client id", func(c *config.Config) { c.OAuth = config.OAuthConfig{TokenURL: "https://idp/token", ClientSecret: "s"} }, "client_id is required"},
		{"oauth token url", func(c *config.Config) { c.OAuth = config.OAuthConfig{TokenURL: "idp/token", ClientID: "id", ClientSecret: "s"} }, "token_url must be"},
		{"oauth with static token", func(c *config.Config) {
			c.AuthToken = "tok"
			c.OAuth = config.OAuthConfig{TokenURL: "https://idp/token", ClientID: "id", ClientSecret: "s"}
		}, "mutually exclusive"},
		{"tracing protocol", func(c *config.Config) { c.Tracing.Protocol = "thrift" }, "tracing protocol"},
		{"tracing sample rate", func(c *config.Config) { c.Tracing.SampleRate = 2 }, "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestConfigValidationCollectsAllIssues(t *testing.T) {
	cfg := config.Defaults()
	err := cfg.Validate()
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if got := len(verr.Issues()); got != 2 {
		t.Errorf("Issues() = %v, want collector and target issues", verr.Issues())
	}
}

func TestProducerNoneSkipsProducerValidation(t *testing.T) {
	cfg := validConfig()
	cfg.Producer.Type = config.ProducerNone
	cfg.Producer.Concurrency = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigYAMLOmitsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.AuthToken = "s3cret"
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	if strings.Contains(string(out), "s3cret") {
		t.Errorf("YAML() leaked auth token:\n%s", out)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if decoded["collector_endpoint"] != "http://localhost:8080/metrics" {
		t.Errorf("collector_endpoint = %v", decoded["collector_endpoint"])
	}
	if decoded["window_size"] != 100 {
		t.Errorf("window_size = %v, want 100", decoded["window_size"])
	}
}

func TestLoadOAuthSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulsewire.yaml")
	if err := os.WriteFile(path, []byte(`
collector_endpoint: https://collector.local/metrics
target: orders
oauth:
  token_url: https://idp.local/token
  client_id: pulsewire
  client_secret: from-file
  scopes: metrics.write, metrics.read
  refresh_before_expiry: 30s
`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--oauth-client-secret", "from-flag"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.OAuth.Enabled() {
		t.Fatal("OAuth.Enabled() = false")
	}
	if cfg.OAuth.ClientID != "pulsewire" || cfg.OAuth.ClientSecret != "from-flag" {
		t.Errorf("OAuth = %+v, want client id from file and secret from flag", cfg.OAuth)
	}
	if len(cfg.OAuth.Scopes) != 2 || cfg.OAuth.Scopes[1] != "metrics.read" {
		t.Errorf("Scopes = %v, want [metrics.write metrics.read]", cfg.OAuth.Scopes)
	}
	if cfg.OAuth.RefreshBeforeExpiry != 30*time.Second {
		t.Errorf("RefreshBeforeExpiry = %v, want 30s", cfg.OAuth.RefreshBeforeExpiry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	if strings.Contains(string(out), "from-flag") {
		t.Errorf("YAML() leaked client secret:\n%s", out)
	}
}
