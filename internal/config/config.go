package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultReportInterval = 2 * time.Second
	DefaultWindowSize     = 100
	DefaultRequestTimeout = 5 * time.Second
	DefaultUserAgent      = "pulsewire/1.0"
)

type Config struct {
	CollectorURL   string            `mapstructure:"collector_endpoint" yaml:"collector_endpoint"`
	Target         string            `mapstructure:"target" yaml:"target"`
	ReportInterval time.Duration     `mapstructure:"report_interval" yaml:"report_interval"`
	WindowSize     int               `mapstructure:"window_size" yaml:"window_size"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout" yaml:"request_timeout"`
	Start          bool              `mapstructure:"start" yaml:"start"`
	ActiveDuration time.Duration     `mapstructure:"active_duration" yaml:"active_duration,omitempty"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	AuthToken      string            `mapstructure:"auth_token" yaml:"-"`
	UserAgent      string            `mapstructure:"user_agent" yaml:"user_agent"`
	LogLevel       string            `mapstructure:"log_level" yaml:"log_level"`
	LogFormat      string            `mapstructure:"log_format" yaml:"log_format"`
	Dashboard      bool              `mapstructure:"dashboard" yaml:"dashboard"`
	Quiet          bool              `mapstructure:"quiet" yaml:"quiet"`
	JSONOutput     bool              `mapstructure:"json_output" yaml:"json_output"`
	LockFile       string            `mapstructure:"lock_file" yaml:"lock_file,omitempty"`
	Thresholds     []string          `mapstructure:"thresholds" yaml:"thresholds,omitempty"`
	ConfigFile     string            `mapstructure:"-" yaml:"-"`
	PrintConfig    bool              `mapstructure:"-" yaml:"-"`
	Producer       ProducerConfig    `mapstructure:"producer" yaml:"producer"`
	OAuth          OAuthConfig       `mapstructure:"oauth" yaml:"oauth,omitempty"`
	Tracing        TracingConfig     `mapstructure:"tracing" yaml:"tracing,omitempty"`
}

type ProducerType string

const (
	ProducerSynthetic ProducerType = "synthetic"
	ProducerNone      ProducerType = "none"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// ProducerConfig drives the built-in synthetic observation source.
type ProducerConfig struct {
	Type         ProducerType  `mapstructure:"type" yaml:"type"`
	Rate         int           `mapstructure:"rate" yaml:"rate"`                   // observations per second
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`     // simulated in-flight workers
	Arrival      ArrivalModel  `mapstructure:"arrival_model" yaml:"arrival_model"` // uniform or poisson
	FailureRatio float64       `mapstructure:"failure_ratio" yaml:"failure_ratio"`
	LatencyMin   time.Duration `mapstructure:"latency_min" yaml:"latency_min"`
	LatencyMax   time.Duration `mapstructure:"latency_max" yaml:"latency_max"`
	Seed         int64         `mapstructure:"seed" yaml:"seed,omitempty"`
}

// OAuthConfig enables the OAuth2 client credentials flow for collector
// requests. It replaces the static auth token.
type OAuthConfig struct {
	TokenURL            string        `mapstructure:"token_url" yaml:"token_url,omitempty"`
	ClientID            string        `mapstructure:"client_id" yaml:"client_id,omitempty"`
	ClientSecret        string        `mapstructure:"client_secret" yaml:"-"`
	Scopes              []string      `mapstructure:"scopes" yaml:"scopes,omitempty"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry" yaml:"refresh_before_expiry,omitempty"`
}

// Enabled reports whether tokens should be fetched from TokenURL.
func (o OAuthConfig) Enabled() bool {
	return strings.TrimSpace(o.TokenURL) != ""
}

// TracingConfig configures OpenTelemetry export of delivery cycle spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol,omitempty"` // grpc or http
	ServiceName string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate,omitempty"`
	Propagate   *bool   `mapstructure:"propagate" yaml:"propagate,omitempty"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers go out with each delivery.
// Defaults to true when tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Defaults returns a Config with every optional field at its default.
func Defaults() Config {
	return Config{
		ReportInterval: DefaultReportInterval,
		WindowSize:     DefaultWindowSize,
		RequestTimeout: DefaultRequestTimeout,
		Headers:        map[string]string{},
		UserAgent:      DefaultUserAgent,
		LogLevel:       "info",
		LogFormat:      "json",
		Producer: ProducerConfig{
			Type:         ProducerSynthetic,
			Rate:         50,
			Concurrency:  4,
			Arrival:      ArrivalModelUniform,
			FailureRatio: 0.1,
			LatencyMin:   10 * time.Millisecond,
			LatencyMax:   500 * time.Millisecond,
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// ValidationError reports every configuration problem found at startup.
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

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateCollector(c.CollectorURL)...)

	if strings.TrimSpace(c.Target) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	}
	if c.ReportInterval <= 0 {
		issues = append(issues, "report interval must be > 0")
	}
	if c.WindowSize <= 0 {
		issues = append(issues, "window size must be > 0")
	}
	if c.RequestTimeout <= 0 {
		issues = append(issues, "request timeout must be > 0")
	}
	if c.ActiveDuration < 0 {
		issues = append(issues, "active duration must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	for key, value := range c.Headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header key %q", key))
		}
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header value for %s", key))
		}
	}
	if strings.ContainsAny(c.AuthToken, "\r\n") {
		issues = append(issues, "invalid auth token")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		issues = append(issues, fmt.Sprintf("log format %q is not supported", c.LogFormat))
	}

	issues = append(issues, validateOAuth(c.OAuth, c.AuthToken)...)
	issues = append(issues, validateProducer(c.Producer)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateCollector(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"collector endpoint is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []string{fmt.Sprintf("collector endpoint is not a valid URL: %v", err)}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return []string{fmt.Sprintf("collector endpoint scheme %q is not supported (use http, https, ws or wss)", u.Scheme)}
	}
	if u.Host == "" {
		return []string{"collector endpoint must include a host"}
	}
	return nil
}

func validateOAuth(o OAuthConfig, staticToken string) []string {
	if !o.Enabled() {
		return nil
	}
	var issues []string
	if u, err := url.Parse(strings.TrimSpace(o.TokenURL)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, "oauth: token_url must be an http or https URL")
	}
	if strings.TrimSpace(o.ClientID) == "" {
		issues = append(issues, "oauth: client_id is required")
	}
	if strings.TrimSpace(o.ClientSecret) == "" {
		issues = append(issues, "oauth: client_secret is required")
	}
	if o.RefreshBeforeExpiry < 0 {
		issues = append(issues, "oauth: refresh_before_expiry must be >= 0")
	}
	if strings.TrimSpace(staticToken) != "" {
		issues = append(issues, "auth token and oauth are mutually exclusive")
	}
	return issues
}

func validateProducer(p ProducerConfig) []string {
	var issues []string
	switch p.Type {
	case ProducerNone:
		return nil
	case ProducerSynthetic, "":
	default:
		return []string{fmt.Sprintf("producer type %q is not supported", p.Type)}
	}
	if p.Rate < 0 {
		issues = append(issues, "producer rate must be >= 0")
	}
	if p.Concurrency < 1 {
		issues = append(issues, "producer concurrency must be >= 1")
	}
	switch p.Arrival {
	case ArrivalModelUniform, ArrivalModelPoisson, "":
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", p.Arrival))
	}
	if p.FailureRatio < 0 || p.FailureRatio > 1 {
		issues = append(issues, "producer failure ratio must be between 0 and 1")
	}
	if p.LatencyMin < 0 || p.LatencyMax < 0 {
		issues = append(issues, "producer latency bounds must be >= 0")
	}
	if p.LatencyMax < p.LatencyMin {
		issues = append(issues, "producer latency max must be >= latency min")
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported (use grpc or http)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample rate must be between 0 and 1")
	}
	return issues
}

// YAML renders the effective configuration. Secrets are omitted.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
