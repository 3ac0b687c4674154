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

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Values are layered as defaults, then the config file, then flags.
func (Loader) Load(args []string) (*Config, error) {
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

	configPath := strings.TrimSpace(flagSet.Lookup("config").Value.String())
	if len(args) == 0 {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
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

	normalize(&cfg)
	return &cfg, nil
}

func normalize(cfg *Config) {
	cfg.CollectorURL = strings.TrimSpace(cfg.CollectorURL)
	cfg.Target = strings.TrimSpace(cfg.Target)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Producer.Type == "" {
		cfg.Producer.Type = ProducerSynthetic
	}
	if cfg.Producer.Arrival == "" {
		cfg.Producer.Arrival = ArrivalModelUniform
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "collector_endpoint", "collector", "collectorEndpoint", "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("collector_endpoint: %w", err)
		}
		cfg.CollectorURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "target", "target_url", "targetUrl"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.Target = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "report_interval", "reportInterval", "interval"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("report_interval: %w", err)
		}
		cfg.ReportInterval = val
	}

	if raw, ok := lookupSetting(settings, "window_size", "windowSize"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("window_size: %w", err)
		}
		cfg.WindowSize = val
	}

	if raw, ok := lookupSetting(settings, "request_timeout", "requestTimeout", "timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		cfg.RequestTimeout = val
	}

	if raw, ok := lookupSetting(settings, "start"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		cfg.Start = val
	}

	if raw, ok := lookupSetting(settings, "active_duration", "activeDuration"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("active_duration: %w", err)
		}
		cfg.ActiveDuration = val
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "auth_token", "authToken"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("auth_token: %w", err)
		}
		cfg.AuthToken = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "user_agent", "userAgent"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("user_agent: %w", err)
		}
		cfg.UserAgent = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "log_level", "logLevel"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = val
	}

	if raw, ok := lookupSetting(settings, "log_format", "logFormat"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		cfg.LogFormat = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "quiet"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("quiet: %w", err)
		}
		cfg.Quiet = val
	}

	if raw, ok := lookupSetting(settings, "json_output", "jsonOutput"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "lock_file", "lockFile"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("lock_file: %w", err)
		}
		cfg.LockFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "producer"); ok {
		if err := applyProducerSettings(&cfg.Producer, raw); err != nil {
			return fmt.Errorf("producer: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "oauth"); ok {
		if err := applyOAuthSettings(&cfg.OAuth, raw); err != nil {
			return fmt.Errorf("oauth: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyProducerSettings(p *ProducerConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("type: %w", err)
		}
		p.Type = ProducerType(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		p.Rate = val
	}
	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		p.Concurrency = val
	}
	if raw, ok := lookupSetting(settings, "arrival_model", "arrivalmodel", "arrival"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival_model: %w", err)
		}
		p.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "failure_ratio", "failureratio"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("failure_ratio: %w", err)
		}
		p.FailureRatio = val
	}
	if raw, ok := lookupSetting(settings, "latency_min", "latencymin"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("latency_min: %w", err)
		}
		p.LatencyMin = val
	}
	if raw, ok := lookupSetting(settings, "latency_max", "latencymax"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("latency_max: %w", err)
		}
		p.LatencyMax = val
	}
	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		p.Seed = int64(val)
	}
	return nil
}

func applyOAuthSettings(o *OAuthConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "token_url", "tokenurl"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("token_url: %w", err)
		}
		o.TokenURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "client_id", "clientid"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("client_id: %w", err)
		}
		o.ClientID = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "client_secret", "clientsecret"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("client_secret: %w", err)
		}
		o.ClientSecret = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "scopes", "scope"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("scopes: %w", err)
		}
		o.Scopes = val
	}
	if raw, ok := lookupSetting(settings, "refresh_before_expiry", "refreshbeforeexpiry"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("refresh_before_expiry: %w", err)
		}
		o.RefreshBeforeExpiry = val
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
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
		t.Protocol = val
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
