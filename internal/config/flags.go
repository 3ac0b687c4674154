package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pulsewire",
		Short:         "Aggregate runtime observations and push snapshots to a collector",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	d := Defaults()

	// Collector flags
	flags.String("collector", "", "Collector endpoint URL (http, https, ws or wss)")
	flags.String("target", "", "Identifier of the observed target, sent as target_url")
	flags.Duration("interval", d.ReportInterval, "Reporting interval (e.g. 2s, 500ms)")
	flags.Int("window-size", d.WindowSize, "Number of recent latency samples used for the average")
	flags.Duration("timeout", d.RequestTimeout, "Per-delivery timeout")
	flags.StringSlice("header", nil, "Additional collector request header in key=value form")
	flags.String("auth-token", "", "Bearer token sent to the collector")
	flags.String("user-agent", d.UserAgent, "User-Agent sent to the collector")
	flags.String("oauth-token-url", "", "OAuth2 token endpoint for collector credentials (client credentials flow)")
	flags.String("oauth-client-id", "", "OAuth2 client ID")
	flags.String("oauth-client-secret", "", "OAuth2 client secret")
	flags.StringSlice("oauth-scope", nil, "OAuth2 scope to request (repeatable)")

	// Lifecycle flags
	flags.Bool("start", false, "Activate reporting immediately")
	flags.Duration("active-duration", 0, "Stop reporting activity after this long (0 means never)")
	flags.String("lock-file", "", "Hold an exclusive lock on this file while running")
	flags.StringSlice("threshold", nil, "End-of-run assertion (repeatable, e.g. 'latency:p99 < 250')")

	// Output flags
	flags.String("log-level", d.LogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", d.LogFormat, "Log format: json or console")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("quiet", false, "Suppress the progress line")
	flags.Bool("json-output", false, "Emit the final summary as JSON")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.Bool("print-config", false, "Print the effective configuration as YAML and exit")

	// Producer flags
	flags.String("producer", string(d.Producer.Type), "Observation producer: synthetic or none")
	flags.Int("producer-rate", d.Producer.Rate, "Synthetic observations per second (0 means unlimited)")
	flags.Int("producer-concurrency", d.Producer.Concurrency, "Synthetic in-flight workers")
	flags.String("arrival-model", string(d.Producer.Arrival), "Arrival model for synthetic observations (uniform or poisson)")
	flags.Float64("failure-ratio", d.Producer.FailureRatio, "Fraction of synthetic observations that fail")
	flags.Duration("latency-min", d.Producer.LatencyMin, "Minimum synthetic latency")
	flags.Duration("latency-max", d.Producer.LatencyMax, "Maximum synthetic latency")
	flags.Int64("seed", 0, "Random seed for the synthetic producer (0 means time-based)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for delivery spans (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Span sample rate between 0 and 1")
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
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if err := overrideString(fs, "collector", &cfg.CollectorURL); err != nil {
		return err
	}
	if err := overrideString(fs, "target", &cfg.Target); err != nil {
		return err
	}
	if err := overrideDuration(fs, "interval", &cfg.ReportInterval); err != nil {
		return err
	}
	if fs.Changed("window-size") {
		val, err := fs.GetInt("window-size")
		if err != nil {
			return err
		}
		cfg.WindowSize = val
	}
	if err := overrideDuration(fs, "timeout", &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := overrideString(fs, "auth-token", &cfg.AuthToken); err != nil {
		return err
	}
	if err := overrideString(fs, "user-agent", &cfg.UserAgent); err != nil {
		return err
	}
	if err := overrideString(fs, "oauth-token-url", &cfg.OAuth.TokenURL); err != nil {
		return err
	}
	if err := overrideString(fs, "oauth-client-id", &cfg.OAuth.ClientID); err != nil {
		return err
	}
	if err := overrideString(fs, "oauth-client-secret", &cfg.OAuth.ClientSecret); err != nil {
		return err
	}
	if fs.Changed("oauth-scope") {
		val, err := fs.GetStringSlice("oauth-scope")
		if err != nil {
			return err
		}
		cfg.OAuth.Scopes = val
	}
	if err := overrideBool(fs, "start", &cfg.Start); err != nil {
		return err
	}
	if err := overrideDuration(fs, "active-duration", &cfg.ActiveDuration); err != nil {
		return err
	}
	if err := overrideString(fs, "lock-file", &cfg.LockFile); err != nil {
		return err
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if err := overrideString(fs, "log-level", &cfg.LogLevel); err != nil {
		return err
	}
	if err := overrideString(fs, "log-format", &cfg.LogFormat); err != nil {
		return err
	}
	if err := overrideBool(fs, "dashboard", &cfg.Dashboard); err != nil {
		return err
	}
	if err := overrideBool(fs, "quiet", &cfg.Quiet); err != nil {
		return err
	}
	if err := overrideBool(fs, "json-output", &cfg.JSONOutput); err != nil {
		return err
	}
	if err := overrideBool(fs, "print-config", &cfg.PrintConfig); err != nil {
		return err
	}

	if fs.Changed("producer") {
		val, err := fs.GetString("producer")
		if err != nil {
			return err
		}
		cfg.Producer.Type = ProducerType(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("producer-rate") {
		val, err := fs.GetInt("producer-rate")
		if err != nil {
			return err
		}
		cfg.Producer.Rate = val
	}
	if fs.Changed("producer-concurrency") {
		val, err := fs.GetInt("producer-concurrency")
		if err != nil {
			return err
		}
		cfg.Producer.Concurrency = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Producer.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("failure-ratio") {
		val, err := fs.GetFloat64("failure-ratio")
		if err != nil {
			return err
		}
		cfg.Producer.FailureRatio = val
	}
	if err := overrideDuration(fs, "latency-min", &cfg.Producer.LatencyMin); err != nil {
		return err
	}
	if err := overrideDuration(fs, "latency-max", &cfg.Producer.LatencyMax); err != nil {
		return err
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Producer.Seed = val
	}

	if err := overrideString(fs, "tracing-endpoint", &cfg.Tracing.Endpoint); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-protocol", &cfg.Tracing.Protocol); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-service-name", &cfg.Tracing.ServiceName); err != nil {
		return err
	}
	if err := overrideBool(fs, "tracing-insecure", &cfg.Tracing.Insecure); err != nil {
		return err
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				return fmt.Errorf("header key cannot be empty: %s", entry)
			}
			cfg.Headers[http.CanonicalHeaderKey(key)] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}

func overrideString(fs *pflag.FlagSet, name string, dst *string) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetString(name)
	if err != nil {
		return err
	}
	*dst = strings.TrimSpace(val)
	return nil
}

func overrideBool(fs *pflag.FlagSet, name string, dst *bool) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetBool(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideDuration(fs *pflag.FlagSet, name string, dst *time.Duration) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}
