package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/config"
	"github.com/torosent/pulsewire/internal/dashboard"
	"github.com/torosent/pulsewire/internal/httpclient"
	"github.com/torosent/pulsewire/internal/lockfile"
	"github.com/torosent/pulsewire/internal/logging"
	"github.com/torosent/pulsewire/internal/metrics"
	"github.com/torosent/pulsewire/internal/output"
	"github.com/torosent/pulsewire/internal/producer"
	"github.com/torosent/pulsewire/internal/report"
	"github.com/torosent/pulsewire/internal/threshold"
	"github.com/torosent/pulsewire/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// run loads configuration, wires the pipeline and blocks until ctx ends or
// the dashboard asks to quit.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	if cfg.PrintConfig {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}

	logger, err := logging.New(cfg.LogLevel, logging.Format(cfg.LogFormat))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Dashboard {
		// The dashboard owns the terminal.
		logger = logger.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))
	}

	if cfg.LockFile != "" {
		lock, err := lockfile.Acquire(cfg.LockFile)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	rec := metrics.NewRecorder(cfg.WindowSize)

	sink, err := report.NewSink(cfg, report.SinkOptions{
		Client:    httpclient.NewClient(cfg.RequestTimeout),
		Logger:    logger,
		Propagate: tp.ShouldPropagate(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	prod := newProducer(cfg, logger)

	sched := report.NewScheduler(rec, sink, report.Options{
		Interval: cfg.ReportInterval,
		Timeout:  cfg.RequestTimeout,
		Target:   cfg.Target,
		Gauges:   gaugesOf(prod),
		Logger:   logger,
		Tracer:   tp.Tracer(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sched.Run(ctx)
	}()

	if prod != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := prod.Run(ctx, rec); err != nil {
				logger.Error("producer stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		watchToggle(ctx, sched, logger)
	}()

	started := time.Now()
	if cfg.Start {
		sched.Start()
	}
	if cfg.ActiveDuration > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopAfter(ctx, sched, cfg.ActiveDuration)
		}()
	}

	if cfg.Dashboard {
		dash, err := dashboard.New(rec, gaugesOf(prod), sched, dashboardInfo(cfg), cancel)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		dash.Start()
		<-ctx.Done()
		dash.Stop()
	} else {
		var progress *output.ProgressReporter
		if !cfg.Quiet && !cfg.JSONOutput {
			progress = output.NewProgressReporter(rec, sched, progressInterval, stdout)
			progress.Start()
		}
		<-ctx.Done()
		if progress != nil {
			progress.Stop()
		}
	}

	// Run delivers the final stopped snapshot before returning.
	wg.Wait()

	elapsed := time.Since(started)
	final := rec.Snapshot(0, 0)
	stats := sched.Stats()
	summary := output.NewSummary(final, stats, cfg.Target, sched.RunID(), elapsed)
	summary.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(threshold.Input{
		Snapshot: final,
		Delivery: stats,
		Elapsed:  elapsed,
	})
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, summary); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, summary)
	}

	if err := deliveryOutcome(stats); err != nil {
		return err
	}
	if failed := threshold.Failed(summary.Thresholds); len(failed) > 0 {
		return fmt.Errorf("%d of %d thresholds failed", len(failed), len(summary.Thresholds))
	}
	return nil
}

// newProducer returns nil when observations come from elsewhere.
func newProducer(cfg *config.Config, logger *zap.Logger) producer.Producer {
	if cfg.Producer.Type == config.ProducerNone {
		return nil
	}
	opt := producer.OptionsFromConfig(cfg.Producer)
	opt.Logger = logger
	return producer.NewSynthetic(opt)
}

func gaugesOf(p producer.Producer) func() (float64, int) {
	if p == nil {
		return nil
	}
	return p.Gauges
}

// toggleOn flips reporting each time sig fires until ctx ends.
func toggleOn(ctx context.Context, sig <-chan os.Signal, sched *report.Scheduler, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			active := sched.Toggle()
			logger.Info("reporting toggled by signal", zap.Bool("active", active))
		}
	}
}

// stopAfter ends the active period once d has elapsed.
func stopAfter(ctx context.Context, sched *report.Scheduler, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
		sched.Stop()
	}
}

func dashboardInfo(cfg *config.Config) dashboard.Info {
	return dashboard.Info{
		Target:     cfg.Target,
		Collector:  cfg.CollectorURL,
		Interval:   cfg.ReportInterval,
		Producer:   describeProducer(cfg.Producer),
		ConfigFile: cfg.ConfigFile,
	}
}

func describeProducer(p config.ProducerConfig) string {
	if p.Type == config.ProducerNone {
		return ""
	}
	rate := "unlimited"
	if p.Rate > 0 {
		rate = fmt.Sprintf("%d/s", p.Rate)
	}
	return fmt.Sprintf("%s %s x%d %s", p.Type, rate, p.Concurrency, p.Arrival)
}

// deliveryOutcome fails the run when the collector never accepted a snapshot.
func deliveryOutcome(stats report.DeliveryStats) error {
	if stats.Attempts > 0 && stats.Delivered == 0 {
		return fmt.Errorf("no snapshot was delivered in %d attempts: %s", stats.Attempts, stats.LastError)
	}
	return nil
}
