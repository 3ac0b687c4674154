//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/report"
)

// watchToggle flips reporting on SIGUSR1 until ctx ends.
func watchToggle(ctx context.Context, sched *report.Scheduler, logger *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	toggleOn(ctx, sig, sched, logger)
}
