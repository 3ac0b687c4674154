//go:build windows

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/torosent/pulsewire/internal/report"
)

// watchToggle has no signal to listen for on this platform.
func watchToggle(ctx context.Context, _ *report.Scheduler, _ *zap.Logger) {
	<-ctx.Done()
}
