package main

import (
	"context"
	"log/slog"
	"perfsnapshot-backend/internal/components/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	otel, err := telemetry.SetupFromEnv(ctx, "snapshot-server")
	if err != nil {
		slog.Warn("telemetry export disabled", "err", err)
		return
	}
	go func() {
		<-ctx.Done()
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	}()
	telemetry.InstrumentPerfStats(ctx)
}
