package main

import (
	"flag"
	"log/slog"
	"net/http"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/service"
	"perfsnapshot-backend/lib/restyutil"
	"perfsnapshot-backend/lib/serviceutil"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the config file.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	slog.Info("serving live performance", "upstream", cfg.UpstreamUrl, "ttl", cfg.CacheTtl.String())

	var dump restyutil.InstrumentOutput
	if *verbose {
		output, err := restyutil.NewFilesystemOutput(".dev/resty/dashboard")
		if err != nil {
			serviceutil.Fatal("init resty output", err)
		}
		dump = output
	}

	tel := telemetry.SlogAPI{}
	cache, err := InitSnapshotCache(cfg, tel, dump)
	if err != nil {
		serviceutil.Fatal("init snapshot cache", err)
	}

	mux := http.NewServeMux()
	service.NewLivePerformanceService(cache, service.WithCustomTelemetryAPI(tel)).Register(mux)

	serviceutil.StartHttpServer(ctx, cfg.Port, mux)
}
