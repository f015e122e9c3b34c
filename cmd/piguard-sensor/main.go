package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mardigiorgio/piguard/internal/logging"
	"github.com/mardigiorgio/piguard/internal/piguard"
	"github.com/mardigiorgio/piguard/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "/etc/piguard/config.yaml", "path to the sensor's YAML configuration file")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	dwellMs := flag.Int("dwell-ms", 0, "override capture.hop.dwell_ms from the config file (0 uses the file value)")
	flag.Parse()

	logger := logging.New(*debug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	telemetry.InitMetrics()
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	sensor, err := piguard.NewWithOptions(*cfgPath, logger, piguard.Options{DwellMsOverride: *dwellMs})
	if err != nil {
		logger.Error("failed to initialize sensor", "config", *cfgPath, "error", err)
		os.Exit(1)
	}
	defer sensor.Close()

	logger.Info("piguard sensor starting", "config", *cfgPath, "interface", sensor.Watcher.Current().Capture.Iface)

	if err := sensor.Run(ctx); err != nil {
		logger.Error("sensor stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("piguard sensor stopped")
}
