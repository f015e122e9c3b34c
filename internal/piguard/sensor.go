// Package piguard wires the capture pipeline, detectors, event store and
// config watcher into a single runnable sensor.
package piguard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mardigiorgio/piguard/internal/capture"
	"github.com/mardigiorgio/piguard/internal/detect"
	"github.com/mardigiorgio/piguard/internal/sensorconfig"
	"github.com/mardigiorgio/piguard/internal/store"
)

// Sensor bootstraps a single-interface capture pipeline and its detectors
// against one on-disk config file: construct once, run until cancelled.
type Sensor struct {
	Store    *store.Store
	Manager  *capture.Manager
	Detector *detect.Detector
	Watcher  *sensorconfig.Watcher

	logger *slog.Logger
}

// Options adjusts Sensor construction beyond the config file.
type Options struct {
	// DwellMsOverride, when positive, wins over capture.hop.dwell_ms from
	// the config file, including across hot reloads.
	DwellMsOverride int
}

// New loads cfgPath, opens the configured store and constructs a Manager
// (one Sniffer per configured interface) and a Detector, then registers an
// OnChange hook so every later config reload re-applies hop plan, watcher
// thresholds and detection thresholds atomically.
func New(cfgPath string, logger *slog.Logger) (*Sensor, error) {
	return NewWithOptions(cfgPath, logger, Options{})
}

// NewWithOptions is New with explicit Options.
func NewWithOptions(cfgPath string, logger *slog.Logger, opts Options) (*Sensor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := sensorconfig.NewWatcher(cfgPath, logger)
	if err != nil {
		return nil, fmt.Errorf("piguard: loading %s: %w", cfgPath, err)
	}
	cfg := watcher.Current()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("piguard: opening store: %w", err)
	}

	dwell := func(cfg *sensorconfig.Config) int {
		if opts.DwellMsOverride > 0 {
			return opts.DwellMsOverride
		}
		return cfg.DwellMs()
	}

	manager := capture.NewManager([]string{cfg.Capture.Iface}, st, logger)
	manager.Reconfigure(cfg.PlanSpec(), dwell(cfg))
	manager.SetWatcherConfig(cfg.WatcherConfig())

	detector := detect.New(st, logger)
	detector.SetDeauthConfig(cfg.DeauthConfig())
	detector.SetRogueConfig(cfg.RogueConfig())

	s := &Sensor{
		Store:    st,
		Manager:  manager,
		Detector: detector,
		Watcher:  watcher,
		logger:   logger,
	}

	watcher.OnChange(func(cfg *sensorconfig.Config) {
		manager.Reconfigure(cfg.PlanSpec(), dwell(cfg))
		manager.SetWatcherConfig(cfg.WatcherConfig())
		detector.SetDeauthConfig(cfg.DeauthConfig())
		detector.SetRogueConfig(cfg.RogueConfig())
		logger.Info("configuration reloaded")
	})

	return s, nil
}

// Run starts the config watcher, capture manager and detector and blocks
// until ctx is cancelled and every worker has returned. All workers honor
// the one shutdown signal.
func (s *Sensor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Watcher.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Detector.Run(ctx)
	}()

	var captureErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		captureErr = s.Manager.Start(ctx)
	}()

	wg.Wait()
	return captureErr
}

// Close releases the underlying store handle. Call after Run returns.
func (s *Sensor) Close() error {
	return s.Store.Close()
}
