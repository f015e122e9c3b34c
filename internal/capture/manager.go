package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mardigiorgio/piguard/internal/capture/hopping"
	"github.com/mardigiorgio/piguard/internal/store"
)

// SnifferStatus tracks the operational status of one managed interface.
type SnifferStatus struct {
	Interface string
	Status    string // "starting" | "running" | "failed" | "stopped"
	Error     error
}

// Manager runs one Sniffer per configured interface and aggregates their
// lifecycle, mirroring a fan-out/fan-in over a shared store.
type Manager struct {
	Interfaces []string
	Sniffers   []*Sniffer

	logger *slog.Logger

	mu       sync.RWMutex
	statuses map[string]*SnifferStatus
}

// NewManager constructs a Manager. Each interface gets its own Sniffer
// with an independent hopper and channel switcher.
func NewManager(interfaces []string, st *store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		Interfaces: interfaces,
		logger:     logger,
		statuses:   make(map[string]*SnifferStatus),
	}
	for _, iface := range interfaces {
		switcher := hopping.NewLinuxChannelSwitcher()
		sniff := NewSniffer(iface, st, switcher, logger)
		sniff.Hopper = hopping.New(iface, switcher, logger)
		m.Sniffers = append(m.Sniffers, sniff)
	}
	return m
}

// Start runs every sniffer and hopper until ctx is cancelled, blocking
// until all have stopped.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.Sniffers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, sniff := range m.Sniffers {
		wg.Add(1)
		go func(s *Sniffer) {
			defer wg.Done()

			status := &SnifferStatus{Interface: s.Interface, Status: "starting"}
			m.mu.Lock()
			m.statuses[s.Interface] = status
			m.mu.Unlock()

			if s.Hopper != nil {
				go s.Hopper.Run()
			}

			m.mu.Lock()
			status.Status = "running"
			m.mu.Unlock()

			err := s.Run(ctx)

			if s.Hopper != nil {
				s.Hopper.Stop()
			}

			m.mu.Lock()
			if err != nil {
				status.Status = "failed"
				status.Error = err
				m.logger.Error("sniffer stopped with error", "interface", s.Interface, "error", err)
			} else {
				status.Status = "stopped"
				m.logger.Info("sniffer stopped", "interface", s.Interface)
			}
			m.mu.Unlock()
		}(sniff)
	}

	wg.Wait()
	return nil
}

// Stop signals every managed sniffer to shut down and blocks until each
// sniffer's Run has returned; callers normally just cancel the context
// passed to Start, but Stop is provided for direct control.
func (m *Manager) Stop() {
	for _, s := range m.Sniffers {
		s.Stop()
	}
}

// Statuses returns a snapshot of every managed interface's status.
func (m *Manager) Statuses() []SnifferStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SnifferStatus, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, *st)
	}
	return out
}

// SetWatcherConfig applies the same anomaly-watcher configuration to
// every managed sniffer.
func (m *Manager) SetWatcherConfig(cfg WatcherConfig) {
	for _, s := range m.Sniffers {
		s.SetWatcherConfig(cfg)
	}
}

// Reconfigure applies a new channel plan to every managed sniffer's
// hopper.
func (m *Manager) Reconfigure(spec hopping.PlanSpec, dwellMs int) {
	for _, s := range m.Sniffers {
		if s.Hopper != nil {
			s.Hopper.Reconfigure(spec, dwellMs)
		}
	}
}

// Interface looks up a managed sniffer by interface name.
func (m *Manager) Interface(iface string) (*Sniffer, error) {
	for _, s := range m.Sniffers {
		if s.Interface == iface {
			return s, nil
		}
	}
	return nil, fmt.Errorf("capture: interface %s not managed", iface)
}
