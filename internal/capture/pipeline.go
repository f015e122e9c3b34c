// Package capture opens monitor-mode radios, decodes management frames
// through internal/capture/decode, and batches the resulting events into
// the store. It also hosts the in-line ESSID-flip and PWR-variance
// anomaly watchers, which keep their own state independent of the
// internal/detect tick-driven detectors.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/mardigiorgio/piguard/internal/capture/decode"
	"github.com/mardigiorgio/piguard/internal/capture/hopping"
	"github.com/mardigiorgio/piguard/internal/store"
	"github.com/mardigiorgio/piguard/internal/telemetry"
)

const (
	flushBatchSize = 400
	flushInterval  = 800 * time.Millisecond
	minBackoff     = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
	downPollWait   = time.Second
)

// Sniffer owns one monitor-mode interface: it opens the capture source,
// decodes frames, batches events into the store and drives its own
// anomaly watchers. It optionally carries a channel hopper, which the
// Manager runs alongside it.
type Sniffer struct {
	Interface string
	Hopper    *hopping.Hopper

	store    *store.Store
	switcher hopping.ChannelSwitcher
	logger   *slog.Logger
	watchers *watchers
	open     func(iface string) (frameSource, error)

	mu       sync.Mutex
	batch    []store.Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSniffer builds a Sniffer for iface. A nil switcher defaults to the
// real `iw`/`ip link` driver.
func NewSniffer(iface string, st *store.Store, switcher hopping.ChannelSwitcher, logger *slog.Logger) *Sniffer {
	if switcher == nil {
		switcher = hopping.NewLinuxChannelSwitcher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sniffer{
		Interface: iface,
		store:     st,
		switcher:  switcher,
		logger:    logger,
		watchers:  newWatchers(st, logger),
		open:      openLive,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// SetWatcherConfig atomically updates the anomaly-watcher thresholds.
func (s *Sniffer) SetWatcherConfig(cfg WatcherConfig) { s.watchers.SetConfig(cfg) }

// Run drives the sniffer until ctx is cancelled or Stop is called. It
// never returns until shutdown; call from a goroutine.
func (s *Sniffer) Run(ctx context.Context) error {
	defer close(s.doneCh)
	backoff := minBackoff

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return nil
		case <-s.stopCh:
			s.flush()
			return nil
		default:
		}

		up, err := s.switcher.InterfaceUp(s.Interface)
		if err == nil && !up {
			if !s.sleep(ctx, downPollWait) {
				s.flush()
				return nil
			}
			continue
		}

		src, err := s.open(s.Interface)
		if err != nil {
			s.logger.Warn("capture source open failed, retrying with backoff", "interface", s.Interface, "error", err, "backoff", backoff)
			telemetry.CaptureErrorsTotal.WithLabelValues(s.Interface).Inc()
			if !s.sleep(ctx, backoff) {
				s.flush()
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		err = s.readLoop(ctx, src)
		src.Close()
		if err == nil {
			s.flush()
			return nil
		}

		s.logger.Warn("capture read loop ended with error, retrying with backoff", "interface", s.Interface, "error", err, "backoff", backoff)
		telemetry.CaptureErrorsTotal.WithLabelValues(s.Interface).Inc()
		if !s.sleep(ctx, backoff) {
			s.flush()
			return nil
		}
		backoff = nextBackoff(backoff)
	}
}

// Stop signals Run to exit and blocks until it has.
func (s *Sniffer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// sleep waits for d, or returns false early if ctx/stop fire first.
func (s *Sniffer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// readLoop reads frames from src until it errors, ctx is cancelled, or
// Stop is called. Timed flushes run on their own goroutine so the 800ms
// policy holds even while a read blocks for its full 5s timeout.
func (s *Sniffer) readLoop(ctx context.Context, src frameSource) error {
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				s.flush()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		default:
		}

		data, _, err := src.ReadPacketData()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return err
		}

		packet := gopacket.NewPacket(data, layers.LayerTypeRadioTap, gopacket.NoCopy)
		if packet.ErrorLayer() != nil {
			continue
		}
		ev, ok := decode.Frame(packet)
		if !ok {
			continue
		}
		ev.Ts = time.Now()

		telemetry.EventsCaptured.WithLabelValues(s.Interface, ev.Type).Inc()
		s.watchers.Observe(ev)
		s.appendBatch(ev)
	}
}

func (s *Sniffer) appendBatch(ev store.Event) {
	s.mu.Lock()
	s.batch = append(s.batch, ev)
	full := len(s.batch) >= flushBatchSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

// flush bulk-inserts the buffered batch, falling back to per-event inserts
// (logging and counting drops) if the bulk insert fails.
func (s *Sniffer) flush() {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if _, err := s.store.AppendEvents(batch); err != nil {
		s.logger.Warn("batch insert failed, retrying as individual inserts", "interface", s.Interface, "count", len(batch), "error", err)
		dropped := 0
		for i := range batch {
			if _, err := s.store.AppendEvents(batch[i : i+1]); err != nil {
				dropped++
				s.logger.Error("dropping event after individual insert failure", "interface", s.Interface, "type", batch[i].Type, "error", err)
			}
		}
		if dropped > 0 {
			telemetry.EventsDropped.WithLabelValues(s.Interface, "insert_failure").Add(float64(dropped))
		}
	}
	telemetry.BatchFlushSeconds.WithLabelValues(s.Interface).Observe(time.Since(start).Seconds())
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
