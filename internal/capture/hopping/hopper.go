// Package hopping drives a monitor-mode radio across a channel plan derived
// from live configuration.
package hopping

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mardigiorgio/piguard/internal/telemetry"
)

const minDwell = 20 * time.Millisecond

// Hopper owns a background worker that periodically retunes iface to the
// next entry of its plan. The plan is shuffled once when adopted and only
// reshuffled when the underlying channel set changes.
type Hopper struct {
	Interface string
	switcher  ChannelSwitcher
	logger    *slog.Logger

	mu       sync.Mutex
	plan     []Channel
	planKey  string
	index    int
	dwell    time.Duration
	locked   bool
	lockedAt Channel

	state    atomicState
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	errCount int
}

// New builds a Hopper. A nil switcher defaults to controlling the radio
// through `iw`/`ip link`.
func New(iface string, switcher ChannelSwitcher, logger *slog.Logger) *Hopper {
	if switcher == nil {
		switcher = NewLinuxChannelSwitcher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hopper{
		Interface: iface,
		switcher:  switcher,
		logger:    logger,
		dwell:     100 * time.Millisecond,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Reconfigure adopts a new plan spec and dwell. If the derived channel set
// is unchanged from the current plan, the existing shuffled order and
// index are preserved; otherwise the new set is shuffled once.
func (h *Hopper) Reconfigure(spec PlanSpec, dwellMs int) {
	derived := DerivePlan(spec)
	key := setKey(derived)

	dwell := time.Duration(dwellMs) * time.Millisecond
	if dwell < minDwell {
		dwell = minDwell
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.dwell = dwell
	if key == h.planKey {
		return
	}

	h.plan = shuffle(derived)
	h.planKey = key
	h.index = 0
	h.logger.Info("channel plan reshuffled", "interface", h.Interface, "channels", len(h.plan))
}

// Lock pauses hopping until Unlock is called and records ch as the locked
// channel. It does not retune the radio; it stays on whatever channel it
// was last set to.
func (h *Hopper) Lock(ch Channel) {
	h.mu.Lock()
	h.locked = true
	h.lockedAt = ch
	h.mu.Unlock()
	h.state.Set(StateLocked)
}

// Unlock resumes normal hopping.
func (h *Hopper) Unlock() {
	h.mu.Lock()
	h.locked = false
	h.mu.Unlock()
	h.state.Set(StateHopping)
}

// State reports the hopper's current operational state.
func (h *Hopper) State() State { return h.state.Get() }

// Run drives the hop loop until stop is closed or the caller calls Stop.
// It never returns control on its own; call it from a goroutine.
func (h *Hopper) Run() {
	defer close(h.doneCh)
	h.state.Set(StateHopping)

	for {
		h.mu.Lock()
		dwell := h.dwell
		locked := h.locked
		h.mu.Unlock()

		if !locked {
			h.hopOnce()
		}

		select {
		case <-h.stopCh:
			h.state.Set(StateStopped)
			return
		case <-time.After(dwell):
		}
	}
}

// Stop signals the loop to exit and blocks until it has.
func (h *Hopper) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.doneCh
}

func (h *Hopper) hopOnce() {
	h.mu.Lock()
	if len(h.plan) == 0 {
		h.mu.Unlock()
		return
	}

	up, err := h.switcher.InterfaceUp(h.Interface)
	if err == nil && !up {
		h.mu.Unlock()
		select {
		case <-time.After(time.Second):
		case <-h.stopCh:
		}
		return
	}

	ch := h.plan[h.index]
	h.index = (h.index + 1) % len(h.plan)
	h.mu.Unlock()

	if err := h.switcher.SetChannel(h.Interface, ch); err != nil {
		h.errCount++
		if h.errCount == 1 || h.errCount%10 == 0 {
			h.logger.Warn("channel set failed", "interface", h.Interface, "band", ch.Band, "channel", ch.Num, "error", err, "consecutive_errors", h.errCount)
		}
		return
	}
	if h.errCount > 0 {
		h.logger.Info("channel hopper recovered", "interface", h.Interface, "errors", h.errCount)
		h.errCount = 0
	}
	telemetry.HopsTotal.WithLabelValues(h.Interface, ch.Band).Inc()
}
