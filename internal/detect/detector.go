package detect

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mardigiorgio/piguard/internal/store"
	"github.com/mardigiorgio/piguard/internal/telemetry"
)

var tracer = otel.Tracer("piguard/detect")

// rsnBaseline is the first-observed {akms, ciphers} pair for an
// allowlisted BSSID, against which later beacons are compared.
type rsnBaseline struct {
	AKMs    string
	Ciphers string
}

// Detector runs the deauth-flood and rogue/RSN/PWR checks on a fixed
// tick. Its RSN baseline, RSSI deques, tracked-BSSID state and remembered
// event ids live entirely inside this struct; nothing is shared with the
// capture package's own in-line watchers.
type Detector struct {
	store  *store.Store
	logger *slog.Logger

	deauthCfg atomic.Pointer[DeauthConfig]
	rogueCfg  atomic.Pointer[RogueConfig]

	mu             sync.Mutex
	lastDeauthSig  string
	lastDeauthFire time.Time
	rsnBaselines   map[string]rsnBaseline
	rssiRing       map[string][]int
	lastPWRFire    map[string]time.Time

	seenEventIDs *boundedIDSet
}

// New builds a Detector with factory-default thresholds; call
// SetDeauthConfig / SetRogueConfig to apply a loaded configuration.
func New(st *store.Store, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		store:        st,
		logger:       logger,
		rsnBaselines: make(map[string]rsnBaseline),
		rssiRing:     make(map[string][]int),
		lastPWRFire:  make(map[string]time.Time),
		seenEventIDs: newBoundedIDSet(boundedEventIDCap),
	}
	deauth := DefaultDeauthConfig()
	rogue := DefaultRogueConfig()
	d.deauthCfg.Store(&deauth)
	d.rogueCfg.Store(&rogue)
	return d
}

// SetDeauthConfig atomically swaps the deauth thresholds; in-flight ticks
// keep using whatever they already loaded.
func (d *Detector) SetDeauthConfig(cfg DeauthConfig) { d.deauthCfg.Store(&cfg) }

// SetRogueConfig atomically swaps the rogue thresholds. When pwr_window
// shrinks, existing RSSI deques are trimmed to the new size from the
// front, preserving the most recent samples.
func (d *Detector) SetRogueConfig(cfg RogueConfig) {
	window := cfg.pwrWindow()
	d.mu.Lock()
	for bssid, ring := range d.rssiRing {
		if len(ring) > window {
			d.rssiRing[bssid] = append([]int(nil), ring[len(ring)-window:]...)
		}
	}
	d.mu.Unlock()
	d.rogueCfg.Store(&cfg)
}

// Run drives Tick on a fixed interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one pass of both detectors. Errors are logged, never
// returned: a failed tick must not take down the worker.
func (d *Detector) Tick(ctx context.Context) {
	tickID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "detect.tick", trace.WithAttributes(attribute.String("tick.id", tickID)))
	defer span.End()

	if err := d.deauthTick(ctx); err != nil {
		d.logger.Warn("deauth tick failed", "tick_id", tickID, "error", err)
	}
	if err := d.rogueTick(ctx); err != nil {
		d.logger.Warn("rogue tick failed", "tick_id", tickID, "error", err)
	}
}

func (d *Detector) appendAlert(kind, summary, severity string) {
	if err := d.store.AppendAlert(&store.Alert{
		Ts:       time.Now(),
		Severity: severity,
		Kind:     kind,
		Summary:  summary,
	}); err != nil {
		d.logger.Warn("failed to append alert", "kind", kind, "error", err)
		return
	}
	telemetry.AlertsTotal.WithLabelValues(kind, severity).Inc()
}

func populationVariance(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		diff := float64(s) - mean
		sq += diff * diff
	}
	return sq / float64(len(samples))
}
