package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mardigiorgio/piguard/internal/store"
)

// WatcherConfig tunes the in-line anomaly watchers. A nil or empty
// DefendedSSIDs disables both watchers entirely.
type WatcherConfig struct {
	DefendedSSIDs     map[string]struct{}
	AllowlistedBSSIDs map[string]struct{}
	PWRWindow         int
	PWRVarThreshold   float64
}

const (
	defaultPWRWindow       = 20
	minPWRWindow           = 3
	defaultPWRVarThreshold = 150.0
	watcherRateLimit       = 5 * time.Second
)

// watchers tracks per-BSSID ESSID-flip and PWR-variance state for beacons
// belonging to a defended SSID. It keeps its own independent state,
// separate from the detectors in internal/detect.
type watchers struct {
	cfg    atomic.Pointer[WatcherConfig]
	store  *store.Store
	logger *slog.Logger

	mu            sync.Mutex
	learnedBSSIDs map[string]struct{}
	ssidSeen      map[string]map[string]struct{}
	lastFlipLog   map[string]time.Time
	rssiRing      map[string][]int
	lastPWRLog    map[string]time.Time
}

func newWatchers(st *store.Store, logger *slog.Logger) *watchers {
	return &watchers{
		store:         st,
		logger:        logger,
		learnedBSSIDs: make(map[string]struct{}),
		ssidSeen:      make(map[string]map[string]struct{}),
		lastFlipLog:   make(map[string]time.Time),
		rssiRing:      make(map[string][]int),
		lastPWRLog:    make(map[string]time.Time),
	}
}

// SetConfig atomically swaps the active watcher configuration.
func (w *watchers) SetConfig(cfg WatcherConfig) { w.cfg.Store(&cfg) }

// Observe feeds one decoded beacon event through both watchers. Non-beacon
// events and beacons without a BSSID are ignored.
func (w *watchers) Observe(ev store.Event) {
	if ev.Type != "mgmt.beacon" || ev.BSSID == nil {
		return
	}
	cfg := w.cfg.Load()
	if cfg == nil || len(cfg.DefendedSSIDs) == 0 {
		return
	}

	bssid := *ev.BSSID
	ssid := ""
	if ev.SSID != nil {
		ssid = *ev.SSID
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isTracked(cfg, bssid, ssid) {
		return
	}

	if ssid != "" {
		w.checkESSIDFlip(bssid, ssid)
	}
	if ev.RSSI != nil {
		w.checkPWRVariance(cfg, bssid, *ev.RSSI)
	}
}

// isTracked reports whether bssid qualifies for watching: explicitly
// allowlisted, or previously learned from a beacon of a defended SSID, or
// learned right now because ssid is defended.
func (w *watchers) isTracked(cfg *WatcherConfig, bssid, ssid string) bool {
	if _, ok := cfg.AllowlistedBSSIDs[bssid]; ok {
		return true
	}
	if _, ok := w.learnedBSSIDs[bssid]; ok {
		return true
	}
	if ssid == "" {
		return false
	}
	if _, defended := cfg.DefendedSSIDs[ssid]; !defended {
		return false
	}
	w.learnedBSSIDs[bssid] = struct{}{}
	return true
}

func (w *watchers) checkESSIDFlip(bssid, ssid string) {
	seen := w.ssidSeen[bssid]
	if seen == nil {
		seen = make(map[string]struct{})
		w.ssidSeen[bssid] = seen
	}
	before := len(seen)
	seen[ssid] = struct{}{}
	after := len(seen)

	if before <= 1 && after >= 2 && w.rateLimit(w.lastFlipLog, bssid) {
		w.logger.Warn("essid flip detected", "bssid", bssid, "ssid_count", after)
		w.appendLog("essid_flip", bssid, "bssid "+bssid+" now advertises multiple SSIDs")
	}
}

func (w *watchers) checkPWRVariance(cfg *WatcherConfig, bssid string, rssi int) {
	window := cfg.PWRWindow
	if window < minPWRWindow {
		window = defaultPWRWindow
	}
	ring := append(w.rssiRing[bssid], rssi)
	if len(ring) > window {
		ring = ring[len(ring)-window:]
	}
	w.rssiRing[bssid] = ring

	if len(ring) < window/2 {
		return
	}
	threshold := cfg.PWRVarThreshold
	if threshold <= 0 {
		threshold = defaultPWRVarThreshold
	}
	v := populationVariance(ring)
	if v > threshold && w.rateLimit(w.lastPWRLog, bssid) {
		w.logger.Warn("pwr variance anomaly", "bssid", bssid, "variance", v)
		w.appendLog("pwr_variance", bssid, "elevated RSSI variance for bssid "+bssid)
	}
}

func (w *watchers) rateLimit(last map[string]time.Time, key string) bool {
	now := time.Now()
	if t, ok := last[key]; ok && now.Sub(t) < watcherRateLimit {
		return false
	}
	last[key] = now
	return true
}

func (w *watchers) appendLog(kind, bssid, message string) {
	if w.store == nil {
		return
	}
	if err := w.store.AppendLog(&store.Log{
		Ts:      time.Now(),
		Source:  "capture.watchers." + kind,
		Level:   "warn",
		Message: message,
	}); err != nil {
		w.logger.Warn("failed to persist watcher log", "kind", kind, "bssid", bssid, "error", err)
	}
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
		d := float64(s) - mean
		sq += d * d
	}
	return sq / float64(len(samples))
}
