package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/mardigiorgio/piguard/internal/store"
)

// rogueTick evaluates every not-yet-seen beacon for the defended SSID
// within the lookback window against the BSSID/channel/band policy, the
// per-allowlisted-BSSID RSN baseline, and the rolling RSSI variance of
// tracked BSSIDs. Each beacon Event is consumed at most once.
func (d *Detector) rogueTick(ctx context.Context) error {
	cfgPtr := d.rogueCfg.Load()
	if cfgPtr == nil || cfgPtr.DefendedSSID == "" {
		return nil
	}
	cfg := *cfgPtr

	since := time.Now().Add(-beaconLookback)
	events, err := d.store.QueryEvents(since, "mgmt.beacon", cfg.DefendedSSID, 0)
	if err != nil {
		return fmt.Errorf("detect: query beacons: %w", err)
	}

	allowlisted := len(cfg.AllowedBSSIDs) > 0

	for _, ev := range events {
		if d.seenEventIDs.Contains(ev.ID) {
			continue
		}
		d.seenEventIDs.Add(ev.ID)

		bssid := ""
		if ev.BSSID != nil {
			bssid = *ev.BSSID
		}

		if reason := policyCheck(ev, bssid, cfg); reason != "" {
			d.appendAlert(store.KindRogueAP, reason, store.SeverityWarn)
			continue
		}

		if allowlisted {
			d.checkRSNBaseline(ev, bssid)
		}

		// Tracked for PWR variance when allowlisted, or for every BSSID
		// once no allowlist is configured (these beacons already passed
		// the channel/band policy, so "learned" == "seen").
		if !allowlisted || isAllowed(cfg.AllowedBSSIDs, bssid) {
			d.checkPWRVariance(ev, bssid, cfg)
		}
	}
	return nil
}

// policyCheck applies the BSSID → channel → band ordering and returns a
// human-readable rogue reason, or "" if the beacon passes every
// configured check.
func policyCheck(ev store.Event, bssid string, cfg RogueConfig) string {
	if len(cfg.AllowedBSSIDs) > 0 {
		if !isAllowed(cfg.AllowedBSSIDs, bssid) {
			return fmt.Sprintf("SSID %s from unknown BSSID %s", cfg.DefendedSSID, bssid)
		}
	}
	if len(cfg.AllowedChannels) > 0 {
		if _, ok := cfg.AllowedChannels[ev.Chan]; !ok {
			return fmt.Sprintf("SSID %s from %s on unapproved channel %d", cfg.DefendedSSID, bssid, ev.Chan)
		}
	}
	if len(cfg.AllowedBands) > 0 {
		if _, ok := cfg.AllowedBands[ev.Band]; !ok {
			return fmt.Sprintf("SSID %s from %s on unapproved band %s", cfg.DefendedSSID, bssid, ev.Band)
		}
	}
	return ""
}

func isAllowed(allowed map[string]struct{}, bssid string) bool {
	_, ok := allowed[bssid]
	return ok
}

func (d *Detector) checkRSNBaseline(ev store.Event, bssid string) {
	akms, ciphers := "", ""
	if ev.RSNAKMs != nil {
		akms = *ev.RSNAKMs
	}
	if ev.RSNCiphers != nil {
		ciphers = *ev.RSNCiphers
	}

	d.mu.Lock()
	baseline, ok := d.rsnBaselines[bssid]
	if !ok {
		if akms == "" && ciphers == "" {
			d.mu.Unlock()
			return
		}
		d.rsnBaselines[bssid] = rsnBaseline{AKMs: akms, Ciphers: ciphers}
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if baseline.AKMs != akms || baseline.Ciphers != ciphers {
		summary := fmt.Sprintf("RSN mismatch for %s: baseline akms=%s ciphers=%s, observed akms=%s ciphers=%s",
			bssid, baseline.AKMs, baseline.Ciphers, akms, ciphers)
		d.appendAlert(store.KindRogueAP, summary, store.SeverityWarn)
	}
}

func (d *Detector) checkPWRVariance(ev store.Event, bssid string, cfg RogueConfig) {
	if ev.RSSI == nil || bssid == "" {
		return
	}
	window := cfg.pwrWindow()

	d.mu.Lock()
	ring := append(d.rssiRing[bssid], *ev.RSSI)
	if len(ring) > window {
		ring = ring[len(ring)-window:]
	}
	d.rssiRing[bssid] = ring
	samples := append([]int(nil), ring...)
	d.mu.Unlock()

	if len(samples) < window/2 {
		return
	}

	variance := populationVariance(samples)
	threshold := cfg.pwrThreshold()
	if variance <= threshold {
		return
	}

	d.mu.Lock()
	last, fired := d.lastPWRFire[bssid]
	withinCooldown := fired && time.Since(last) < cfg.pwrCooldown()
	if !withinCooldown {
		d.lastPWRFire[bssid] = time.Now()
	}
	d.mu.Unlock()

	if withinCooldown {
		return
	}

	summary := fmt.Sprintf("RSSI variance %.1f exceeds threshold %.1f for %s", variance, threshold, bssid)
	d.appendAlert(store.KindRogueAP, summary, store.SeverityWarn)
}
