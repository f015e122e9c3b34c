package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mardigiorgio/piguard/internal/store"
)

// deauthTick counts deauth events over the configured window, grouped by
// source, and fires a deauth_flood alert when the global total meets the
// threshold. Firing is scoped to the global count alone, not to any
// particular source or defended SSID: the source resolution this
// implementation follows is "global only", with offending sources
// surfaced in the alert summary rather than gating the fire.
func (d *Detector) deauthTick(ctx context.Context) error {
	cfgPtr := d.deauthCfg.Load()
	cfg := DefaultDeauthConfig()
	if cfgPtr != nil {
		cfg = *cfgPtr
	}

	since := time.Now().Add(-cfg.window())
	counts, err := d.store.CountDeauthsBySrc(since)
	if err != nil {
		return fmt.Errorf("detect: count deauths: %w", err)
	}

	if counts.Total < cfg.GlobalLimit {
		return nil
	}

	var offenders []string
	for _, sc := range counts.BySrc {
		if sc.Count > cfg.PerSrcLimit {
			offenders = append(offenders, sc.Src)
		}
	}
	sort.Strings(offenders)

	severity := store.SeverityWarn
	if counts.Total >= 2*cfg.GlobalLimit {
		severity = store.SeverityCritical
	}

	signature := fmt.Sprintf("deauth_flood|%d|%s", counts.Total, strings.Join(offenders, ","))

	d.mu.Lock()
	sameSignature := signature == d.lastDeauthSig
	withinCooldown := sameSignature && time.Since(d.lastDeauthFire) < cfg.cooldown()
	if withinCooldown {
		d.mu.Unlock()
		return nil
	}
	d.lastDeauthSig = signature
	d.lastDeauthFire = time.Now()
	d.mu.Unlock()

	summary := fmt.Sprintf("Deauth burst: total=%d, offenders=%d", counts.Total, len(offenders))
	d.appendAlert(store.KindDeauthFlood, summary, severity)
	return nil
}
