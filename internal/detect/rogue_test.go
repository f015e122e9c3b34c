package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mardigiorgio/piguard/internal/store"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func beacon(ssid, bssid string, band string, ch int) store.Event {
	return store.Event{
		Ts:    time.Now(),
		Type:  "mgmt.beacon",
		SSID:  strp(ssid),
		BSSID: strp(bssid),
		Band:  band,
		Chan:  ch,
	}
}

func TestRogueTick_NoOpWithoutDefendedSSID(t *testing.T) {
	st := newTestStore(t)
	d := New(st, nil)
	_, err := st.AppendEvents([]store.Event{beacon("HomeNet", "aa:aa:aa:aa:aa:aa", "2.4", 6)})
	require.NoError(t, err)

	require.NoError(t, d.rogueTick(context.Background()))

	alerts, err := st.AlertsByKeyset(0, 0)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestRogueTick_FlagsUnknownBSSID(t *testing.T) {
	st := newTestStore(t)
	d := New(st, nil)
	d.SetRogueConfig(RogueConfig{
		DefendedSSID:  "HomeNet",
		AllowedBSSIDs: map[string]struct{}{"aa:aa:aa:aa:aa:aa": {}},
	})
	_, err := st.AppendEvents([]store.Event{beacon("HomeNet", "bb:bb:bb:bb:bb:bb", "2.4", 6)})
	require.NoError(t, err)

	require.NoError(t, d.rogueTick(context.Background()))

	alerts, err := st.AlertsByKeyset(0, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, store.KindRogueAP, alerts[0].Kind)
	require.Equal(t, "SSID HomeNet from unknown BSSID bb:bb:bb:bb:bb:bb", alerts[0].Summary)
}

func TestRogueTick_AllowlistedBSSIDPassesPolicy(t *testing.T) {
	st := newTestStore(t)
	d := New(st, nil)
	d.SetRogueConfig(RogueConfig{
		DefendedSSID:  "HomeNet",
		AllowedBSSIDs: map[string]struct{}{"aa:aa:aa:aa:aa:aa": {}},
	})
	_, err := st.AppendEvents([]store.Event{beacon("HomeNet", "aa:aa:aa:aa:aa:aa", "2.4", 6)})
	require.NoError(t, err)

	require.NoError(t, d.rogueTick(context.Background()))

	alerts, err := st.AlertsByKeyset(0, 0)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestRogueTick_RSNBaselineMismatchFires(t *testing.T) {
	st := newTestStore(t)
	d := New(st, nil)
	d.SetRogueConfig(RogueConfig{
		DefendedSSID:  "HomeNet",
		AllowedBSSIDs: map[string]struct{}{"aa:aa:aa:aa:aa:aa": {}},
	})

	baselineEv := beacon("HomeNet", "aa:aa:aa:aa:aa:aa", "2.4", 6)
	baselineEv.RSNAKMs = strp("psk")
	baselineEv.RSNCiphers = strp("ccmp")
	_, err := st.AppendEvents([]store.Event{baselineEv})
	require.NoError(t, err)
	require.NoError(t, d.rogueTick(context.Background()))

	driftedEv := beacon("HomeNet", "aa:aa:aa:aa:aa:aa", "2.4", 6)
	driftedEv.RSNAKMs = strp("sae")
	driftedEv.RSNCiphers = strp("ccmp")
	_, err = st.AppendEvents([]store.Event{driftedEv})
	require.NoError(t, err)
	require.NoError(t, d.rogueTick(context.Background()))

	alerts, err := st.AlertsByKeyset(0, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts[0].Summary, "RSN mismatch")
}

func TestRogueTick_PWRVarianceFiresAboveThreshold(t *testing.T) {
	st := newTestStore(t)
	d := New(st, nil)
	d.SetRogueConfig(RogueConfig{
		DefendedSSID:    "HomeNet",
		AllowedBSSIDs:   map[string]struct{}{"aa:aa:aa:aa:aa:aa": {}},
		PWRWindow:       10,
		PWRVarThreshold: 10.0,
	})

	rssi := []int{-40, -80, -40, -80, -40, -80}
	var batch []store.Event
	for _, r := range rssi {
		ev := beacon("HomeNet", "aa:aa:aa:aa:aa:aa", "2.4", 6)
		ev.RSSI = intp(r)
		batch = append(batch, ev)
	}
	_, err := st.AppendEvents(batch)
	require.NoError(t, err)

	require.NoError(t, d.rogueTick(context.Background()))

	alerts, err := st.AlertsByKeyset(0, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts[0].Summary, "RSSI variance")
}

func TestRogueTick_EventConsumedAtMostOnce(t *testing.T) {
	st := newTestStore(t)
	d := New(st, nil)
	d.SetRogueConfig(RogueConfig{
		DefendedSSID:  "HomeNet",
		AllowedBSSIDs: map[string]struct{}{"aa:aa:aa:aa:aa:aa": {}},
	})
	_, err := st.AppendEvents([]store.Event{beacon("HomeNet", "bb:bb:bb:bb:bb:bb", "2.4", 6)})
	require.NoError(t, err)

	require.NoError(t, d.rogueTick(context.Background()))
	require.NoError(t, d.rogueTick(context.Background()))

	alerts, err := st.AlertsByKeyset(0, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "the same beacon event must not be re-evaluated on a later tick")
}
