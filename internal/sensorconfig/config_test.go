package sensorconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mardigiorgio/piguard/internal/capture/hopping"
)

const sampleYAML = `
database:
  path: piguard.db
capture:
  iface: wlan0mon
  hop:
    enabled: true
    mode: list
    list_channels: [1, 6, 11]
    dwell_ms: 50
defense:
  ssid: HomeNet
  allowed_bssids: ["AA:BB:CC:DD:EE:FF"]
  allowed_channels: [6]
  allowed_bands: ["2.4"]
thresholds:
  deauth:
    window_sec: 10
    per_src_limit: 30
    global_limit: 80
    cooldown_sec: 60
  rogue:
    pwr_window: 20
    pwr_var_threshold: 150.0
    pwr_cooldown_sec: 60
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "piguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ResolvesDatabasePathRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(filepath.Dir(path), "piguard.db"), cfg.Database.Path)
}

func TestLoad_LowercasesAllowedBSSIDs(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, cfg.Defense.AllowedBSSIDs)
}

func TestLoad_MissingIfaceIsFatal(t *testing.T) {
	path := writeConfig(t, "database:\n  path: x.db\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_UndecodableYAMLIsFatal(t *testing.T) {
	path := writeConfig(t, "capture: [this is not a map\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestPlanSpec_MapsListMode(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	spec := cfg.PlanSpec()
	require.Equal(t, []int{1, 6, 11}, spec.ListChannels)
	require.Equal(t, 50, cfg.DwellMs())
}

func TestPlanSpec_EmptyWhenHopDisabled(t *testing.T) {
	path := writeConfig(t, "capture:\n  iface: wlan0mon\n  hop:\n    enabled: false\n    mode: list\n    list_channels: [1, 6, 11]\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, hopping.DerivePlan(cfg.PlanSpec()))
}

func TestDeauthConfig_FillsDefaultsForUnsetFields(t *testing.T) {
	path := writeConfig(t, "capture:\n  iface: wlan0mon\nthresholds:\n  deauth:\n    global_limit: 40\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	dc := cfg.DeauthConfig()
	require.Equal(t, 40, dc.GlobalLimit)
	require.Equal(t, 30, dc.PerSrcLimit, "unset per_src_limit should fall back to the documented default")
}

func TestRogueConfig_BuildsAllowSets(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	rc := cfg.RogueConfig()
	require.Equal(t, "HomeNet", rc.DefendedSSID)
	_, ok := rc.AllowedBSSIDs["aa:bb:cc:dd:ee:ff"]
	require.True(t, ok)
	_, ok = rc.AllowedChannels[6]
	require.True(t, ok)
}

func TestWatcher_ReloadsOnMtimeChange(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.Equal(t, "HomeNet", w.Current().Defense.SSID)

	var applied *Config
	w.OnChange(func(c *Config) { applied = c })

	// Ensure the new mtime is observably later on filesystems with coarse
	// mtime resolution.
	time.Sleep(10 * time.Millisecond)
	updated := `
capture:
  iface: wlan0mon
defense:
  ssid: OtherNet
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	// Force a future mtime in case the filesystem truncates to whole seconds.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	w.poll()

	require.Equal(t, "OtherNet", w.Current().Defense.SSID)
	require.NotNil(t, applied)
	require.Equal(t, "OtherNet", applied.Defense.SSID)
}

func TestWatcher_RetainsPreviousConfigOnReloadFailure(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("capture: [broken\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	w.poll()

	require.Equal(t, "HomeNet", w.Current().Defense.SSID, "a bad reload must not replace the working configuration")
}
