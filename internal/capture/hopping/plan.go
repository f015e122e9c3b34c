package hopping

import (
	"math/rand"
	"sort"
	"strconv"

	"github.com/mardigiorgio/piguard/internal/capture/channelmap"
)

// HopMode selects how the channel plan is derived from configuration.
type HopMode string

const (
	ModeLock HopMode = "lock"
	ModeList HopMode = "list"
	ModeAll  HopMode = "all"
)

// defaultChannels24/5/6 are the per-band channel sets used by ModeAll
// unless overridden by capture.hop.channels_24/5/6 in configuration.
var (
	defaultChannels24 = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
	defaultChannels5  = []int{36, 40, 44, 48, 149, 153, 157, 161}
	defaultChannels6  []int
)

// PlanSpec describes how to derive a channel plan, mirroring the
// capture.hop.* configuration keys.
type PlanSpec struct {
	Mode         HopMode
	Bands        map[string]bool // enabled bands for ModeAll
	LockChannel  int
	ListChannels []int
	Channels24   []int // override for ModeAll, nil means default
	Channels5    []int
	Channels6    []int
}

// Channel is one entry of a derived plan: a channel number paired with its
// band, since channel numbers alone are ambiguous across bands.
type Channel struct {
	Band string
	Num  int
}

// Frequency resolves this plan entry to a frequency in MHz.
func (c Channel) Frequency() int { return channelmap.ToFrequency(c.Band, c.Num) }

// DerivePlan computes the unordered channel set implied by spec. The hopper
// compares its setKey against the current plan's to decide whether the set
// changed, and shuffles it to form the new plan when it did.
func DerivePlan(spec PlanSpec) []Channel {
	switch spec.Mode {
	case ModeLock:
		return []Channel{{Band: bandOf(spec.LockChannel), Num: spec.LockChannel}}
	case ModeList:
		out := make([]Channel, 0, len(spec.ListChannels))
		for _, ch := range spec.ListChannels {
			out = append(out, Channel{Band: bandOf(ch), Num: ch})
		}
		return out
	case ModeAll:
		return deriveAllBandsPlan(spec)
	default:
		return nil
	}
}

// bandOf guesses a band for a bare channel number the way the DS-derived
// decode path does, since lock/list modes give channel numbers without an
// explicit band.
func bandOf(ch int) string {
	band, _ := channelFromNumber(ch)
	return band
}

func channelFromNumber(ch int) (string, int) {
	switch {
	case ch >= 1 && ch <= 14:
		return channelmap.Band24, ch
	case ch >= 36 && ch <= 177:
		return channelmap.Band5, ch
	case ch > 177:
		return channelmap.Band6, ch
	default:
		return channelmap.BandUnknown, ch
	}
}

func deriveAllBandsPlan(spec PlanSpec) []Channel {
	var out []Channel
	if spec.Bands == nil || spec.Bands[channelmap.Band24] {
		for _, ch := range orDefault(spec.Channels24, defaultChannels24) {
			out = append(out, Channel{Band: channelmap.Band24, Num: ch})
		}
	}
	if spec.Bands == nil || spec.Bands[channelmap.Band5] {
		for _, ch := range orDefault(spec.Channels5, defaultChannels5) {
			out = append(out, Channel{Band: channelmap.Band5, Num: ch})
		}
	}
	if spec.Bands != nil && spec.Bands[channelmap.Band6] {
		for _, ch := range orDefault(spec.Channels6, defaultChannels6) {
			out = append(out, Channel{Band: channelmap.Band6, Num: ch})
		}
	}
	return out
}

func orDefault(override, fallback []int) []int {
	if len(override) > 0 {
		return override
	}
	return fallback
}

// setKey produces a comparable signature for a channel set regardless of
// order, so the hopper can tell whether a reload actually changed anything.
func setKey(channels []Channel) string {
	keys := make([]string, len(channels))
	for i, c := range channels {
		keys[i] = c.Band + "/" + strconv.Itoa(c.Num)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += k + ";"
	}
	return out
}

// shuffle returns a copy of channels in a freshly randomized order. Called
// exactly once per adopted plan.
func shuffle(channels []Channel) []Channel {
	out := make([]Channel, len(channels))
	copy(out, channels)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
