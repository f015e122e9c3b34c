package hopping

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSwitcher struct {
	mu   sync.Mutex
	set  []Channel
	up   bool
	fail bool
}

func newFakeSwitcher() *fakeSwitcher { return &fakeSwitcher{up: true} }

func (f *fakeSwitcher) SetChannel(iface string, ch Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.set = append(f.set, ch)
	return nil
}

func (f *fakeSwitcher) InterfaceUp(iface string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up, nil
}

func (f *fakeSwitcher) snapshot() []Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Channel, len(f.set))
	copy(out, f.set)
	return out
}

func TestHopper_StepsThroughAllChannelsWithinDwellBudget(t *testing.T) {
	sw := newFakeSwitcher()
	h := New("wlan0", sw, nil)
	h.Reconfigure(PlanSpec{Mode: ModeList, ListChannels: []int{1, 6, 11}}, 50)

	go h.Run()
	time.Sleep(200 * time.Millisecond)
	h.Stop()

	seen := map[int]bool{}
	for _, ch := range sw.snapshot() {
		seen[ch.Num] = true
	}
	assert.True(t, seen[1])
	assert.True(t, seen[6])
	assert.True(t, seen[11])
}

func TestHopper_DwellFloorsAt20ms(t *testing.T) {
	sw := newFakeSwitcher()
	h := New("wlan0", sw, nil)
	h.Reconfigure(PlanSpec{Mode: ModeList, ListChannels: []int{1}}, 1)
	assert.Equal(t, minDwell, h.dwell)
}

func TestHopper_ReconfigurePreservesOrderWhenSetUnchanged(t *testing.T) {
	h := New("wlan0", newFakeSwitcher(), nil)
	h.Reconfigure(PlanSpec{Mode: ModeList, ListChannels: []int{1, 6, 11}}, 100)
	first := append([]Channel{}, h.plan...)

	h.Reconfigure(PlanSpec{Mode: ModeList, ListChannels: []int{1, 6, 11}}, 150)
	require.Equal(t, first, h.plan)
}

func TestHopper_ReconfigureReshufflesOnChangedSet(t *testing.T) {
	h := New("wlan0", newFakeSwitcher(), nil)
	h.Reconfigure(PlanSpec{Mode: ModeList, ListChannels: []int{1, 6, 11}}, 100)
	keyBefore := h.planKey

	h.Reconfigure(PlanSpec{Mode: ModeList, ListChannels: []int{1, 6, 36}}, 100)
	assert.NotEqual(t, keyBefore, h.planKey)
}

func TestHopper_LockPausesHopping(t *testing.T) {
	sw := newFakeSwitcher()
	h := New("wlan0", sw, nil)
	h.Reconfigure(PlanSpec{Mode: ModeList, ListChannels: []int{1, 6, 11}}, 20)
	h.Lock(Channel{Band: "2.4", Num: 6})

	go h.Run()
	time.Sleep(100 * time.Millisecond)
	h.Stop()

	assert.Empty(t, sw.snapshot())
}
