package hopping

import "sync/atomic"

// State is the operational state of a ChannelHopper.
type State int32

const (
	StateIdle State = iota
	StateHopping
	StateLocked
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHopping:
		return "hopping"
	case StateLocked:
		return "locked"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// atomicState wraps atomic access to a State value.
type atomicState struct{ v int32 }

func (a *atomicState) Set(s State) { atomic.StoreInt32(&a.v, int32(s)) }
func (a *atomicState) Get() State  { return State(atomic.LoadInt32(&a.v)) }
