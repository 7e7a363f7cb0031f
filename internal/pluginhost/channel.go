// Package pluginhost implements the main-thread/process-thread channel
// each hosted plugin instance shares, the per-block processor wrapper,
// and the activation lifecycle state machine.
package pluginhost

import (
	"sync/atomic"

	"github.com/meadowlark-audio/engine/internal/reducingqueue"
)

// ActivationState is the atomic, u32-encoded instance lifecycle.
type ActivationState int32

const (
	StateInactive ActivationState = iota
	StateActive
	StateWaitingToDrop
	StateDroppedAndReadyToDeactivate
	StateInactiveWithError
)

func (s ActivationState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateWaitingToDrop:
		return "waiting_to_drop"
	case StateDroppedAndReadyToDeactivate:
		return "dropped_and_ready_to_deactivate"
	case StateInactiveWithError:
		return "inactive_with_error"
	default:
		return "unknown"
	}
}

// Channel is the shared state between a plugin instance's main-thread
// half and its process-thread half: the activation state machine plus
// the reducing parameter-update queues.
//
// to_proc_param_value_tx / to_proc_param_mod_tx: main thread -> process
// thread (user edits, host automation). from_proc_param_value_rx:
// process thread -> main thread (plugin-initiated changes, gestures),
// mirrored back into the main thread's cached parameter values.
type Channel struct {
	state atomic.Int32

	toProcValue *reducingqueue.Queue // to_proc_param_value_tx
	toProcMod   *reducingqueue.Queue // to_proc_param_mod_tx
	fromProc    *reducingqueue.Queue // from_proc_param_value_rx

	// scheduleVersion is the schedule version this channel's processor
	// was last compiled against, for the processor's "skip processing
	// this block" stale-schedule check.
	scheduleVersion atomic.Uint64
}

// NewChannel allocates a channel with parameter queues sized to
// numParams. Queue allocation only happens on activation (main thread),
// never from the audio thread.
func NewChannel(numParams int) *Channel {
	return &Channel{
		toProcValue: reducingqueue.New(numParams),
		toProcMod:   reducingqueue.New(numParams),
		fromProc:    reducingqueue.New(numParams),
	}
}

func (c *Channel) State() ActivationState { return ActivationState(c.state.Load()) }
func (c *Channel) setState(s ActivationState) { c.state.Store(int32(s)) }

// RequestActivate moves Inactive/InactiveWithError -> Active once the
// main thread has successfully called activate() and published a
// processor. Not safe to call concurrently with itself; main thread only.
func (c *Channel) RequestActivate() { c.setState(StateActive) }

// RequestDeactivate moves Active -> WaitingToDrop, the main-thread side
// of the deactivation handshake.
func (c *Channel) RequestDeactivate() {
	c.state.CompareAndSwap(int32(StateActive), int32(StateWaitingToDrop))
}

// ObserveDropped is called by the process thread once it has stopped
// processing and released its Processor reference.
func (c *Channel) ObserveDropped() { c.setState(StateDroppedAndReadyToDeactivate) }

// FinishDeactivate is called by the main thread after invoking
// deactivate(), returning to Inactive.
func (c *Channel) FinishDeactivate() { c.setState(StateInactive) }

// MarkErrored records that activate() failed.
func (c *Channel) MarkErrored() { c.setState(StateInactiveWithError) }

// ScheduleVersion/SetScheduleVersion track which compiled schedule this
// channel's processor was last validated against.
func (c *Channel) ScheduleVersion() uint64      { return c.scheduleVersion.Load() }
func (c *Channel) SetScheduleVersion(v uint64)  { c.scheduleVersion.Store(v) }

// PushValue enqueues a user/host-initiated parameter value change,
// main-thread -> process thread.
func (c *Channel) PushValue(paramIndex int, value float64) {
	c.toProcValue.Push(paramIndex, reducingqueue.Update{Value: value, HasValue: true})
}

// PushModulation enqueues a modulation update, main-thread -> process
// thread. Modulation is never mirrored back.
func (c *Channel) PushModulation(paramIndex int, value float64) {
	c.toProcMod.Push(paramIndex, reducingqueue.Update{Value: value, HasValue: true})
}

// DrainToProcessor is called once per block by the process thread to
// pull queued main-thread edits into the input-event assembly: value
// updates first, then modulation.
func (c *Channel) DrainToProcessor(onValue, onMod func(paramIndex int, u reducingqueue.Update)) (valueCount, modCount int) {
	valueCount = c.toProcValue.Drain(onValue)
	modCount = c.toProcMod.Drain(onMod)
	return
}

// PushFromProcessor enqueues a plugin-initiated parameter change or
// gesture flag, process thread -> main thread.
func (c *Channel) PushFromProcessor(paramIndex int, u reducingqueue.Update) {
	c.fromProc.Push(paramIndex, u)
}

// DrainMirror is called once per poll by the main thread to update its
// cached parameter values from plugin-initiated changes.
func (c *Channel) DrainMirror(fn func(paramIndex int, u reducingqueue.Update)) int {
	return c.fromProc.Drain(fn)
}
