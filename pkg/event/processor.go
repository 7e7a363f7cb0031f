package event

import "sort"

// Processor owns the pooled input/output event buffers for one plugin
// instance's process call. The plugin ABI (pkg/pluginabi) deals entirely
// in Go-native Event slices, so Processor's job is pooling plus the
// merge/sanitize rules applied to each block.
type Processor struct {
	pool   *Pool
	input  InputBuffer
	output OutputBuffer
}

// NewProcessor creates a Processor backed by a fresh event Pool.
func NewProcessor() *Processor {
	return &Processor{pool: NewPool()}
}

// GetPool returns the processor's event pool, for diagnostics.
func (p *Processor) GetPool() *Pool { return p.pool }

// Input returns the buffer to merge this block's input events into.
func (p *Processor) Input() *InputBuffer { return &p.input }

// Output returns the buffer the plugin's Process call writes output
// events into.
func (p *Processor) Output() *OutputBuffer { return &p.output }

// BeginBlock resets both buffers for a new audio block.
func (p *Processor) BeginBlock() {
	p.input.Reset()
	p.output.Reset()
}

// InputBuffer holds the merged, time-ordered input events for one audio
// block: parameter value/mod updates, automation events, and the block's
// transport event are merged in time order before the plugin processor
// ever sees them.
type InputBuffer struct {
	events []Event
	pool   *Pool
}

// NewInputBuffer creates an input event buffer holding the given pool.
// InputBuffer's methods never draw events from the pool, so a nil pool
// behaves the same.
func NewInputBuffer(pool *Pool) *InputBuffer {
	return &InputBuffer{pool: pool}
}

// Push appends an event without re-sorting. Call Sort once all sources
// have been merged.
func (b *InputBuffer) Push(e Event) {
	b.events = append(b.events, e)
}

// Sort orders events by header time, stable so that same-time events
// from different sources preserve the order they were pushed (parameters
// before automation before transport).
func (b *InputBuffer) Sort() {
	sort.SliceStable(b.events, func(i, j int) bool {
		return b.events[i].GetHeader().Time < b.events[j].GetHeader().Time
	})
}

// Len returns the number of merged events.
func (b *InputBuffer) Len() int { return len(b.events) }

// At returns the event at index i.
func (b *InputBuffer) At(i int) Event { return b.events[i] }

// Events returns the full merged, sorted slice.
func (b *InputBuffer) Events() []Event { return b.events }

// Reset clears the buffer for reuse across blocks.
func (b *InputBuffer) Reset() {
	b.events = b.events[:0]
}

// OutputBuffer collects events a plugin emits during Process, before the
// sanitizer dispatches them onward.
type OutputBuffer struct {
	events       []Event
	lastTime     uint32
	haveLastTime bool
}

// NewOutputBuffer creates a standalone output event buffer, used for an
// automation-out port that the main Processor's pooled buffer does not
// cover.
func NewOutputBuffer() *OutputBuffer {
	return &OutputBuffer{}
}

// TryPush appends an output event, enforcing the sanitizer's monotonic
// timestamp rule: an event whose time is earlier than the last accepted
// event's time is rejected rather than silently reordered.
func (b *OutputBuffer) TryPush(e Event) bool {
	t := e.GetHeader().Time
	if b.haveLastTime && t < b.lastTime {
		return false
	}
	b.lastTime = t
	b.haveLastTime = true
	b.events = append(b.events, e)
	return true
}

// PushNoteEnd is a typed convenience wrapper over TryPush for note-end
// events emitted by voice-managing plugins.
func (b *OutputBuffer) PushNoteEnd(e *NoteEvent, time uint32) bool {
	e.Header.Time = time
	e.Header.Type = uint16(TypeNoteEnd)
	return b.TryPush(e)
}

// Events returns the accepted events in push order.
func (b *OutputBuffer) Events() []Event { return b.events }

// Reset clears the buffer for reuse across blocks.
func (b *OutputBuffer) Reset() {
	b.events = b.events[:0]
	b.haveLastTime = false
}

// Sanitize clamps every event's time into [0, blockFrames) and drops any
// Transport event a plugin tries to emit as output — a plugin has no
// business producing a transport event, so it is discarded (with a log
// hook via onDropped) rather than failing the block.
func Sanitize(events []Event, blockFrames uint32, onDropped func(Event)) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		h := e.GetHeader()
		if h.Type == uint16(TypeTransport) {
			if onDropped != nil {
				onDropped(e)
			}
			continue
		}
		if h.Time >= blockFrames {
			h.Time = blockFrames - 1
		}
		out = append(out, e)
	}
	return out
}
