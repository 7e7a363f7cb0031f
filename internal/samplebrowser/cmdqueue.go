// Package samplebrowser implements the one-shot sample-preview plugin
// used by the browser panel to audition PCM files before they are
// dropped onto the timeline.
package samplebrowser

import "sync/atomic"

// CommandKind enumerates the messages the main thread sends into the
// processor's command queue.
type CommandKind int

const (
	CmdPlayNewSample CommandKind = iota
	CmdReplaySample
	CmdStop
)

// Command is one queued instruction. PCM is only populated for
// CmdPlayNewSample.
type Command struct {
	Kind CommandKind
	PCM  [][]float32
}

// cmdQueueCapacity is fixed power-of-two sizing for the ring buffer
// index mask; preview commands are rare (user-driven), so a small
// capacity comfortably absorbs bursts of clicks in the browser panel.
const cmdQueueCapacity = 16

// CommandQueue is a single-producer/single-consumer ring buffer: the
// main thread pushes, the audio thread pops once per block. Lock-free
// and allocation-free on both sides.
type CommandQueue struct {
	buf        [cmdQueueCapacity]Command
	head, tail atomic.Uint64 // head: next write index. tail: next read index.
}

// NewCommandQueue creates an empty command queue.
func NewCommandQueue() *CommandQueue { return &CommandQueue{} }

// Push enqueues a command, main-thread side. Returns false if the queue
// is full, in which case c itself is dropped and the unread commands
// stay queued (bounded memory rather than blocking — acceptable since
// Stop/Replay/PlayNewSample are idempotent-ish user gestures the
// processor reduces to its own state machine on drain).
func (q *CommandQueue) Push(c Command) bool {
	h := q.head.Load()
	t := q.tail.Load()
	if h-t >= cmdQueueCapacity {
		return false
	}
	q.buf[h%cmdQueueCapacity] = c
	q.head.Store(h + 1)
	return true
}

// Pop dequeues the next command, audio-thread side. Returns false if
// the queue is empty.
func (q *CommandQueue) Pop() (Command, bool) {
	t := q.tail.Load()
	h := q.head.Load()
	if t == h {
		return Command{}, false
	}
	c := q.buf[t%cmdQueueCapacity]
	q.tail.Store(t + 1)
	return c, true
}
