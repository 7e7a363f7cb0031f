// Package schedule defines the Task variants and the linear Schedule
// the compiler (internal/compiler) produces and the audio thread
// executes: a small closed set of typed task structs dispatched through
// an exhaustive Kind switch, the same shape pkg/event uses for its
// Type/Header-driven event dispatch.
package schedule

import (
	"github.com/meadowlark-audio/engine/internal/bufpool"
	"github.com/meadowlark-audio/engine/internal/graph"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// Kind discriminates Task variants.
type Kind int

const (
	KindPlugin Kind = iota
	KindAudioSum
	KindNoteSum
	KindAutomationSum
	KindAudioDelayComp
	KindNoteDelayComp
	KindAutomationDelayComp
	KindUnloadedPlugin
)

func (k Kind) String() string {
	switch k {
	case KindPlugin:
		return "plugin"
	case KindAudioSum:
		return "audio_sum"
	case KindNoteSum:
		return "note_sum"
	case KindAutomationSum:
		return "automation_sum"
	case KindAudioDelayComp:
		return "audio_delay_comp"
	case KindNoteDelayComp:
		return "note_delay_comp"
	case KindAutomationDelayComp:
		return "automation_delay_comp"
	case KindUnloadedPlugin:
		return "unloaded_plugin"
	default:
		return "unknown"
	}
}

// BufferRef points at one buffer in the resource pool, typed so the
// verifier can tell audio, note, and automation buffers apart even
// though they share an index space per type.
type BufferRef struct {
	Type  bufpool.BufferType
	Index uint32
}

// PluginTask runs one plugin instance's processor for the block.
type PluginTask struct {
	Instance      graph.PluginInstanceID
	Processor     pluginabi.Processor
	AudioIn       []BufferRef
	AudioOut      []BufferRef
	NoteIn        []BufferRef
	NoteOut       []BufferRef
	AutomationIn  *BufferRef
	AutomationOut *BufferRef
}

// SumTask merges k>=2 same-typed inputs into one output buffer. Kind
// selects which of AudioSum/NoteSum/AutomationSum this represents.
type SumTask struct {
	Kind    Kind
	Inputs  []BufferRef
	Output  BufferRef
}

// DelayCompTask inserts DelayFrames of latency on one buffer to equalize
// parallel-path arrival times.
type DelayCompTask struct {
	Kind        Kind
	Input       BufferRef
	Output      BufferRef
	DelayFrames int
}

// UnloadedPluginTask is the synthesized passthrough for a plugin whose
// activation failed or whose binary is missing.
type UnloadedPluginTask struct {
	Instance        graph.PluginInstanceID
	AudioThrough    []AudioThroughPair
	NoteThrough     *AudioThroughPair
	ClearAudioOut   []BufferRef
	ClearNoteOut    []BufferRef
	ClearAutomation *BufferRef
}

// AudioThroughPair is one (in, out) channel pair an UnloadedPlugin task
// copies verbatim.
type AudioThroughPair struct {
	In  BufferRef
	Out BufferRef
}

// Task is one scheduled unit of work. Exactly one of the typed fields
// is non-nil, selected by Kind; callers switch on Kind rather than type
// asserting.
type Task struct {
	Kind       Kind
	Plugin     *PluginTask
	Sum        *SumTask
	DelayComp  *DelayCompTask
	Unloaded   *UnloadedPluginTask
}

// Schedule is the ordered task list the audio thread walks once per
// block, produced by a compile and swapped in atomically.
type Schedule struct {
	Version uint64
	Tasks   []Task
}

// PluginTaskFor returns the PluginTask scheduled for instance, if any.
// Used by tests and by the engine's recompile to locate the master-output
// and device-input plugins' tasks.
func (s *Schedule) PluginTaskFor(instance graph.PluginInstanceID) (*PluginTask, bool) {
	for i := range s.Tasks {
		if s.Tasks[i].Kind == KindPlugin && s.Tasks[i].Plugin.Instance.NodeID == instance.NodeID {
			return s.Tasks[i].Plugin, true
		}
	}
	return nil, false
}
