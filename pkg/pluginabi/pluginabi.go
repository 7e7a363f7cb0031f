// Package pluginabi defines the host-side view of the plugin ABI: ports,
// parameters, activation, and the process-status codes a plugin's audio
// callback returns. Concrete plugins are black-box collaborators; this
// package only names the contract the host programs against.
package pluginabi

import "github.com/meadowlark-audio/engine/pkg/event"

// ProcessStatus is the status a plugin's Process call returns, identical
// in meaning to CLAP's clap_process_status.
type ProcessStatus int32

const (
	ProcessError              ProcessStatus = 0
	ProcessContinue           ProcessStatus = 1
	ProcessContinueIfNotQuiet ProcessStatus = 2
	ProcessTail               ProcessStatus = 3
	ProcessSleep              ProcessStatus = 4
)

func (s ProcessStatus) String() string {
	switch s {
	case ProcessError:
		return "error"
	case ProcessContinue:
		return "continue"
	case ProcessContinueIfNotQuiet:
		return "continue_if_not_quiet"
	case ProcessTail:
		return "tail"
	case ProcessSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// PortType distinguishes the three edge-carrying port kinds.
type PortType int

const (
	PortAudio PortType = iota
	PortNote
	PortAutomation
)

// AudioPortInfo describes one audio port a plugin declares.
type AudioPortInfo struct {
	StableID    uint32
	Channels    int
	IsMain      bool
	DisplayName string
}

// MainPortsLayout enumerates how a plugin's main audio ports are arranged.
type MainPortsLayout int

const (
	MainPortsInOut MainPortsLayout = iota
	MainPortsInOnly
	MainPortsOutOnly
	MainPortsNone
)

// AudioPortsExt is the result of a plugin's audio_ports_ext() call.
type AudioPortsExt struct {
	Inputs          []AudioPortInfo
	Outputs         []AudioPortInfo
	MainPortsLayout MainPortsLayout
}

// NotePortInfo describes one note port a plugin declares.
type NotePortInfo struct {
	StableID    uint32
	DisplayName string
}

// NotePortsExt is the result of a plugin's note_ports_ext() call.
type NotePortsExt struct {
	Inputs  []NotePortInfo
	Outputs []NotePortInfo
}

// ParamInfo describes one plugin parameter.
type ParamInfo struct {
	ID           uint32
	Name         string
	MinValue     float64
	MaxValue     float64
	DefaultValue float64
	Flags        uint32
}

// Parameter flags, matching CLAP's clap_param_info_flags bit layout.
const (
	ParamIsSteppable    uint32 = 1 << 0
	ParamIsHidden       uint32 = 1 << 2
	ParamIsReadonly     uint32 = 1 << 3
	ParamIsBypass       uint32 = 1 << 4
	ParamIsAutomatable  uint32 = 1 << 5
	ParamIsModulatable  uint32 = 1 << 10
	ParamIsBoundedBelow uint32 = 1 << 12
	ParamIsBoundedAbove uint32 = 1 << 13
)

// ActivatedInfo is what a successful Activate call hands back to the
// host.
type ActivatedInfo struct {
	// InternalHandle is an opaque cookie a plugin may use to recognize
	// itself across activations (e.g. the timeline/sample-browser
	// internal producers use it to rebind their renderer snapshot).
	InternalHandle any
}

// MainThread is the set of operations the plugin host's main thread calls.
// Every method here may allocate or block briefly; none are ever called
// from the audio thread.
type MainThread interface {
	// Activate prepares the plugin for processing at the given block-size
	// bounds. Returning an error leaves the plugin in InactiveWithError.
	Activate(sampleRate float64, minFrames, maxFrames uint32) (ActivatedInfo, error)

	// Deactivate releases resources acquired by Activate. Only called
	// once the audio thread has confirmed it dropped its Processor
	// reference.
	Deactivate()

	AudioPortsExt() AudioPortsExt
	NotePortsExt() NotePortsExt

	NumParams() int
	ParamInfo(index int) ParamInfo
	ParamValue(id uint32) (float64, bool)
	ParamValueToText(id uint32, value float64) string
	ParamTextToValue(id uint32, text string) (float64, bool)

	// Latency returns the plugin's declared processing latency in
	// frames. Must stay constant while the plugin is active.
	Latency() int64

	CollectSaveState() ([]byte, bool)
	LoadSaveState(data []byte) error
}

// Processor is the realtime half of a plugin, owned by the audio thread
// while the plugin is active.
type Processor interface {
	StartProcessing() bool
	StopProcessing()

	// Process runs one audio block. audioIn/audioOut are per-channel
	// sample slices already sized to the block's frame count; inEvents
	// is time-ordered; outEvents receives events the plugin wants to
	// emit this block.
	Process(steadyTime int64, frames uint32, audioIn, audioOut [][]float32, inEvents *event.InputBuffer, outEvents *event.OutputBuffer) ProcessStatus
}

// AutomationProducer is implemented by internal plugins that emit
// automation events (timeline, macros); the automation-out port only
// exists for plugins that implement this interface.
type AutomationProducer interface {
	Processor
	ProcessWithAutomationOut(steadyTime int64, frames uint32, audioIn, audioOut [][]float32, inEvents *event.InputBuffer, outEvents, automationOut *event.OutputBuffer) ProcessStatus
}

// Factory creates plugin instances by reverse-DNS id ("rdn"). An
// internal (in-process) factory and an external dynamic-library factory
// both satisfy this interface.
type Factory interface {
	// Create instantiates a plugin's main-thread half. The returned
	// MainThread is not yet activated.
	Create(rdn string) (MainThread, error)
}
