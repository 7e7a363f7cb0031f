package pluginhost

import (
	"fmt"

	"github.com/meadowlark-audio/engine/internal/engineerr"
	"github.com/meadowlark-audio/engine/internal/graph"
	"github.com/meadowlark-audio/engine/internal/reducingqueue"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// Instance bundles a plugin's main-thread half with the Channel and
// Processor wrapper it shares with the audio thread, plus its port-sync
// bookkeeping.
type Instance struct {
	ID      graph.PluginInstanceID
	Main    pluginabi.MainThread
	Channel *Channel
	Proc    *Processor

	audioPorts pluginabi.AudioPortsExt
	notePorts  pluginabi.NotePortsExt

	cachedParams []float64
}

// NewInstance constructs an Instance from a freshly created,
// not-yet-activated plugin. The channel starts Inactive.
func NewInstance(id graph.PluginInstanceID, main pluginabi.MainThread) *Instance {
	return &Instance{ID: id, Main: main, Channel: NewChannel(main.NumParams())}
}

// Activate runs the Inactive -> Active transition: calls activate(),
// and on success builds the processor wrapper and publishes the
// activation state. Must only be called from the main thread.
func (inst *Instance) Activate(sampleRate float64, minFrames, maxFrames uint32) error {
	if _, err := inst.Main.Activate(sampleRate, minFrames, maxFrames); err != nil {
		inst.Channel.MarkErrored()
		return engineerr.PluginFailedToActivate{Cause: err}
	}

	if err := validateUniquePortIDs(inst.Main.AudioPortsExt(), inst.Main.NotePortsExt()); err != nil {
		inst.Channel.MarkErrored()
		return err
	}
	inst.audioPorts = inst.Main.AudioPortsExt()
	inst.notePorts = inst.Main.NotePortsExt()

	proc, ok := inst.Main.(pluginabi.Processor)
	if !ok {
		inst.Channel.MarkErrored()
		return fmt.Errorf("plugin %s's MainThread does not expose a Processor", inst.ID)
	}
	inst.Proc = NewProcessor(inst.Channel, proc, sampleRate)
	inst.cachedParams = make([]float64, inst.Main.NumParams())
	for i := 0; i < inst.Main.NumParams(); i++ {
		if v, ok := inst.Main.ParamValue(inst.Main.ParamInfo(i).ID); ok {
			inst.cachedParams[i] = v
		}
	}
	inst.Channel.RequestActivate()
	return nil
}

// RequestDeactivate begins the Active -> WaitingToDrop transition.
func (inst *Instance) RequestDeactivate() { inst.Channel.RequestDeactivate() }

// PollDeactivate completes the lifecycle once the audio thread has
// observed the drop (DroppedAndReadyToDeactivate -> Inactive). Returns
// true if deactivate() was invoked this call.
func (inst *Instance) PollDeactivate() bool {
	if inst.Channel.State() != StateDroppedAndReadyToDeactivate {
		return false
	}
	inst.Main.Deactivate()
	inst.Channel.FinishDeactivate()
	inst.Proc = nil
	return true
}

// PollParameterMirror drains plugin-initiated parameter changes into
// the cached values the GUI reads.
func (inst *Instance) PollParameterMirror() {
	inst.Channel.DrainMirror(func(paramIndex int, u reducingqueue.Update) {
		if u.HasValue && paramIndex >= 0 && paramIndex < len(inst.cachedParams) {
			inst.cachedParams[paramIndex] = u.Value
		}
	})
}

// CachedParamValue returns the main thread's mirrored value for a
// parameter index, for GUI readout without touching the audio thread.
func (inst *Instance) CachedParamValue(paramIndex int) float64 {
	return inst.cachedParams[paramIndex]
}

// validateUniquePortIDs rejects a plugin that declares duplicate port IDs.
func validateUniquePortIDs(audio pluginabi.AudioPortsExt, notes pluginabi.NotePortsExt) error {
	seen := func(ids []uint32, isInput bool, audioKind bool) error {
		m := make(map[uint32]bool, len(ids))
		for _, id := range ids {
			if m[id] {
				if audioKind {
					return engineerr.AudioPortsExtDuplicateID{IsInput: isInput, ID: id}
				}
				return engineerr.NotePortsExtDuplicateID{IsInput: isInput, ID: id}
			}
			m[id] = true
		}
		return nil
	}
	ids := func(ports []pluginabi.AudioPortInfo) []uint32 {
		out := make([]uint32, len(ports))
		for i, p := range ports {
			out[i] = p.StableID
		}
		return out
	}
	noteIDs := func(ports []pluginabi.NotePortInfo) []uint32 {
		out := make([]uint32, len(ports))
		for i, p := range ports {
			out[i] = p.StableID
		}
		return out
	}
	if err := seen(ids(audio.Inputs), true, true); err != nil {
		return err
	}
	if err := seen(ids(audio.Outputs), false, true); err != nil {
		return err
	}
	if err := seen(noteIDs(notes.Inputs), true, false); err != nil {
		return err
	}
	if err := seen(noteIDs(notes.Outputs), false, false); err != nil {
		return err
	}
	return nil
}

// PortChannels enumerates every PortChannelID this instance currently
// declares, for the port-sync diff against the previous graph.
func (inst *Instance) PortChannels() []graph.PortChannelID {
	audioPorts, notePorts := inst.Main.AudioPortsExt(), inst.Main.NotePortsExt()
	var out []graph.PortChannelID
	for _, p := range audioPorts.Inputs {
		for ch := 0; ch < p.Channels; ch++ {
			out = append(out, graph.PortChannelID{StableID: p.StableID, Type: graph.PortAudio, IsInput: true, ChannelIndex: ch})
		}
	}
	for _, p := range audioPorts.Outputs {
		for ch := 0; ch < p.Channels; ch++ {
			out = append(out, graph.PortChannelID{StableID: p.StableID, Type: graph.PortAudio, IsInput: false, ChannelIndex: ch})
		}
	}
	for _, p := range notePorts.Inputs {
		out = append(out, graph.PortChannelID{StableID: p.StableID, Type: graph.PortNote, IsInput: true})
	}
	for _, p := range notePorts.Outputs {
		out = append(out, graph.PortChannelID{StableID: p.StableID, Type: graph.PortNote, IsInput: false})
	}
	// Automation-in always exists; automation-out only for internal
	// producers, detected via the AutomationProducer interface at
	// activation time.
	out = append(out, graph.PortChannelID{StableID: 0, Type: graph.PortAutomation, IsInput: true})
	if inst.Proc != nil && inst.Proc.autoOut != nil {
		out = append(out, graph.PortChannelID{StableID: 0, Type: graph.PortAutomation, IsInput: false})
	}
	return out
}

// SyncPorts diffs this instance's current port set against the
// previous one, returning the edges that must be dropped from the graph
// because they reference a now-missing channel, and whether a recompile
// is required.
func SyncPorts(g *graph.Graph, inst graph.PluginInstanceID, previous, current []graph.PortChannelID) (droppedEdges []graph.EdgeID, needsRecompile bool) {
	curSet := make(map[graph.PortChannelID]bool, len(current))
	for _, c := range current {
		curSet[c] = true
	}
	prevSet := make(map[graph.PortChannelID]bool, len(previous))
	for _, p := range previous {
		prevSet[p] = true
	}
	for p := range prevSet {
		if !curSet[p] {
			needsRecompile = true
		}
	}
	for c := range curSet {
		if !prevSet[c] {
			needsRecompile = true
		}
	}

	for _, e := range g.EdgesInto(inst) {
		if e.DstChannel.IsInput && !curSet[e.DstChannel] {
			droppedEdges = append(droppedEdges, e)
		}
	}
	for _, e := range g.Edges() {
		if e.SrcPlugin == inst && !e.SrcChannel.IsInput && !curSet[e.SrcChannel] {
			droppedEdges = append(droppedEdges, e)
		}
	}
	for _, e := range droppedEdges {
		g.Disconnect(e)
	}
	return droppedEdges, needsRecompile
}
