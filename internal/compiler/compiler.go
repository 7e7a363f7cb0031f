// Package compiler implements the six-pass graph compiler: sum-node
// insertion, latency/delay-comp solve, topological linearization,
// buffer assignment by interval coloring, unloaded-plugin folding, and
// verification.
package compiler

import (
	"fmt"
	"sort"

	"github.com/meadowlark-audio/engine/internal/bufpool"
	"github.com/meadowlark-audio/engine/internal/engineerr"
	"github.com/meadowlark-audio/engine/internal/graph"
	"github.com/meadowlark-audio/engine/internal/schedule"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// PluginInfo is the per-instance metadata the compiler needs to reason
// about a plugin, supplied by the plugin host's main thread. A nil
// Processor means the plugin is unloaded (activation failed or its
// binary is missing), triggering unloaded-plugin folding.
type PluginInfo struct {
	Instance         graph.PluginInstanceID
	AudioPorts       pluginabi.AudioPortsExt
	NotePorts        pluginabi.NotePortsExt
	Latency          int64
	Processor        pluginabi.Processor
	HasAutomationOut bool
}

// op is one entry in the linear (pre-buffer-assignment) task list built
// by Passes 1-3, referencing virtual SSA buffer ids instead of pool
// indices. Exactly the fields relevant to Kind are populated.
type op struct {
	kind     schedule.Kind
	instance graph.PluginInstanceID // Plugin/UnloadedPlugin only

	audioIn, audioOut           []int
	noteIn, noteOut             []int
	automationIn, automationOut []int // len 0 or 1

	delayFrames int // DelayComp only; in/out use audioIn[0]/audioOut[0]
}

// Compile produces a Schedule from g and infos. On any error the caller
// should keep its previous schedule rather than swap in a zero value.
func Compile(g *graph.Graph, infos map[int64]PluginInfo, pool *bufpool.Pool, version uint64) (*schedule.Schedule, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, engineerr.CycleDetected{}
	}
	for _, inst := range order {
		if err := validateUniquePortIDs(infos[inst.NodeID]); err != nil {
			return nil, err
		}
	}

	c := &compilation{
		virtualType:    map[int]bufpool.BufferType{},
		virtualArrival: map[int]int64{},
		sourceOf:       map[outputKey]int{},
		fanIn:          map[graph.PluginInstanceID]map[graph.PortChannelID][]graph.EdgeID{},
	}
	for _, e := range g.Edges() {
		if c.fanIn[e.DstPlugin] == nil {
			c.fanIn[e.DstPlugin] = map[graph.PortChannelID][]graph.EdgeID{}
		}
		c.fanIn[e.DstPlugin][e.DstChannel] = append(c.fanIn[e.DstPlugin][e.DstChannel], e)
	}

	for _, inst := range order {
		info, ok := infos[inst.NodeID]
		if !ok {
			continue
		}
		c.visitInstance(inst, info)
	}

	sched, err := assignBuffers(c.ops, infos, c.virtualType, pool)
	if err != nil {
		return nil, err
	}
	sched.Version = version

	if err := verify(sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// compilation holds the mutable state threaded through Passes 1-3 while
// walking the graph's topological order once.
type compilation struct {
	ops            []op
	nextVirtual    int
	virtualType    map[int]bufpool.BufferType
	virtualArrival map[int]int64 // Pass 2: frame at which a virtual's data is ready
	sourceOf       map[outputKey]int
	fanIn          map[graph.PluginInstanceID]map[graph.PortChannelID][]graph.EdgeID
}

// outputKey names one output channel of one plugin instance.
type outputKey struct {
	node int64
	ch   graph.PortChannelID
}

func (c *compilation) newVirtual(t bufpool.BufferType, arrival int64) int {
	v := c.nextVirtual
	c.nextVirtual++
	c.virtualType[v] = t
	c.virtualArrival[v] = arrival
	return v
}

type inputEdge struct {
	srcVirtual int
	arrival    int64
}

// visitInstance resolves one plugin (or unloaded-plugin) instance's
// inputs (Pass 1 sum insertion + Pass 2 delay-comp) and allocates fresh
// virtuals for its outputs, appending the resulting op(s) to c.ops.
func (c *compilation) visitInstance(inst graph.PluginInstanceID, info PluginInfo) {
	audioEdges := c.collectEdges(inst, info.AudioPorts.Inputs, graph.PortAudio)
	noteEdges := c.collectEdges(inst, notePortsAsAudio(info.NotePorts.Inputs), graph.PortNote)

	// Pass 2: the node's required arrival is the max over every
	// incoming edge of (source arrival + source's own latency); the
	// source's arrival already includes its own latency since it was
	// computed as outArrival when that source instance was visited.
	var nodeArrival int64
	for _, edges := range audioEdges {
		for _, e := range edges {
			if e.arrival > nodeArrival {
				nodeArrival = e.arrival
			}
		}
	}
	for _, edges := range noteEdges {
		for _, e := range edges {
			if e.arrival > nodeArrival {
				nodeArrival = e.arrival
			}
		}
	}

	audioIn := c.resolveInputs(info.AudioPorts.Inputs, audioEdges, graph.PortAudio, bufpool.TypeAudio, nodeArrival)
	noteIn := c.resolveInputs(notePortsAsAudio(info.NotePorts.Inputs), noteEdges, graph.PortNote, bufpool.TypeNote, nodeArrival)

	outArrival := nodeArrival + info.Latency

	audioOut := make([]int, len(info.AudioPorts.Outputs))
	for i, p := range info.AudioPorts.Outputs {
		v := c.newVirtual(bufpool.TypeAudio, outArrival)
		audioOut[i] = v
		c.sourceOf[outputKey{inst.NodeID, graph.PortChannelID{StableID: p.StableID, Type: graph.PortAudio, IsInput: false}}] = v
	}
	noteOut := make([]int, len(info.NotePorts.Outputs))
	for i, p := range info.NotePorts.Outputs {
		v := c.newVirtual(bufpool.TypeNote, outArrival)
		noteOut[i] = v
		c.sourceOf[outputKey{inst.NodeID, graph.PortChannelID{StableID: p.StableID, Type: graph.PortNote, IsInput: false}}] = v
	}
	var autoOut []int
	if info.HasAutomationOut {
		autoOut = []int{c.newVirtual(bufpool.TypeAutomation, outArrival)}
	}

	kind := schedule.KindPlugin
	if info.Processor == nil {
		kind = schedule.KindUnloadedPlugin
	}
	c.ops = append(c.ops, op{
		kind:          kind,
		instance:      inst,
		audioIn:       audioIn,
		audioOut:      audioOut,
		noteIn:        noteIn,
		noteOut:       noteOut,
		automationOut: autoOut,
	})
}

func (c *compilation) collectEdges(inst graph.PluginInstanceID, ports []pluginabi.AudioPortInfo, ptype graph.PortType) map[graph.PortChannelID][]inputEdge {
	out := map[graph.PortChannelID][]inputEdge{}
	for _, p := range ports {
		ch := graph.PortChannelID{StableID: p.StableID, Type: ptype, IsInput: true}
		for _, e := range c.fanIn[inst][ch] {
			srcCh := graph.PortChannelID{StableID: e.SrcChannel.StableID, Type: ptype, IsInput: false}
			v := c.sourceOf[outputKey{e.SrcPlugin.NodeID, srcCh}]
			out[ch] = append(out[ch], inputEdge{srcVirtual: v, arrival: c.virtualArrival[v]})
		}
	}
	return out
}

// resolveInputs implements, per input channel: Pass 2 delay-comp
// (equalize each edge's arrival to nodeArrival) then Pass 1 sum
// insertion (k=0 clears, k=1 passes through, k>=2 sums).
func (c *compilation) resolveInputs(ports []pluginabi.AudioPortInfo, edgesByChannel map[graph.PortChannelID][]inputEdge, ptype graph.PortType, btype bufpool.BufferType, nodeArrival int64) []int {
	out := make([]int, len(ports))
	for i, p := range ports {
		ch := graph.PortChannelID{StableID: p.StableID, Type: ptype, IsInput: true}
		edges := edgesByChannel[ch]
		if len(edges) == 0 {
			out[i] = c.newVirtual(btype, nodeArrival)
			continue
		}

		equalized := make([]int, len(edges))
		for j, e := range edges {
			if e.arrival < nodeArrival {
				delay := nodeArrival - e.arrival
				dcOut := c.newVirtual(btype, nodeArrival)
				c.ops = append(c.ops, op{
					kind:        delayCompKind(ptype),
					audioIn:     []int{e.srcVirtual},
					audioOut:    []int{dcOut},
					delayFrames: int(delay),
				})
				equalized[j] = dcOut
			} else {
				equalized[j] = e.srcVirtual
			}
		}

		if len(equalized) == 1 {
			out[i] = equalized[0]
			continue
		}
		sumOut := c.newVirtual(btype, nodeArrival)
		c.ops = append(c.ops, op{kind: sumKind(ptype), audioIn: equalized, audioOut: []int{sumOut}})
		out[i] = sumOut
	}
	return out
}

func sumKind(ptype graph.PortType) schedule.Kind {
	switch ptype {
	case graph.PortNote:
		return schedule.KindNoteSum
	case graph.PortAutomation:
		return schedule.KindAutomationSum
	default:
		return schedule.KindAudioSum
	}
}

func delayCompKind(ptype graph.PortType) schedule.Kind {
	switch ptype {
	case graph.PortNote:
		return schedule.KindNoteDelayComp
	case graph.PortAutomation:
		return schedule.KindAutomationDelayComp
	default:
		return schedule.KindAudioDelayComp
	}
}

func notePortsAsAudio(ports []pluginabi.NotePortInfo) []pluginabi.AudioPortInfo {
	out := make([]pluginabi.AudioPortInfo, len(ports))
	for i, p := range ports {
		out[i] = pluginabi.AudioPortInfo{StableID: p.StableID, DisplayName: p.DisplayName}
	}
	return out
}

func validateUniquePortIDs(info PluginInfo) error {
	check := func(ports []pluginabi.AudioPortInfo, isInput bool, mk func(bool, uint32) error) error {
		seen := map[uint32]bool{}
		for _, p := range ports {
			if seen[p.StableID] {
				return mk(isInput, p.StableID)
			}
			seen[p.StableID] = true
		}
		return nil
	}
	audioErr := func(isInput bool, id uint32) error { return engineerr.AudioPortsExtDuplicateID{IsInput: isInput, ID: id} }
	noteErr := func(isInput bool, id uint32) error { return engineerr.NotePortsExtDuplicateID{IsInput: isInput, ID: id} }

	if err := check(info.AudioPorts.Inputs, true, audioErr); err != nil {
		return err
	}
	if err := check(info.AudioPorts.Outputs, false, audioErr); err != nil {
		return err
	}
	if err := check(notePortsAsAudio(info.NotePorts.Inputs), true, noteErr); err != nil {
		return err
	}
	if err := check(notePortsAsAudio(info.NotePorts.Outputs), false, noteErr); err != nil {
		return err
	}
	return nil
}

// liveInterval tracks [producedAt, lastConsumedAt] for Pass 4's
// interval-graph coloring, indexed by op position in the linear order.
type liveInterval struct {
	virtual    int
	typ        bufpool.BufferType
	start, end int
}

// assignBuffers implements Pass 4: treat each virtual as an SSA value
// with a liveness interval, then color (assign a physical pool index)
// greedily by type, reusing the lowest-index buffer whose interval has
// already ended.
func assignBuffers(ops []op, infos map[int64]PluginInfo, virtualType map[int]bufpool.BufferType, pool *bufpool.Pool) (*schedule.Schedule, error) {
	intervals := map[int]*liveInterval{}
	touch := func(v, at int) {
		iv, ok := intervals[v]
		if !ok {
			intervals[v] = &liveInterval{virtual: v, typ: virtualType[v], start: at, end: at}
			return
		}
		if at > iv.end {
			iv.end = at
		}
	}
	for i, o := range ops {
		for _, v := range o.audioOut {
			touch(v, i)
		}
		for _, v := range o.noteOut {
			touch(v, i)
		}
		for _, v := range o.automationOut {
			touch(v, i)
		}
		for _, v := range o.audioIn {
			touch(v, i)
		}
		for _, v := range o.noteIn {
			touch(v, i)
		}
		for _, v := range o.automationIn {
			touch(v, i)
		}
	}

	sortedVirtuals := make([]*liveInterval, 0, len(intervals))
	for _, iv := range intervals {
		sortedVirtuals = append(sortedVirtuals, iv)
	}
	sort.Slice(sortedVirtuals, func(i, j int) bool { return sortedVirtuals[i].start < sortedVirtuals[j].start })

	assigned := map[int]bufpool.DebugBufferID{}
	type freeEntry struct {
		id      bufpool.DebugBufferID
		freedAt int
	}
	free := map[bufpool.BufferType][]freeEntry{}
	nextIndex := map[bufpool.BufferType]uint32{}

	for _, iv := range sortedVirtuals {
		var reused *bufpool.DebugBufferID
		pending := free[iv.typ][:0]
		for _, f := range free[iv.typ] {
			if reused == nil && f.freedAt < iv.start {
				id := f.id
				reused = &id
				continue
			}
			pending = append(pending, f)
		}
		free[iv.typ] = pending

		var id bufpool.DebugBufferID
		if reused != nil {
			id = *reused
		} else if iv.typ == bufpool.TypeAudio {
			id = bufpool.DebugBufferID{Type: bufpool.TypeAudio, Index: pool.AddAudio()}
		} else {
			id = bufpool.DebugBufferID{Type: iv.typ, Index: nextIndex[iv.typ]}
			nextIndex[iv.typ]++
		}
		assigned[iv.virtual] = id
		free[iv.typ] = append(free[iv.typ], freeEntry{id: id, freedAt: iv.end})
	}

	ref := func(v int) schedule.BufferRef {
		id := assigned[v]
		return schedule.BufferRef{Type: id.Type, Index: id.Index}
	}
	refs := func(vs []int) []schedule.BufferRef {
		out := make([]schedule.BufferRef, len(vs))
		for i, v := range vs {
			out[i] = ref(v)
		}
		return out
	}

	tasks := make([]schedule.Task, 0, len(ops))
	for _, o := range ops {
		switch o.kind {
		case schedule.KindPlugin:
			info := infos[o.instance.NodeID]
			t := schedule.Task{Kind: schedule.KindPlugin, Plugin: &schedule.PluginTask{
				Instance:  o.instance,
				Processor: info.Processor,
				AudioIn:   refs(o.audioIn),
				AudioOut:  refs(o.audioOut),
				NoteIn:    refs(o.noteIn),
				NoteOut:   refs(o.noteOut),
			}}
			if len(o.automationOut) == 1 {
				r := ref(o.automationOut[0])
				t.Plugin.AutomationOut = &r
			}
			tasks = append(tasks, t)
		case schedule.KindUnloadedPlugin:
			tasks = append(tasks, foldUnloaded(o, refs))
		case schedule.KindAudioSum, schedule.KindNoteSum, schedule.KindAutomationSum:
			tasks = append(tasks, schedule.Task{Kind: o.kind, Sum: &schedule.SumTask{
				Kind:   o.kind,
				Inputs: refs(o.audioIn),
				Output: ref(o.audioOut[0]),
			}})
		case schedule.KindAudioDelayComp, schedule.KindNoteDelayComp, schedule.KindAutomationDelayComp:
			tasks = append(tasks, schedule.Task{Kind: o.kind, DelayComp: &schedule.DelayCompTask{
				Kind:        o.kind,
				Input:       ref(o.audioIn[0]),
				Output:      ref(o.audioOut[0]),
				DelayFrames: o.delayFrames,
			}})
		}
	}

	return &schedule.Schedule{Tasks: tasks}, nil
}

// foldUnloaded implements Pass 5: synthesize a passthrough task for a
// plugin whose Processor is nil.
func foldUnloaded(o op, refs func([]int) []schedule.BufferRef) schedule.Task {
	ins, outs := refs(o.audioIn), refs(o.audioOut)
	n := len(ins)
	if len(outs) < n {
		n = len(outs)
	}
	audioThrough := make([]schedule.AudioThroughPair, 0, n)
	for i := 0; i < n; i++ {
		audioThrough = append(audioThrough, schedule.AudioThroughPair{In: ins[i], Out: outs[i]})
	}
	clearAudio := outs[n:]

	var noteThrough *schedule.AudioThroughPair
	noteIns, noteOuts := refs(o.noteIn), refs(o.noteOut)
	var clearNote []schedule.BufferRef
	if len(noteIns) > 0 && len(noteOuts) > 0 {
		noteThrough = &schedule.AudioThroughPair{In: noteIns[0], Out: noteOuts[0]}
		clearNote = noteOuts[1:]
	} else {
		clearNote = noteOuts
	}

	return schedule.Task{Kind: schedule.KindUnloadedPlugin, Unloaded: &schedule.UnloadedPluginTask{
		Instance:      o.instance,
		AudioThrough:  audioThrough,
		NoteThrough:   noteThrough,
		ClearAudioOut: clearAudio,
		ClearNoteOut:  clearNote,
	}}
}

// verify implements Pass 6: no buffer ID repeats within one task's
// inputs+outputs, every sum task has >=2 inputs, every delay-comp task
// has distinct in/out, every plugin instance appears in at most one
// Plugin task.
func verify(s *schedule.Schedule) error {
	seenInstance := map[int64]bool{}
	for _, t := range s.Tasks {
		switch t.Kind {
		case schedule.KindPlugin:
			id := t.Plugin.Instance.NodeID
			if seenInstance[id] {
				return engineerr.PluginInstanceAppearsTwice{Instance: t.Plugin.Instance.String()}
			}
			seenInstance[id] = true
			all := append(append(append(append([]schedule.BufferRef{}, t.Plugin.AudioIn...), t.Plugin.AudioOut...), t.Plugin.NoteIn...), t.Plugin.NoteOut...)
			if err := noRepeats(all); err != nil {
				return err
			}
		case schedule.KindAudioSum, schedule.KindNoteSum, schedule.KindAutomationSum:
			if len(t.Sum.Inputs) < 2 {
				return engineerr.SumNodeWithLessThanTwoInputs{}
			}
			if err := noRepeats(append(append([]schedule.BufferRef{}, t.Sum.Inputs...), t.Sum.Output)); err != nil {
				return err
			}
		case schedule.KindUnloadedPlugin:
			var all []schedule.BufferRef
			for _, p := range t.Unloaded.AudioThrough {
				all = append(all, p.In, p.Out)
			}
			if t.Unloaded.NoteThrough != nil {
				all = append(all, t.Unloaded.NoteThrough.In, t.Unloaded.NoteThrough.Out)
			}
			all = append(append(all, t.Unloaded.ClearAudioOut...), t.Unloaded.ClearNoteOut...)
			if err := noRepeats(all); err != nil {
				return err
			}
		case schedule.KindAudioDelayComp, schedule.KindNoteDelayComp, schedule.KindAutomationDelayComp:
			if t.DelayComp.Input == t.DelayComp.Output {
				return fmt.Errorf("delay-comp task has identical input and output buffer %+v", t.DelayComp.Input)
			}
		}
	}
	return nil
}

func noRepeats(refs []schedule.BufferRef) error {
	seen := map[schedule.BufferRef]bool{}
	for _, r := range refs {
		if seen[r] {
			return engineerr.BufferAppearsTwiceInSameTask{Buffer: fmt.Sprintf("%+v", r)}
		}
		seen[r] = true
	}
	return nil
}
