// Package engine implements the main-thread orchestrator: it owns the
// editable graph, the plugin registry, every live plugin instance, and
// the compiled schedule/pool pair the audio thread runs. Graph edits,
// recompiles, and the deferred plugin-deactivate drain all happen
// here, off the audio thread; RenderBlock is the only method the audio
// thread (internal/device) calls.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meadowlark-audio/engine/internal/bufpool"
	"github.com/meadowlark-audio/engine/internal/compiler"
	"github.com/meadowlark-audio/engine/internal/engineerr"
	"github.com/meadowlark-audio/engine/internal/graph"
	"github.com/meadowlark-audio/engine/internal/pluginhost"
	"github.com/meadowlark-audio/engine/internal/registry"
	"github.com/meadowlark-audio/engine/internal/schedule"
	"github.com/meadowlark-audio/engine/internal/telemetry"
	"github.com/meadowlark-audio/engine/internal/tempo"
	"github.com/meadowlark-audio/engine/internal/transport"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
	"github.com/meadowlark-audio/engine/pkg/thread"
)

// generation bundles one compiled schedule with the pool it was
// compiled against, plus the buffers designated as the hardware's
// output (see DESIGN.md's notes on the master-bus decision): the graph
// model has no built-in "system output" node, so the engine resolves
// the current master instance's AudioOut refs into this generation
// every time it recompiles and RenderBlock simply copies those buffers
// out. Swapped atomically so the audio thread never observes a
// half-built generation.
type generation struct {
	schedule  *schedule.Schedule
	pool      *bufpool.Pool
	masterOut []schedule.BufferRef
	deviceIn  []schedule.BufferRef

	// processors maps a plugin instance's graph node ID to the live
	// *pluginhost.Processor wrapper the executor calls for its
	// KindPlugin task. A wrapper persists across recompiles as long as
	// its instance stays active, so this is rebuilt fresh each compile
	// from the engine's instance map rather than carried forward; it
	// exists at all so the audio thread never touches e.instances or
	// e.mu: the audio thread only ever reads lock-free, atomically
	// published state.
	processors map[int64]*pluginhost.Processor
}

// instanceState bundles everything the engine tracks per live plugin
// instance between recompiles.
type instanceState struct {
	inst         *pluginhost.Instance
	portChannels []graph.PortChannelID
	pendingDrop  bool
}

// Engine is the main-thread owner of the plugin graph and the audio
// thread's compiled schedule. Every exported method except RenderBlock
// must only be called from the main thread.
type Engine struct {
	registry *registry.Registry
	graph    *graph.Graph

	sampleRate  float64
	blockFrames int

	mu             sync.Mutex
	instances      map[int64]*instanceState
	masterInstance graph.PluginInstanceID
	hasMaster      bool
	deviceInInst   graph.PluginInstanceID
	hasDeviceIn    bool
	nextVersion    uint64

	current   atomic.Pointer[generation]
	collector *bufpool.Collector

	transport *transport.Transport

	perf *blockPerfTracker
	log  *telemetry.Logger
}

// New builds an Engine with an empty graph, ready to accept
// ModifyGraph requests. blockFrames is the fixed per-block frame
// capacity every compiled pool is sized to.
func New(reg *registry.Registry, tempoMap *tempo.Map, sampleRate float64, blockFrames int) *Engine {
	e := &Engine{
		registry:    reg,
		graph:       graph.New(),
		sampleRate:  sampleRate,
		blockFrames: blockFrames,
		instances:   make(map[int64]*instanceState),
		collector:   bufpool.NewCollector(8),
		transport:   transport.New(tempoMap, sampleRate, blockFrames),
		perf:        newBlockPerfTracker(),
		log:         telemetry.New("engine"),
	}
	e.current.Store(&generation{
		schedule: &schedule.Schedule{Version: 0},
		pool:     bufpool.NewPool(blockFrames),
	})
	return e
}

// Transport exposes the engine's transport for main-thread control
// (play/pause, seek, loop) and UI readout.
func (e *Engine) Transport() *transport.Transport { return e.transport }

// Graph exposes the engine's graph for read-only inspection (listing
// plugins/edges for a UI); mutation must go through ModifyGraph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// SetMasterInstance designates which plugin instance's audio output is
// copied to the hardware device each block. Recompiles to resolve
// the new master's buffer assignment.
func (e *Engine) SetMasterInstance(id graph.PluginInstanceID) error {
	thread.AssertMainThread("engine.SetMasterInstance")
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.graph.HasPlugin(id) {
		return engineerr.NotFound{RDN: id.RDN}
	}
	e.masterInstance = id
	e.hasMaster = true
	return e.recompileLocked()
}

// SetDeviceInputInstance designates which plugin instance's audio input
// the device's captured input is copied into each block (the device-
// input counterpart to SetMasterInstance; see DESIGN.md). There is no
// built-in "system input" node either, so this is the same
// resolve-at-recompile approach as the master output.
func (e *Engine) SetDeviceInputInstance(id graph.PluginInstanceID) error {
	thread.AssertMainThread("engine.SetDeviceInputInstance")
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.graph.HasPlugin(id) {
		return engineerr.NotFound{RDN: id.RDN}
	}
	e.deviceInInst = id
	e.hasDeviceIn = true
	return e.recompileLocked()
}

// ModifyGraph applies a batch of graph edits: new plugins are
// instantiated and activated, removed plugins begin the deactivate
// drain (actual removal from the graph happens once PollDeactivate
// confirms the audio thread has dropped them, via Tick), and edges are
// connected/disconnected. On success a recompile is triggered
// automatically. Any failure leaves graph and instance state untouched.
func (e *Engine) ModifyGraph(req graph.ModifyGraphRequest) ([]graph.PluginInstanceID, error) {
	thread.AssertMainThread("engine.ModifyGraph")
	e.mu.Lock()
	defer e.mu.Unlock()

	// Removal is two-phase: a RemovePlugins entry here only
	// starts the drain; the graph node stays live (and scheduled) until
	// Tick observes the drop. Strip removals out of the request the
	// graph itself sees.
	graphReq := req
	graphReq.RemovePlugins = nil

	added, err := e.graph.Apply(graphReq)
	if err != nil {
		return nil, err
	}

	for i, id := range added {
		rdn := req.AddPlugins[i]
		main, cerr := e.registry.Create(rdn)
		if cerr != nil {
			e.rollbackAdded(added)
			return nil, engineerr.FactoryFailedToCreateNewInstance{Cause: cerr}
		}
		inst := pluginhost.NewInstance(id, main)
		// Activation failure is not fatal to the add: an unloaded
		// instance still occupies its graph node and is folded into a
		// passthrough task by the compiler.
		_ = inst.Activate(e.sampleRate, 1, uint32(e.blockFrames))
		st := &instanceState{inst: inst}
		if inst.Proc != nil {
			st.portChannels = inst.PortChannels()
		}
		e.instances[id.NodeID] = st
	}

	for _, id := range req.RemovePlugins {
		if st, ok := e.instances[id.NodeID]; ok && !st.pendingDrop {
			st.pendingDrop = true
			st.inst.RequestDeactivate()
		}
	}

	if err := e.recompileLocked(); err != nil {
		e.rollbackAdded(added)
		return nil, err
	}
	return added, nil
}

// rollbackAdded undoes a partially-applied add when a later step of
// ModifyGraph fails; it must be called while e.mu is held.
func (e *Engine) rollbackAdded(added []graph.PluginInstanceID) {
	for _, id := range added {
		if st, ok := e.instances[id.NodeID]; ok {
			if st.inst.Proc != nil {
				st.inst.RequestDeactivate()
			}
			delete(e.instances, id.NodeID)
		}
		e.graph.RemovePlugin(id)
	}
}

// Tick runs the main thread's periodic bookkeeping: polling the
// parameter mirror for every live instance, and completing the
// deactivate drain for instances the audio thread has dropped. Callers
// should invoke this from a timer or idle loop, not the audio callback.
func (e *Engine) Tick() {
	thread.AssertMainThread("engine.Tick")
	e.mu.Lock()
	defer e.mu.Unlock()

	var dropped []graph.PluginInstanceID
	for nodeID, st := range e.instances {
		st.inst.PollParameterMirror()
		if st.pendingDrop && st.inst.PollDeactivate() {
			dropped = append(dropped, st.inst.ID)
			delete(e.instances, nodeID)
		}
	}
	if len(dropped) == 0 {
		return
	}
	if _, err := e.graph.Apply(graph.ModifyGraphRequest{RemovePlugins: dropped}); err != nil {
		e.log.Error("removing dropped plugins from graph", "err", err)
		return
	}
	if err := e.recompileLocked(); err != nil {
		e.log.Error("recompile after plugin drop", "err", err)
	}
}

// ReconfigurePorts re-reads an instance's current port layout (e.g.
// after it loaded a preset that changes its channel count) and diffs it
// against the layout recorded at its last activation or reconfigure,
// dropping any graph edge that referenced a channel the plugin no
// longer declares. Recompiles only if the diff
// actually changes the set of channels.
func (e *Engine) ReconfigurePorts(id graph.PluginInstanceID) ([]graph.EdgeID, error) {
	thread.AssertMainThread("engine.ReconfigurePorts")
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.instances[id.NodeID]
	if !ok || st.inst.Proc == nil {
		return nil, engineerr.NotFound{RDN: id.RDN}
	}
	current := st.inst.PortChannels()
	dropped, needsRecompile := pluginhost.SyncPorts(e.graph, id, st.portChannels, current)
	st.portChannels = current
	if !needsRecompile {
		return dropped, nil
	}
	if err := e.recompileLocked(); err != nil {
		return dropped, err
	}
	return dropped, nil
}

// DrainCollector reclaims pools retired by past recompiles. Intended to
// be called periodically from a background goroutine distinct from the
// main thread and the audio thread.
func (e *Engine) DrainCollector() int { return e.collector.Drain() }

// RunCollector runs the collector thread's loop until stop is closed:
// every tick it drains retired pools and logs the block-duration
// percentile snapshot (logging happens off the audio thread).
// Intended to run on its own goroutine, started once at
// startup alongside the main thread and the audio callback.
func (e *Engine) RunCollector(stop <-chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := e.collector.Drain(); n > 0 {
				e.log.Debug("retired pools reclaimed", "count", n)
			}
			stats := e.perf.stats()
			if stats.Samples > 0 {
				e.log.Info("block duration",
					"samples", stats.Samples,
					"p50", stats.P50,
					"p99", stats.P99,
					"max", stats.Max,
				)
			}
			if checkRecentGCPause() {
				e.log.Warn("garbage collector ran within the last millisecond; block duration spikes this period may be GC, not DSP load")
			}
		}
	}
}

// recompileLocked rebuilds PluginInfo for every live instance, compiles
// a fresh schedule, resolves the master-output buffer refs, and
// atomically swaps in the new generation, retiring the old pool to the
// collector. e.mu must be held by the caller.
func (e *Engine) recompileLocked() error {
	infos := make(map[int64]compiler.PluginInfo, len(e.instances))
	procs := make(map[int64]*pluginhost.Processor, len(e.instances))
	for nodeID, st := range e.instances {
		info := compiler.PluginInfo{Instance: st.inst.ID}
		if st.inst.Proc != nil {
			main := st.inst.Main
			info.AudioPorts = main.AudioPortsExt()
			info.NotePorts = main.NotePortsExt()
			info.Latency = main.Latency()
			if proc, ok := main.(pluginabi.Processor); ok {
				info.Processor = proc
			}
			if _, ok := main.(pluginabi.AutomationProducer); ok {
				info.HasAutomationOut = true
			}
			st.portChannels = st.inst.PortChannels()
			procs[nodeID] = st.inst.Proc
		}
		infos[nodeID] = info
	}

	e.nextVersion++
	version := e.nextVersion
	pool := bufpool.NewPool(e.blockFrames)
	sched, err := compiler.Compile(e.graph, infos, pool, version)
	if err != nil {
		e.nextVersion--
		return fmt.Errorf("recompile: %w", err)
	}

	var masterOut []schedule.BufferRef
	if e.hasMaster {
		if task, ok := sched.PluginTaskFor(e.masterInstance); ok {
			masterOut = task.AudioOut
		}
	}
	var deviceIn []schedule.BufferRef
	if e.hasDeviceIn {
		if task, ok := sched.PluginTaskFor(e.deviceInInst); ok {
			deviceIn = task.AudioIn
		}
	}

	// Bump every live channel's recorded schedule version so a block
	// still in flight against the generation this is about to replace
	// sleeps instead of running against buffers the new pool doesn't
	// recognize (the processor's stale-schedule guard).
	for _, st := range e.instances {
		st.inst.Channel.SetScheduleVersion(version)
	}

	old := e.current.Load()
	e.current.Store(&generation{schedule: sched, pool: pool, masterOut: masterOut, deviceIn: deviceIn, processors: procs})
	if old != nil && old.pool != nil {
		e.collector.Retire(old.pool)
	}
	return nil
}

// RenderBlock is the audio thread's sole entry point:
// it advances the transport, executes the currently published schedule
// against its pool, and copies the master instance's output into out.
// audioIn/out are device-format non-interleaved channel slices; frames
// must not exceed the block-frame capacity the live generation was
// compiled with. Not allocation-free: every call allocates per-block
// slices (each plugin task's channel-slice headers, the transport event,
// and the transport's declick gain buffers).
func (e *Engine) RenderBlock(steadyTime int64, frames int, audioIn, audioOut [][]float32) {
	thread.AssertAudioThread("engine.RenderBlock")

	start := e.perf.beginBlock()
	info := e.transport.Advance(frames)
	gen := e.current.Load()

	for i, ref := range gen.deviceIn {
		if i >= len(audioIn) || ref.Type != bufpool.TypeAudio {
			continue
		}
		dst := gen.pool.Audio(ref.Index).Data()
		src := audioIn[i]
		n := frames
		if n > len(dst) {
			n = len(dst)
		}
		if n > len(src) {
			n = len(src)
		}
		copy(dst[:n], src[:n])
	}

	executeSchedule(gen, steadyTime, frames, info)

	for _, ch := range audioOut {
		for i := range ch {
			ch[i] = 0
		}
	}
	for i, ref := range gen.masterOut {
		if i >= len(audioOut) || ref.Type != bufpool.TypeAudio {
			continue
		}
		src := gen.pool.Audio(ref.Index).Data()
		dst := audioOut[i]
		n := frames
		if n > len(src) {
			n = len(src)
		}
		if n > len(dst) {
			n = len(dst)
		}
		copy(dst[:n], src[:n])
	}
	e.perf.endBlock(start)
}

// Descriptors forwards to the registry, for a UI's "add plugin" picker.
func (e *Engine) Descriptors() []registry.Descriptor { return e.registry.Descriptors() }

// CachedParamValue reads the main-thread parameter mirror for one
// instance, for GUI readout without touching the audio thread.
func (e *Engine) CachedParamValue(id graph.PluginInstanceID, paramIndex int) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.instances[id.NodeID]
	if !ok {
		return 0, false
	}
	return st.inst.CachedParamValue(paramIndex), true
}

// PerfStats returns the engine's block-duration percentile snapshot,
// for the collector thread to log periodically.
func (e *Engine) PerfStats() BlockPerfStats { return e.perf.stats() }
