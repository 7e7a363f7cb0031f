package engine

import (
	"testing"

	"github.com/meadowlark-audio/engine/internal/graph"
	"github.com/meadowlark-audio/engine/internal/registry"
	"github.com/meadowlark-audio/engine/internal/tempo"
	"github.com/meadowlark-audio/engine/pkg/event"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// fixturePlugin is a minimal pluginabi.MainThread + Processor used to
// exercise the engine without a real CLAP plugin: it either emits a
// constant signal or copies its input to its output, scaled by gain.
type fixturePlugin struct {
	ports       pluginabi.AudioPortsExt
	gain        float32
	constant    float32
	useConstant bool
}

func (p *fixturePlugin) Activate(sampleRate float64, minFrames, maxFrames uint32) (pluginabi.ActivatedInfo, error) {
	return pluginabi.ActivatedInfo{}, nil
}
func (p *fixturePlugin) Deactivate()                             {}
func (p *fixturePlugin) AudioPortsExt() pluginabi.AudioPortsExt  { return p.ports }
func (p *fixturePlugin) NotePortsExt() pluginabi.NotePortsExt    { return pluginabi.NotePortsExt{} }
func (p *fixturePlugin) NumParams() int                          { return 0 }
func (p *fixturePlugin) ParamInfo(index int) pluginabi.ParamInfo { return pluginabi.ParamInfo{} }
func (p *fixturePlugin) ParamValue(id uint32) (float64, bool)    { return 0, false }
func (p *fixturePlugin) ParamValueToText(id uint32, value float64) string       { return "" }
func (p *fixturePlugin) ParamTextToValue(id uint32, text string) (float64, bool) { return 0, false }
func (p *fixturePlugin) Latency() int64                   { return 0 }
func (p *fixturePlugin) CollectSaveState() ([]byte, bool) { return nil, false }
func (p *fixturePlugin) LoadSaveState(data []byte) error  { return nil }

func (p *fixturePlugin) StartProcessing() bool { return true }
func (p *fixturePlugin) StopProcessing()       {}
func (p *fixturePlugin) Process(steadyTime int64, frames uint32, in, out [][]float32, inE *event.InputBuffer, outE *event.OutputBuffer) pluginabi.ProcessStatus {
	for c := range out {
		for i := range out[c] {
			switch {
			case p.useConstant:
				out[c][i] = p.constant
			case c < len(in) && i < len(in[c]):
				out[c][i] = in[c][i] * p.gain
			default:
				out[c][i] = 0
			}
		}
	}
	return pluginabi.ProcessContinue
}

var _ pluginabi.MainThread = (*fixturePlugin)(nil)
var _ pluginabi.Processor = (*fixturePlugin)(nil)

func monoPort(stableID uint32) pluginabi.AudioPortInfo {
	return pluginabi.AudioPortInfo{StableID: stableID, Channels: 1, IsMain: true}
}

func newTestEngine(t *testing.T, rdn string, construct func() pluginabi.MainThread) (*Engine, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	reg.Register(registry.Descriptor{RDN: rdn}, construct)
	tempoMap := tempo.NewConstantMap(48000, 120, tempo.Signature{Numerator: 4, Denominator: 4})
	return New(reg, tempoMap, 48000, 4), reg
}

func TestRenderBlockCopiesMasterOutputToDevice(t *testing.T) {
	ports := pluginabi.AudioPortsExt{Outputs: []pluginabi.AudioPortInfo{monoPort(1)}, MainPortsLayout: pluginabi.MainPortsOutOnly}
	eng, _ := newTestEngine(t, "test.const", func() pluginabi.MainThread {
		return &fixturePlugin{ports: ports, useConstant: true, constant: 0.5}
	})

	ids, err := eng.ModifyGraph(graph.ModifyGraphRequest{AddPlugins: []string{"test.const"}})
	if err != nil {
		t.Fatalf("ModifyGraph: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %d, want 1", len(ids))
	}
	if err := eng.SetMasterInstance(ids[0]); err != nil {
		t.Fatalf("SetMasterInstance: %v", err)
	}

	audioOut := [][]float32{make([]float32, 4)}
	eng.RenderBlock(0, 4, nil, audioOut)

	for i, v := range audioOut[0] {
		if v != 0.5 {
			t.Fatalf("audioOut[0][%d] = %v, want 0.5", i, v)
		}
	}
}

func TestRenderBlockRoutesDeviceInputToDesignatedInstance(t *testing.T) {
	ports := pluginabi.AudioPortsExt{
		Inputs:  []pluginabi.AudioPortInfo{monoPort(0)},
		Outputs: []pluginabi.AudioPortInfo{monoPort(1)},
	}
	eng, _ := newTestEngine(t, "test.passthrough", func() pluginabi.MainThread {
		return &fixturePlugin{ports: ports, gain: 1}
	})

	ids, err := eng.ModifyGraph(graph.ModifyGraphRequest{AddPlugins: []string{"test.passthrough"}})
	if err != nil {
		t.Fatalf("ModifyGraph: %v", err)
	}
	id := ids[0]
	if err := eng.SetMasterInstance(id); err != nil {
		t.Fatalf("SetMasterInstance: %v", err)
	}
	if err := eng.SetDeviceInputInstance(id); err != nil {
		t.Fatalf("SetDeviceInputInstance: %v", err)
	}

	audioIn := [][]float32{{1, 2, 3, 4}}
	audioOut := [][]float32{make([]float32, 4)}
	eng.RenderBlock(0, 4, audioIn, audioOut)

	want := []float32{1, 2, 3, 4}
	for i := range want {
		if audioOut[0][i] != want[i] {
			t.Fatalf("audioOut[0][%d] = %v, want %v", i, audioOut[0][i], want[i])
		}
	}
}

func TestModifyGraphTwoPhaseRemoval(t *testing.T) {
	eng, _ := newTestEngine(t, "test.silent", func() pluginabi.MainThread {
		return &fixturePlugin{ports: pluginabi.AudioPortsExt{MainPortsLayout: pluginabi.MainPortsNone}}
	})

	ids, err := eng.ModifyGraph(graph.ModifyGraphRequest{AddPlugins: []string{"test.silent"}})
	if err != nil {
		t.Fatalf("ModifyGraph add: %v", err)
	}
	id := ids[0]

	// A block while the instance is still active.
	eng.RenderBlock(0, 4, nil, nil)

	if _, err := eng.ModifyGraph(graph.ModifyGraphRequest{RemovePlugins: []graph.PluginInstanceID{id}}); err != nil {
		t.Fatalf("ModifyGraph remove: %v", err)
	}
	if !eng.Graph().HasPlugin(id) {
		t.Fatalf("plugin removed from graph before the audio thread observed the drop")
	}

	// The audio thread's next block observes WaitingToDrop and completes
	// the drop on the channel.
	eng.RenderBlock(1, 4, nil, nil)

	eng.Tick()
	if eng.Graph().HasPlugin(id) {
		t.Fatalf("plugin still in graph after Tick drained the deactivate")
	}
	if _, ok := eng.instances[id.NodeID]; ok {
		t.Fatalf("instance state not cleaned up after drop")
	}
}

func TestRecompileBumpsLiveInstancesToNewScheduleVersion(t *testing.T) {
	eng, _ := newTestEngine(t, "test.silent", func() pluginabi.MainThread {
		return &fixturePlugin{ports: pluginabi.AudioPortsExt{MainPortsLayout: pluginabi.MainPortsNone}}
	})

	ids, err := eng.ModifyGraph(graph.ModifyGraphRequest{AddPlugins: []string{"test.silent"}})
	if err != nil {
		t.Fatalf("ModifyGraph: %v", err)
	}
	id := ids[0]

	gen := eng.current.Load()
	st := eng.instances[id.NodeID]
	if st.inst.Channel.ScheduleVersion() != gen.schedule.Version {
		t.Fatalf("channel schedule version = %d, want %d", st.inst.Channel.ScheduleVersion(), gen.schedule.Version)
	}

	// Adding a second plugin forces another recompile; the first
	// instance's channel must track the new version too, or a block
	// already in flight against the old generation would be accepted
	// against the new one's (possibly incompatible) buffer layout.
	if _, err := eng.ModifyGraph(graph.ModifyGraphRequest{AddPlugins: []string{"test.silent"}}); err != nil {
		t.Fatalf("ModifyGraph second add: %v", err)
	}
	newGen := eng.current.Load()
	if newGen.schedule.Version == gen.schedule.Version {
		t.Fatalf("expected recompile to bump schedule version")
	}
	if st.inst.Channel.ScheduleVersion() != newGen.schedule.Version {
		t.Fatalf("first instance's channel version = %d, want %d", st.inst.Channel.ScheduleVersion(), newGen.schedule.Version)
	}
}

func TestPerfStatsAccumulateAcrossBlocks(t *testing.T) {
	eng, _ := newTestEngine(t, "test.silent", func() pluginabi.MainThread {
		return &fixturePlugin{ports: pluginabi.AudioPortsExt{MainPortsLayout: pluginabi.MainPortsNone}}
	})
	for i := 0; i < 5; i++ {
		eng.RenderBlock(int64(i), 4, nil, nil)
	}
	stats := eng.PerfStats()
	if stats.Samples != 5 {
		t.Fatalf("samples = %d, want 5", stats.Samples)
	}
	if stats.Max < stats.P50 {
		t.Fatalf("max (%v) < p50 (%v)", stats.Max, stats.P50)
	}
}
