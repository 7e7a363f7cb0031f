package pluginhost

import (
	"testing"

	"github.com/meadowlark-audio/engine/internal/graph"
	"github.com/meadowlark-audio/engine/pkg/event"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

type stubMainThread struct {
	audio  pluginabi.AudioPortsExt
	notes  pluginabi.NotePortsExt
	params []pluginabi.ParamInfo
	failActivate bool
}

func (s *stubMainThread) Activate(sampleRate float64, minFrames, maxFrames uint32) (pluginabi.ActivatedInfo, error) {
	if s.failActivate {
		return pluginabi.ActivatedInfo{}, errDummy{}
	}
	return pluginabi.ActivatedInfo{}, nil
}
func (s *stubMainThread) Deactivate()                          {}
func (s *stubMainThread) AudioPortsExt() pluginabi.AudioPortsExt { return s.audio }
func (s *stubMainThread) NotePortsExt() pluginabi.NotePortsExt   { return s.notes }
func (s *stubMainThread) NumParams() int                         { return len(s.params) }
func (s *stubMainThread) ParamInfo(i int) pluginabi.ParamInfo     { return s.params[i] }
func (s *stubMainThread) ParamValue(id uint32) (float64, bool)    { return 0, true }
func (s *stubMainThread) ParamValueToText(id uint32, v float64) string { return "" }
func (s *stubMainThread) ParamTextToValue(id uint32, text string) (float64, bool) { return 0, false }
func (s *stubMainThread) Latency() int64                         { return 0 }
func (s *stubMainThread) CollectSaveState() ([]byte, bool)        { return nil, false }
func (s *stubMainThread) LoadSaveState(data []byte) error         { return nil }

func (s *stubMainThread) StartProcessing() bool { return true }
func (s *stubMainThread) StopProcessing()       {}
func (s *stubMainThread) Process(int64, uint32, [][]float32, [][]float32, *event.InputBuffer, *event.OutputBuffer) pluginabi.ProcessStatus {
	return pluginabi.ProcessContinue
}

type errDummy struct{}

func (errDummy) Error() string { return "activate failed" }

func TestActivateSuccessBuildsProcessor(t *testing.T) {
	id := graph.PluginInstanceID{NodeID: 1, RDN: "test"}
	m := &stubMainThread{audio: pluginabi.AudioPortsExt{
		Inputs:  []pluginabi.AudioPortInfo{{StableID: 0, Channels: 2}},
		Outputs: []pluginabi.AudioPortInfo{{StableID: 1, Channels: 2}},
	}}
	inst := NewInstance(id, m)
	if err := inst.Activate(48000, 1, 512); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if inst.Proc == nil {
		t.Fatalf("expected Proc to be built after successful activation")
	}
	if inst.Channel.State() != StateActive {
		t.Fatalf("state = %v, want Active", inst.Channel.State())
	}
}

func TestActivateFailureMarksErrored(t *testing.T) {
	id := graph.PluginInstanceID{NodeID: 1, RDN: "test"}
	m := &stubMainThread{failActivate: true}
	inst := NewInstance(id, m)
	if err := inst.Activate(48000, 1, 512); err == nil {
		t.Fatalf("expected Activate to fail")
	}
	if inst.Channel.State() != StateInactiveWithError {
		t.Fatalf("state = %v, want InactiveWithError", inst.Channel.State())
	}
}

func TestActivateRejectsDuplicatePortIDs(t *testing.T) {
	id := graph.PluginInstanceID{NodeID: 1, RDN: "test"}
	m := &stubMainThread{audio: pluginabi.AudioPortsExt{
		Inputs: []pluginabi.AudioPortInfo{{StableID: 3}, {StableID: 3}},
	}}
	inst := NewInstance(id, m)
	if err := inst.Activate(48000, 1, 512); err == nil {
		t.Fatalf("expected duplicate-id rejection")
	}
}

func TestSyncPortsDropsEdgesToRemovedChannels(t *testing.T) {
	g := graph.New()
	a := g.AddPlugin("a")
	b := g.AddPlugin("b")
	out := graph.PortChannelID{StableID: 1, Type: graph.PortAudio, IsInput: false}
	in := graph.PortChannelID{StableID: 0, Type: graph.PortAudio, IsInput: true}
	if err := g.Connect(graph.EdgeID{SrcPlugin: a, SrcChannel: out, DstPlugin: b, DstChannel: in}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	previous := []graph.PortChannelID{in}
	current := []graph.PortChannelID{} // port removed on restart

	dropped, needsRecompile := SyncPorts(g, b, previous, current)
	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped edge, got %d", len(dropped))
	}
	if !needsRecompile {
		t.Fatalf("expected needsRecompile = true")
	}
	if len(g.EdgesInto(b)) != 0 {
		t.Fatalf("expected edge into b to be removed from the graph")
	}
}
