package compiler

import (
	"testing"

	"github.com/meadowlark-audio/engine/internal/bufpool"
	"github.com/meadowlark-audio/engine/internal/graph"
	"github.com/meadowlark-audio/engine/internal/schedule"
	"github.com/meadowlark-audio/engine/pkg/event"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

type stubProcessor struct{}

func (stubProcessor) StartProcessing() bool { return true }
func (stubProcessor) StopProcessing()       {}
func (stubProcessor) Process(int64, uint32, [][]float32, [][]float32, *event.InputBuffer, *event.OutputBuffer) pluginabi.ProcessStatus {
	return pluginabi.ProcessContinue
}

func stereoInOut(stableIn, stableOut uint32) pluginabi.AudioPortsExt {
	return pluginabi.AudioPortsExt{
		Inputs:  []pluginabi.AudioPortInfo{{StableID: stableIn, Channels: 2, IsMain: true}},
		Outputs: []pluginabi.AudioPortInfo{{StableID: stableOut, Channels: 2, IsMain: true}},
	}
}

func TestCompileSimpleChain(t *testing.T) {
	g := graph.New()
	a := g.AddPlugin("com.example.a")
	b := g.AddPlugin("com.example.b")

	outCh := graph.PortChannelID{StableID: 1, Type: graph.PortAudio, IsInput: false}
	inCh := graph.PortChannelID{StableID: 0, Type: graph.PortAudio, IsInput: true}
	if err := g.Connect(graph.EdgeID{SrcPlugin: a, SrcChannel: outCh, DstPlugin: b, DstChannel: inCh}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	infos := map[int64]PluginInfo{
		a.NodeID: {Instance: a, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}},
		b.NodeID: {Instance: b, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}},
	}

	pool := bufpool.NewPool(256)
	sched, err := Compile(g, infos, pool, 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if sched.Version != 1 {
		t.Fatalf("Version = %d, want 1", sched.Version)
	}

	pluginTasks := 0
	for _, tk := range sched.Tasks {
		if tk.Kind == schedule.KindPlugin {
			pluginTasks++
		}
	}
	if pluginTasks != 2 {
		t.Fatalf("expected 2 plugin tasks, got %d", pluginTasks)
	}

	taskA, ok := sched.PluginTaskFor(a)
	if !ok {
		t.Fatalf("no task for a")
	}
	taskB, ok := sched.PluginTaskFor(b)
	if !ok {
		t.Fatalf("no task for b")
	}
	if taskA.AudioOut[0] != taskB.AudioIn[0] {
		t.Fatalf("a's output buffer should feed b's input directly: %+v vs %+v", taskA.AudioOut[0], taskB.AudioIn[0])
	}
}

func TestCompileInsertsSumNodeForFanIn(t *testing.T) {
	g := graph.New()
	a := g.AddPlugin("a")
	b := g.AddPlugin("b")
	c := g.AddPlugin("c")

	out := graph.PortChannelID{StableID: 1, Type: graph.PortAudio, IsInput: false}
	in := graph.PortChannelID{StableID: 0, Type: graph.PortAudio, IsInput: true}
	if err := g.Connect(graph.EdgeID{SrcPlugin: a, SrcChannel: out, DstPlugin: c, DstChannel: in}); err != nil {
		t.Fatalf("connect a->c: %v", err)
	}
	if err := g.Connect(graph.EdgeID{SrcPlugin: b, SrcChannel: out, DstPlugin: c, DstChannel: in}); err != nil {
		t.Fatalf("connect b->c: %v", err)
	}

	infos := map[int64]PluginInfo{
		a.NodeID: {Instance: a, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}},
		b.NodeID: {Instance: b, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}},
		c.NodeID: {Instance: c, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}},
	}

	pool := bufpool.NewPool(256)
	sched, err := Compile(g, infos, pool, 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	sumTasks := 0
	for _, tk := range sched.Tasks {
		if tk.Kind == schedule.KindAudioSum {
			sumTasks++
			if len(tk.Sum.Inputs) < 2 {
				t.Fatalf("sum task has fewer than 2 inputs: %+v", tk.Sum)
			}
		}
	}
	if sumTasks != 1 {
		t.Fatalf("expected exactly 1 sum task, got %d", sumTasks)
	}
}

func TestCompileFoldsUnloadedPlugin(t *testing.T) {
	g := graph.New()
	a := g.AddPlugin("a")
	infos := map[int64]PluginInfo{
		a.NodeID: {Instance: a, AudioPorts: stereoInOut(0, 1), Processor: nil},
	}
	pool := bufpool.NewPool(256)
	sched, err := Compile(g, infos, pool, 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(sched.Tasks) != 1 || sched.Tasks[0].Kind != schedule.KindUnloadedPlugin {
		t.Fatalf("expected single UnloadedPlugin task, got %+v", sched.Tasks)
	}
	if len(sched.Tasks[0].Unloaded.AudioThrough) != 1 {
		t.Fatalf("expected one audio through-pair, got %+v", sched.Tasks[0].Unloaded.AudioThrough)
	}
}

func TestCompileRejectsDuplicatePortID(t *testing.T) {
	g := graph.New()
	a := g.AddPlugin("a")
	infos := map[int64]PluginInfo{
		a.NodeID: {Instance: a, AudioPorts: pluginabi.AudioPortsExt{
			Inputs: []pluginabi.AudioPortInfo{{StableID: 7}, {StableID: 7}},
		}, Processor: stubProcessor{}},
	}
	pool := bufpool.NewPool(256)
	_, err := Compile(g, infos, pool, 1)
	if err == nil {
		t.Fatalf("expected duplicate-id error")
	}
}

func TestCompileDelayCompEqualizesParallelPaths(t *testing.T) {
	g := graph.New()
	a := g.AddPlugin("a") // latency 0
	b := g.AddPlugin("b") // latency 64, parallel path
	c := g.AddPlugin("c") // sums a and b

	out := graph.PortChannelID{StableID: 1, Type: graph.PortAudio, IsInput: false}
	in := graph.PortChannelID{StableID: 0, Type: graph.PortAudio, IsInput: true}
	if err := g.Connect(graph.EdgeID{SrcPlugin: a, SrcChannel: out, DstPlugin: c, DstChannel: in}); err != nil {
		t.Fatalf("connect a->c: %v", err)
	}
	if err := g.Connect(graph.EdgeID{SrcPlugin: b, SrcChannel: out, DstPlugin: c, DstChannel: in}); err != nil {
		t.Fatalf("connect b->c: %v", err)
	}

	infos := map[int64]PluginInfo{
		a.NodeID: {Instance: a, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}, Latency: 0},
		b.NodeID: {Instance: b, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}, Latency: 64},
		c.NodeID: {Instance: c, AudioPorts: stereoInOut(0, 1), Processor: stubProcessor{}},
	}

	pool := bufpool.NewPool(256)
	sched, err := Compile(g, infos, pool, 1)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	delayComps := 0
	for _, tk := range sched.Tasks {
		if tk.Kind == schedule.KindAudioDelayComp {
			delayComps++
			if tk.DelayComp.DelayFrames != 64 {
				t.Fatalf("delay-comp frames = %d, want 64", tk.DelayComp.DelayFrames)
			}
		}
	}
	if delayComps != 1 {
		t.Fatalf("expected exactly 1 delay-comp task (on a's path), got %d", delayComps)
	}
}
