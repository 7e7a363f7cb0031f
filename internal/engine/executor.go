package engine

import (
	"github.com/meadowlark-audio/engine/internal/bufpool"
	"github.com/meadowlark-audio/engine/internal/pluginhost"
	"github.com/meadowlark-audio/engine/internal/schedule"
	"github.com/meadowlark-audio/engine/internal/transport"
	"github.com/meadowlark-audio/engine/pkg/event"
)

// executeSchedule walks gen's task list once, the audio thread's
// per-block executor. Plugin tasks are dispatched through the
// instance's *pluginhost.Processor wrapper captured in gen.processors
// at the last recompile (not through the schedule's own
// PluginTask.Processor field, which the compiler fills in but nothing
// reads); sum, delay-comp, and unloaded-passthrough tasks do
// direct buffer arithmetic against the pool. The device's captured
// input has already been copied into the pool by RenderBlock before
// this runs (into whichever instance SetDeviceInputInstance designated,
// resolved to buffer refs at the last recompile), so a KindPlugin task
// reads it the same way it reads any other upstream buffer.
//
// Note/automation sum and delay-comp tasks are schedule entries the
// compiler already emits, but bufpool's note/automation arenas carry no
// backing sample data (see DESIGN.md's buffer-backing open question):
// until that storage exists, those task kinds are no-ops here and every
// plugin's AutomationIn is empty. The audio path is fully wired and is
// this executor's scope for now.
func executeSchedule(gen *generation, steadyTime int64, frames int, info transport.Info) {
	sched := gen.schedule
	pool := gen.pool
	transportEvent := buildTransportEvent(info)

	for i := range sched.Tasks {
		task := &sched.Tasks[i]
		switch task.Kind {
		case schedule.KindPlugin:
			executePluginTask(task.Plugin, gen.processors, pool, steadyTime, frames, sched.Version, transportEvent)
		case schedule.KindAudioSum:
			executeAudioSum(task.Sum, pool, frames)
		case schedule.KindAudioDelayComp:
			executeAudioDelayComp(task.DelayComp, pool, frames)
		case schedule.KindUnloadedPlugin:
			executeUnloaded(task.Unloaded, pool, frames)
		case schedule.KindNoteSum, schedule.KindAutomationSum,
			schedule.KindNoteDelayComp, schedule.KindAutomationDelayComp:
			// Deferred: no backing storage yet (see package doc above).
		}
	}
}

// executePluginTask resolves the pool buffers a PluginTask names and
// calls the instance's Processor wrapper once.
func executePluginTask(pt *schedule.PluginTask, processors map[int64]*pluginhost.Processor, pool *bufpool.Pool, steadyTime int64, frames int, version uint64, transportEvent event.Event) {
	proc, ok := processors[pt.Instance.NodeID]
	if !ok {
		return
	}

	audioIn := resolveAudio(pool, pt.AudioIn, frames)
	audioOut := resolveAudio(pool, pt.AudioOut, frames)

	proc.Process(pluginhost.BlockInput{
		SteadyTime:      steadyTime,
		Frames:          uint32(frames),
		AudioIn:         audioIn,
		AudioOut:        audioOut,
		TransportEvent:  transportEvent,
		ScheduleVersion: version,
	})
}

func resolveAudio(pool *bufpool.Pool, refs []schedule.BufferRef, frames int) [][]float32 {
	if len(refs) == 0 {
		return nil
	}
	out := make([][]float32, len(refs))
	for i, ref := range refs {
		data := pool.Audio(ref.Index).Data()
		if frames < len(data) {
			data = data[:frames]
		}
		out[i] = data
	}
	return out
}

func executeAudioSum(st *schedule.SumTask, pool *bufpool.Pool, frames int) {
	if len(st.Inputs) == 0 {
		return
	}
	out := pool.Audio(st.Output.Index).Data()
	for i := 0; i < frames && i < len(out); i++ {
		out[i] = 0
	}
	for _, ref := range st.Inputs {
		in := pool.Audio(ref.Index).Data()
		n := frames
		if n > len(in) {
			n = len(in)
		}
		if n > len(out) {
			n = len(out)
		}
		for i := 0; i < n; i++ {
			out[i] += in[i]
		}
	}
}

// executeAudioDelayComp applies a within-block sample shift to
// equalize parallel-path latency. Delays that exceed the
// current block are clamped to it: the compiler only ever schedules
// delay-comp amounts bounded by the graph's declared plugin latencies,
// and a multi-block carry line is out of scope until a real plugin
// reports latency larger than one block.
func executeAudioDelayComp(dt *schedule.DelayCompTask, pool *bufpool.Pool, frames int) {
	in := pool.Audio(dt.Input.Index).Data()
	out := pool.Audio(dt.Output.Index).Data()
	n := frames
	if n > len(in) {
		n = len(in)
	}
	if n > len(out) {
		n = len(out)
	}
	shift := dt.DelayFrames
	if shift < 0 {
		shift = 0
	}
	for i := n - 1; i >= 0; i-- {
		src := i - shift
		if src >= 0 && src < n {
			out[i] = in[src]
		} else {
			out[i] = 0
		}
	}
}

func executeUnloaded(ut *schedule.UnloadedPluginTask, pool *bufpool.Pool, frames int) {
	for _, pair := range ut.AudioThrough {
		in := pool.Audio(pair.In.Index).Data()
		out := pool.Audio(pair.Out.Index).Data()
		n := frames
		if n > len(in) {
			n = len(in)
		}
		if n > len(out) {
			n = len(out)
		}
		copy(out[:n], in[:n])
	}
	for _, ref := range ut.ClearAudioOut {
		out := pool.Audio(ref.Index).Data()
		for i := 0; i < frames && i < len(out); i++ {
			out[i] = 0
		}
	}
}

// buildTransportEvent converts the block's transport.Info into the
// wire-shaped TransportEvent every plugin processor receives as part of
// its merged input events.
func buildTransportEvent(info transport.Info) event.Event {
	flags := event.TransportHasTempo | event.TransportHasBeatsTime | event.TransportHasSecondsTime | event.TransportHasTimeSignature
	if info.Range.Kind != transport.RangePaused {
		flags |= event.TransportIsPlaying
	}
	if info.Range.Kind == transport.RangeLooping {
		flags |= event.TransportIsLooping
	}
	return &event.TransportEvent{
		Header:             event.Header{Time: 0, Type: uint16(event.TypeTransport)},
		Flags:              flags,
		Tempo:              info.TempoInfo.Tempo,
		BarStart:           float64(info.TempoInfo.CurrentBarStart),
		BarNumber:          int32(info.TempoInfo.CurrentBarNumber),
		TimeSignatureNum:   info.TempoInfo.TimeSignature.Numerator,
		TimeSignatureDenom: info.TempoInfo.TimeSignature.Denominator,
	}
}
