package pluginhost

import (
	"github.com/meadowlark-audio/engine/internal/reducingqueue"
	"github.com/meadowlark-audio/engine/internal/transport"
	"github.com/meadowlark-audio/engine/pkg/event"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// runState is the process-thread-local half of the processor's
// start/stop/error state machine. Unlike ActivationState, this is never
// touched by the main thread, so it is plain (non-atomic) processor-owned
// state. runWaitingForStart is the initial state: the first block starts
// processing without the sleep heuristic, which only applies in
// runStopped. A plugin requesting its own restart is not modeled:
// pluginabi.Processor has no callback hook for it.
type runState int

const (
	runWaitingForStart runState = iota
	runStopped
	runStarted
	runErrored
)

const bypassDeclickSecs = transport.BypassDeclickSecs

// BlockInput bundles what a Processor needs to run one block.
type BlockInput struct {
	SteadyTime      int64
	Frames          uint32
	AudioIn         [][]float32
	AudioOut        [][]float32
	AutomationIn    []event.Event // already filtered to this instance
	TransportEvent  event.Event   // nil if none this block
	ScheduleVersion uint64
	Bypass          bool
}

// Processor is the per-plugin-instance process-thread wrapper: event
// I/O assembly, lifecycle dispatch, and bypass declick.
type Processor struct {
	channel *Channel
	proc    pluginabi.Processor
	autoOut pluginabi.AutomationProducer // non-nil iff proc implements it
	events  *event.Processor

	state runState

	bypassRamp *transport.Ramp
	bypassOn   bool // current settled bypass value
}

// NewProcessor wraps a plugin's Processor half. The channel already owns
// the parameter queues, so construction here only needs the plugin
// processor and the sample rate for sizing the bypass ramp.
func NewProcessor(channel *Channel, proc pluginabi.Processor, sampleRate float64) *Processor {
	p := &Processor{
		channel:    channel,
		proc:       proc,
		events:     event.NewProcessor(),
		bypassRamp: transport.NewRamp(int(bypassDeclickSecs*sampleRate + 0.5)),
	}
	if ap, ok := proc.(pluginabi.AutomationProducer); ok {
		p.autoOut = ap
	}
	return p
}

// possiblySilent scans every sample, the same as isExactlySilent; a
// zero-length buffer or a nil slice is always treated as silent.
func possiblySilent(in [][]float32) bool {
	for _, ch := range in {
		for _, s := range ch {
			if s != 0 {
				return false
			}
		}
	}
	return true
}

// Process runs one block and returns the status to feed back into the
// schedule executor's bookkeeping.
func (p *Processor) Process(in BlockInput) pluginabi.ProcessStatus {
	// Step 1: clear output buffers.
	for _, ch := range in.AudioOut {
		for i := range ch {
			ch[i] = 0
		}
	}

	// Step 3: read the atomic activation state.
	switch p.channel.State() {
	case StateWaitingToDrop:
		p.proc.StopProcessing()
		p.channel.ObserveDropped()
		return pluginabi.ProcessSleep
	}
	if p.channel.ScheduleVersion() > in.ScheduleVersion {
		return pluginabi.ProcessSleep
	}

	// Step 2: assemble input events in time order.
	p.events.BeginBlock()
	input := p.events.Input()
	p.channel.DrainToProcessor(
		func(paramIndex int, u reducingqueue.Update) {
			if u.HasValue {
				input.Push(event.CreateParamValue(0, uint32(paramIndex), u.Value))
			}
			if u.HasGesture {
				if u.GestureBegin {
					input.Push(&event.ParamGestureEvent{
						Header:  event.Header{Time: 0, Type: uint16(event.TypeParamGestureBegin)},
						ParamID: uint32(paramIndex),
					})
				}
				if u.GestureEnd {
					input.Push(&event.ParamGestureEvent{
						Header:  event.Header{Time: 0, Type: uint16(event.TypeParamGestureEnd)},
						ParamID: uint32(paramIndex),
					})
				}
			}
		},
		func(paramIndex int, u reducingqueue.Update) {
			if u.HasValue {
				input.Push(&event.ParamModEvent{
					Header:  event.Header{Time: 0, Type: uint16(event.TypeParamMod)},
					ParamID: uint32(paramIndex),
					Amount:  u.Value,
				})
			}
		},
	)
	for _, e := range in.AutomationIn {
		input.Push(e)
	}
	if in.TransportEvent != nil {
		input.Push(in.TransportEvent)
	}
	input.Sort()

	// Step 4: sleep heuristic.
	if p.state == runStopped || p.state == runWaitingForStart {
		hasNoteIn := false
		for _, e := range input.Events() {
			t := e.GetHeader().Type
			if t == uint16(event.TypeNoteOn) || t == uint16(event.TypeNoteOff) || t == uint16(event.TypeNoteChoke) {
				hasNoteIn = true
				break
			}
		}
		if p.state == runStopped && !hasNoteIn && possiblySilent(in.AudioIn) && isExactlySilent(in.AudioIn) {
			p.runBypassDeclick(in)
			return pluginabi.ProcessSleep
		}
		if !p.proc.StartProcessing() {
			p.state = runErrored
			for _, ch := range in.AudioOut {
				for i := range ch {
					ch[i] = 0
				}
			}
			return pluginabi.ProcessError
		}
		p.state = runStarted
	}

	// Step 5: process.
	output := p.events.Output()
	var status pluginabi.ProcessStatus
	if p.autoOut != nil {
		autoOut := event.NewOutputBuffer()
		status = p.autoOut.ProcessWithAutomationOut(in.SteadyTime, in.Frames, in.AudioIn, in.AudioOut, input, output, autoOut)
	} else {
		status = p.proc.Process(in.SteadyTime, in.Frames, in.AudioIn, in.AudioOut, input, output)
	}

	switch status {
	case pluginabi.ProcessContinue:
		p.state = runStarted
	case pluginabi.ProcessContinueIfNotQuiet:
		if isExactlySilent(in.AudioOut) {
			p.proc.StopProcessing()
			p.state = runStopped
		} else {
			p.state = runStarted
		}
	case pluginabi.ProcessTail:
		p.state = runStarted
		// TODO: honor the tail-length extension once a plugin reports
		// one; until then a Tail status is treated like Continue.
	case pluginabi.ProcessSleep:
		p.proc.StopProcessing()
		p.state = runStopped
	case pluginabi.ProcessError:
		p.proc.StopProcessing()
		p.state = runErrored
		for _, ch := range in.AudioOut {
			for i := range ch {
				ch[i] = 0
			}
		}
	}

	// Step 6: drain output events through the sanitizer.
	sanitized := event.Sanitize(output.Events(), in.Frames, nil)
	for _, e := range sanitized {
		h := e.GetHeader()
		switch h.Type {
		case uint16(event.TypeParamValue):
			pv := e.(*event.ParamValueEvent)
			p.channel.PushFromProcessor(int(pv.ParamID), reducingqueue.Update{Value: pv.Value, HasValue: true})
		case uint16(event.TypeParamGestureBegin):
			pg := e.(*event.ParamGestureEvent)
			p.channel.PushFromProcessor(int(pg.ParamID), reducingqueue.Update{HasGesture: true, GestureBegin: true})
		case uint16(event.TypeParamGestureEnd):
			pg := e.(*event.ParamGestureEvent)
			p.channel.PushFromProcessor(int(pg.ParamID), reducingqueue.Update{HasGesture: true, GestureEnd: true})
		}
		// Note-out routing and modulation-out exclusion are the
		// executor's job once buffer wiring is in place; ParamMod
		// events are never mirrored back to the main thread.
	}

	p.runBypassDeclick(in)
	return status
}

func isExactlySilent(bufs [][]float32) bool {
	for _, ch := range bufs {
		for _, s := range ch {
			if s != 0 {
				return false
			}
		}
	}
	return true
}

// runBypassDeclick crossfades whenever the bypass flag toggles,
// reversing in place rather than snapping if a ramp is already in
// flight.
func (p *Processor) runBypassDeclick(in BlockInput) {
	if in.Bypass != p.bypassOn {
		p.bypassOn = in.Bypass
		p.bypassRamp.Start(in.Bypass)
	}
	if !p.bypassRamp.Active() {
		if !p.bypassOn {
			return
		}
		applyPassthrough(in)
		return
	}
	n := int(in.Frames)
	gains := make([]float32, n)
	p.bypassRamp.Advance(gains, n)
	// gains[i]==0 fully processed, ==1 fully bypassed (ramp rises
	// toward "bypassed"); crossfade processed output against the
	// passthrough/silence choice per channel.
	minCh := len(in.AudioIn)
	if len(in.AudioOut) < minCh {
		minCh = len(in.AudioOut)
	}
	for c := 0; c < minCh; c++ {
		out := in.AudioOut[c]
		src := in.AudioIn[c]
		for i := 0; i < n && i < len(out) && i < len(src); i++ {
			g := gains[i]
			out[i] = out[i]*(1-g) + src[i]*g
		}
	}
	for c := minCh; c < len(in.AudioOut); c++ {
		out := in.AudioOut[c]
		for i := 0; i < n && i < len(out); i++ {
			out[i] = out[i] * (1 - gains[i])
		}
	}
}

// applyPassthrough overwrites outputs with the passthrough (main audio
// channels, up to the shared channel count) or silence (everything
// else), used once a bypass ramp has settled fully bypassed.
func applyPassthrough(in BlockInput) {
	minCh := len(in.AudioIn)
	if len(in.AudioOut) < minCh {
		minCh = len(in.AudioOut)
	}
	for c := 0; c < minCh; c++ {
		copy(in.AudioOut[c], in.AudioIn[c])
	}
	for c := minCh; c < len(in.AudioOut); c++ {
		for i := range in.AudioOut[c] {
			in.AudioOut[c][i] = 0
		}
	}
}
