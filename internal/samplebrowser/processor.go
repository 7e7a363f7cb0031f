package samplebrowser

import (
	"github.com/meadowlark-audio/engine/pkg/event"
	"github.com/meadowlark-audio/engine/pkg/param"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// DeclickSeconds is the fixed 30ms preview crossfade.
const DeclickSeconds = 0.030

// playState mirrors the source's PlayState enum: stopped, or playing
// with a running playhead into the current pcm.
type playState int

const (
	playStopped playState = iota
	playPlaying
)

// Processor is the audio-thread half of the sample-browser plugin.
// Commands flow in via the CommandQueue; everything else is plain
// processor-owned state (single-threaded, audio-thread only).
type Processor struct {
	cmds *CommandQueue
	gain *param.Parameter

	state    playState
	playhead int
	pcm      [][]float32

	declickActive      bool
	declickOldPCM      [][]float32
	declickOldPlayhead int
	declickGain        float32
	declickFramesLeft  int
	declickDec         float32
	declickFrames      int
}

// NewProcessor builds a sample-browser processor whose stop/replay
// declick lasts DeclickSeconds at sampleRate (at least one frame).
func NewProcessor(cmds *CommandQueue, sampleRate float64) *Processor {
	frames := int(DeclickSeconds*sampleRate + 0.5)
	if frames < 1 {
		frames = 1
	}
	p := &Processor{
		cmds:          cmds,
		gain:          &param.Parameter{Info: param.Info{ID: 0, MinValue: 0, MaxValue: 2, DefaultValue: 1}},
		declickFrames: frames,
		declickDec:    1.0 / float32(frames),
	}
	p.gain.SetValue(1.0)
	return p
}

func (p *Processor) StartProcessing() bool { return true }
func (p *Processor) StopProcessing()       {}

// poll applies queued gain-parameter events and drains the command
// queue, updating play/declick state.
func (p *Processor) poll(in *event.InputBuffer) {
	for _, e := range in.Events() {
		if pv, ok := e.(*event.ParamValueEvent); ok && pv.ParamID == 0 {
			p.gain.SetValue(pv.Value)
		}
	}

	for {
		cmd, ok := p.cmds.Pop()
		if !ok {
			return
		}
		switch cmd.Kind {
		case CmdPlayNewSample:
			if p.state == playPlaying {
				p.startDeclick(p.pcm, p.playhead)
			}
			p.pcm = cmd.PCM
			p.playhead = 0
			p.state = playPlaying

		case CmdReplaySample:
			if p.state == playPlaying {
				p.startDeclick(p.pcm, p.playhead)
				p.playhead = 0
			} else if p.pcm != nil {
				p.playhead = 0
				p.state = playPlaying
			}

		case CmdStop:
			if p.state == playPlaying {
				p.startDeclick(p.pcm, p.playhead)
				p.state = playStopped
			}
		}
	}
}

func (p *Processor) startDeclick(oldPCM [][]float32, oldPlayhead int) {
	p.declickOldPCM = oldPCM
	p.declickOldPlayhead = oldPlayhead
	p.declickActive = true
	p.declickGain = 1.0
	p.declickFramesLeft = p.declickFrames
}

// Process polls commands, renders the current sample at its playhead,
// then crossfades in the outgoing sample's tail if a declick is
// running. Returns Sleep when stopped and no declick is in flight,
// since there is nothing left to render.
func (p *Processor) Process(steadyTime int64, frames uint32, audioIn, audioOut [][]float32, inEvents *event.InputBuffer, outEvents *event.OutputBuffer) pluginabi.ProcessStatus {
	p.poll(inEvents)

	n := int(frames)
	for _, ch := range audioOut {
		for i := range ch {
			if i < len(ch) {
				ch[i] = 0
			}
		}
	}
	if len(audioOut) < 2 {
		return pluginabi.ProcessSleep
	}
	left, right := audioOut[0], audioOut[1]

	appliedAny := false

	if p.state == playPlaying {
		frameCount := sourceFrames(p.pcm)
		if p.playhead < frameCount {
			end := p.playhead + n
			if end > frameCount {
				end = frameCount
			}
			copyStereo(left, right, p.pcm, p.playhead, end-p.playhead)
			p.playhead += n
			appliedAny = true
		} else {
			p.state = playStopped
		}
	}

	if p.declickActive {
		oldFrameCount := sourceFrames(p.declickOldPCM)
		running := p.declickOldPlayhead < oldFrameCount
		if running {
			end := p.declickOldPlayhead + n
			if end > oldFrameCount {
				end = oldFrameCount
			}
			avail := end - p.declickOldPlayhead

			declickRun := avail
			if declickRun > p.declickFramesLeft {
				declickRun = p.declickFramesLeft
			}
			if declickRun > n {
				declickRun = n
			}
			for i := 0; i < declickRun; i++ {
				p.declickGain -= p.declickDec
				l, r := sampleStereo(p.declickOldPCM, p.declickOldPlayhead+i)
				left[i] += l * p.declickGain
				right[i] += r * p.declickGain
			}
			p.declickOldPlayhead += avail
			p.declickFramesLeft -= declickRun
			appliedAny = true

			if p.declickFramesLeft <= 0 || p.declickOldPlayhead >= oldFrameCount {
				running = false
			}
		}
		if !running {
			p.declickActive = false
			p.declickOldPCM = nil
		}
	}

	if appliedAny {
		g := float32(p.gain.Value())
		for i := 0; i < n && i < len(left); i++ {
			left[i] *= g
			right[i] *= g
		}
	}

	if p.state == playStopped && !p.declickActive {
		return pluginabi.ProcessSleep
	}
	return pluginabi.ProcessContinue
}

func sourceFrames(pcm [][]float32) int {
	if len(pcm) == 0 {
		return 0
	}
	return len(pcm[0])
}

func sampleStereo(pcm [][]float32, idx int) (left, right float32) {
	if len(pcm) == 0 || idx < 0 || idx >= len(pcm[0]) {
		return 0, 0
	}
	if len(pcm) == 1 {
		return pcm[0][idx], pcm[0][idx]
	}
	return pcm[0][idx], pcm[1][idx]
}

func copyStereo(dstL, dstR []float32, pcm [][]float32, start, n int) {
	for i := 0; i < n; i++ {
		l, r := sampleStereo(pcm, start+i)
		if i < len(dstL) {
			dstL[i] = l
		}
		if i < len(dstR) {
			dstR[i] = r
		}
	}
}
