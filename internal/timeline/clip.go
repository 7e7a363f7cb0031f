// Package timeline implements the internal timeline track plugin that
// renders scheduled audio clips honoring the transport declicker: linear
// start/end fades computed from the playhead's position relative to the
// clip's fade windows, with per-sample gain and fade multiplied together
// before summing into the output.
package timeline

import (
	"github.com/meadowlark-audio/engine/internal/transport"
	"github.com/meadowlark-audio/engine/pkg/event"
	"github.com/meadowlark-audio/engine/pkg/pluginabi"
)

// Clip is the realtime-renderable subset of a timeline audio clip's
// state: everything the renderer needs to place samples from a PCM
// resource onto the timeline, with linear fade-in/out applied at the
// clip edges.
type Clip struct {
	TimelineStart int64 // first frame on the timeline this clip occupies
	TimelineEnd   int64 // one past the last frame (exclusive)

	// SourceOffset is the frame within PCM at which TimelineStart reads.
	SourceOffset int64
	PCM          [][]float32 // one slice per channel; mono sources use len==1

	GainLinear float64

	FadeInFrames  int64
	FadeOutFrames int64
}

// intersects reports whether the clip overlaps [blockStart, blockStart+n).
func (c Clip) intersects(blockStart int64, n int) bool {
	blockEnd := blockStart + int64(n)
	return c.TimelineStart < blockEnd && c.TimelineEnd > blockStart
}

// render adds this clip's contribution for [playhead, playhead+n) into
// the stereo scratch buffer, applying gain and linear fade-in/fade-out.
// Samples outside the clip's PCM range (before its start or past its
// source data) contribute silence, matching the source's "out of range,
// do nothing" handling.
func (c Clip) render(playhead int64, n int, scratch [][2]float32) {
	if !c.intersects(playhead, n) {
		return
	}
	fadeInEnd := c.TimelineStart + c.FadeInFrames
	fadeOutStart := c.TimelineEnd - c.FadeOutFrames

	for i := 0; i < n; i++ {
		f := playhead + int64(i)
		if f < c.TimelineStart || f >= c.TimelineEnd {
			continue
		}
		srcIdx := f - c.TimelineStart + c.SourceOffset
		if srcIdx < 0 {
			continue
		}

		gain := c.GainLinear
		if c.FadeInFrames > 0 && f < fadeInEnd {
			gain *= float64(f-c.TimelineStart) / float64(c.FadeInFrames)
		}
		if c.FadeOutFrames > 0 && f >= fadeOutStart {
			gain *= float64(c.TimelineEnd-f) / float64(c.FadeOutFrames)
		}

		left, right := c.sample(srcIdx)
		scratch[i][0] += left * float32(gain)
		scratch[i][1] += right * float32(gain)
	}
}

// sample reads one frame from the clip's PCM, duplicating mono sources
// to both channels and returning silence past the end of the resource.
func (c Clip) sample(idx int64) (left, right float32) {
	if len(c.PCM) == 0 || idx < 0 || idx >= int64(len(c.PCM[0])) {
		return 0, 0
	}
	if len(c.PCM) == 1 {
		v := c.PCM[0][idx]
		return v, v
	}
	return c.PCM[0][idx], c.PCM[1][idx]
}

// Track is the internal plugin implementing pluginabi.Processor for one
// timeline track. Clips is swapped atomically by the main thread
// whenever the track's clip list edits (add/move/delete); the audio
// thread only ever reads the slice header it was handed.
type Track struct {
	clips []Clip
	info  *transport.Info // set once per block via SetBlockInfo before Process
}

// NewTrack creates an empty timeline track.
func NewTrack() *Track { return &Track{} }

// SetClips installs a new clip snapshot. Called only from the main
// thread; the slice itself must not be mutated afterward (copy-on-write).
func (t *Track) SetClips(clips []Clip) { t.clips = clips }

// SetBlockInfo hands the track this block's transport state, which
// Process reads; without it Process outputs silence and sleeps. Nothing
// in internal/engine calls it: the caller that owns the Track does.
func (t *Track) SetBlockInfo(info *transport.Info) { t.info = info }

func (t *Track) StartProcessing() bool { return true }
func (t *Track) StopProcessing()       {}

// Process clears output, then picks one of the three declick paths
// (plain playback, jump crossfade, or start/stop-only) depending on the
// DeclickInfo this block carries.
func (t *Track) Process(steadyTime int64, frames uint32, audioIn, audioOut [][]float32, inEvents *event.InputBuffer, outEvents *event.OutputBuffer) pluginabi.ProcessStatus {
	n := int(frames)
	for _, ch := range audioOut {
		for i := range ch {
			ch[i] = 0
		}
	}
	if t.info == nil || len(audioOut) < 2 {
		return pluginabi.ProcessSleep
	}

	d := t.info.Declick
	switch {
	case !d.StartStopActive && !d.JumpActive:
		if t.info.Range.Kind == transport.RangePaused {
			return pluginabi.ProcessSleep
		}
		t.renderPlain(t.info.Playhead, n, audioOut)

	case d.JumpActive:
		t.renderJump(d, n, audioOut)

	default: // StartStopActive && !JumpActive
		t.renderStartStopOnly(t.info.Playhead, d, n, audioOut)
	}

	return pluginabi.ProcessContinue
}

func (t *Track) renderPlain(playhead int64, n int, out [][]float32) {
	scratch := make([][2]float32, n)
	for _, c := range t.clips {
		c.render(playhead, n, scratch)
	}
	sumInto(out, scratch, nil)
}

// renderJump renders the jump-out path at the old playhead scaled by
// jump_out_buf, then the jump-in path at the new playhead scaled by
// jump_in_buf, each also scaled by start_stop_buf unless the clip began
// at or after start_declick_start_frame (the start-aligned exemption).
func (t *Track) renderJump(d transport.DeclickInfo, n int, out [][]float32) {
	outScratch := make([][2]float32, n)
	for _, c := range t.clips {
		c.render(d.JumpOutPlayhead, n, outScratch)
	}
	sumInto(out, outScratch, gainCombine(d.JumpOutBuf, startStopGainForClips(t.clips, d.JumpOutPlayhead, d, n)))

	inScratch := make([][2]float32, n)
	for _, c := range t.clips {
		c.render(d.JumpInPlayhead, n, inScratch)
	}
	sumInto(out, inScratch, gainCombine(d.JumpInBuf, startStopGainForClips(t.clips, d.JumpInPlayhead, d, n)))
}

func (t *Track) renderStartStopOnly(playhead int64, d transport.DeclickInfo, n int, out [][]float32) {
	scratch := make([][2]float32, n)
	for _, c := range t.clips {
		c.render(playhead, n, scratch)
	}
	sumInto(out, scratch, startStopGainForClips(t.clips, playhead, d, n))
}

// startStopGainForClips returns a per-sample gain buffer equal to
// start_stop_buf, except forced to 1.0 for samples where every
// intersecting clip begins at or after start_declick_start_frame (the
// exemption only matters when a single clip starts exactly at play
// start; mixed tracks still apply the fade to clips that don't qualify,
// which this per-track-wide approximation does not distinguish further
// since the renderer sums all clips into one scratch buffer before the
// gain is applied — a limitation noted in DESIGN.md).
func startStopGainForClips(clips []Clip, playhead int64, d transport.DeclickInfo, n int) []float32 {
	gain := make([]float32, n)
	copy(gain, d.StartStopBuf)
	allExempt := len(clips) > 0
	for _, c := range clips {
		if !c.intersects(playhead, n) {
			continue
		}
		if c.TimelineStart < d.StartDeclickStartFrame {
			allExempt = false
			break
		}
	}
	if allExempt {
		for i := range gain {
			gain[i] = 1
		}
	}
	return gain
}

// gainCombine multiplies two per-sample gain buffers together.
func gainCombine(a, b []float32) []float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] * b[i]
	}
	return out
}

// sumInto adds scratch (optionally scaled per-sample by gain) into the
// first two channels of out.
func sumInto(out [][]float32, scratch [][2]float32, gain []float32) {
	for i, s := range scratch {
		g := float32(1)
		if gain != nil && i < len(gain) {
			g = gain[i]
		}
		if i < len(out[0]) {
			out[0][i] += s[0] * g
		}
		if i < len(out[1]) {
			out[1][i] += s[1] * g
		}
	}
}
