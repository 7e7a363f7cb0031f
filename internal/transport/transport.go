package transport

import (
	"sync/atomic"

	"github.com/meadowlark-audio/engine/internal/tempo"
)

// LoopState is either inactive or an active [start, end) range in
// frames. While active, loop_end - loop_start must be at least
// MaxBlockFrames so the declicker's loop-back crossfade always fits in
// one block's worth of prefix + crossfade.
type LoopState struct {
	Active bool
	Start  int64
	End    int64
}

// SeekRequest is how the main thread asks the transport to move the
// playhead; Version is bumped on every new request so the audio thread
// can detect a fresh seek versus a stale one it already applied.
type SeekRequest struct {
	Version   uint64
	ToFrame   int64
	IsPlaying bool
	Loop      LoopState
}

// RangeChecker answers "is this frame active in this block?" for
// consumers like the timeline clip renderer.
type RangeChecker struct {
	Kind     RangeKind
	End1     int64 // Playing: block end frame. Looping: loop_end.
	Start2   int64 // Looping only: loop_start (second segment start).
	End2     int64 // Looping only: playhead_next after wraparound.
}

type RangeKind int

const (
	RangePaused RangeKind = iota
	RangePlaying
	RangeLooping
)

// Contains reports whether frame f (relative to the block's own
// playhead-origin numbering, i.e. already offset) falls in the active
// playing range described by this checker.
func (rc RangeChecker) Contains(f int64) bool {
	switch rc.Kind {
	case RangePlaying:
		return f < rc.End1
	case RangeLooping:
		return f < rc.End1 || (f >= rc.Start2 && f < rc.Start2+(rc.End2-rc.Start2))
	default:
		return false
	}
}

// LoopBackInfo records a block that crossed a loop boundary.
type LoopBackInfo struct {
	LoopStart   int64
	LoopEnd     int64
	PlayheadEnd int64
}

// SeekInfo records a mid-block seek so clip renderers can crossfade
// between the old and new playhead.
type SeekInfo struct {
	SeekedFromPlayhead int64
}

// DeclickInfo is the per-block bundle the declicker publishes for the
// timeline renderer to consume.
type DeclickInfo struct {
	StartStopActive        bool
	StartStopBuf           []float32
	JumpActive             bool
	JumpOutPlayhead        int64
	JumpInPlayhead         int64
	JumpOutBuf             []float32
	JumpInBuf              []float32
	StartDeclickStartFrame int64 // clips at/after this frame skip the start fade
}

// Info is the per-block bundle Advance returns: everything the
// schedule's tasks need to render this block correctly.
type Info struct {
	Playhead     int64
	PlayheadNext int64
	Range        RangeChecker
	LoopBack     *LoopBackInfo
	Seek         *SeekInfo
	Declick      DeclickInfo
	TempoInfo    tempo.Info
}

const (
	// BypassDeclickSecs is the fixed bypass-toggle ramp length.
	BypassDeclickSecs = 0.003
	// SampleBrowserDeclickSecs is the sample-browser preview crossfade.
	SampleBrowserDeclickSecs = 0.030
)

// Declicker owns three independent ramps: start/stop, and a seek/loop-back jump pair.
type Declicker struct {
	startStop *Ramp

	jumpOut, jumpIn *Ramp
	jumpOutPlayhead int64
	jumpInPlayhead  int64

	loopSkipRemaining int64
}

// NewDeclicker builds a Declicker whose ramps are declickSeconds long at
// sampleRate.
func NewDeclicker(sampleRate, declickSeconds float64) *Declicker {
	frames := int(declickSeconds*sampleRate + 0.5)
	return &Declicker{
		startStop: NewRamp(frames),
		jumpOut:   NewRamp(frames),
		jumpIn:    NewRamp(frames),
	}
}

// ToggleStartStop starts (or reverses) the play/pause ramp.
func (d *Declicker) ToggleStartStop(isPlaying bool) {
	d.startStop.Start(isPlaying)
}

// Jump starts a seek crossfade: jumpOut fades 1->0 at oldPlayhead,
// jumpIn fades 0->1 at newPlayhead. A seek mid-ramp cancels any
// in-flight jump by starting a fresh one at the current progress.
func (d *Declicker) Jump(oldPlayhead, newPlayhead int64) {
	d.jumpOut.Start(false)
	d.jumpIn.Start(true)
	d.jumpOutPlayhead = oldPlayhead
	d.jumpInPlayhead = newPlayhead
	d.loopSkipRemaining = 0
}

// LoopBack starts a loop-back crossfade identical to Jump but with a
// skip_frames prefix during which the in-ramp holds at 0 and the
// out-ramp holds at 1.
func (d *Declicker) LoopBack(loopStart, loopEnd, playheadAtWrap int64) {
	d.jumpOut.Start(false)
	d.jumpIn.Start(true)
	d.jumpOutPlayhead = playheadAtWrap
	d.jumpInPlayhead = loopStart
	d.loopSkipRemaining = loopEnd - playheadAtWrap
}

// Advance runs all three ramps for n frames of this block and returns
// the published DeclickInfo. startDeclickStartFrame is the frame at
// which the current start-stop ramp began (for the clip renderer's
// start-aligned exemption); transport supplies it.
func (d *Declicker) Advance(n int, startDeclickStartFrame int64) DeclickInfo {
	info := DeclickInfo{StartDeclickStartFrame: startDeclickStartFrame}

	startStopBuf := make([]float32, n)
	if d.startStop.Active() {
		d.startStop.Advance(startStopBuf, n)
		info.StartStopActive = true
	} else {
		v := d.startStop.Value()
		for i := range startStopBuf {
			startStopBuf[i] = v
		}
	}
	info.StartStopBuf = startStopBuf

	jumpOutBuf := make([]float32, n)
	jumpInBuf := make([]float32, n)
	if d.loopSkipRemaining > 0 {
		skip := d.loopSkipRemaining
		if skip > int64(n) {
			skip = int64(n)
		}
		for i := int64(0); i < skip; i++ {
			jumpOutBuf[i] = 1
			jumpInBuf[i] = 0
		}
		d.loopSkipRemaining -= skip
		remaining := n - int(skip)
		if remaining > 0 {
			d.jumpOut.Advance(jumpOutBuf[skip:], remaining)
			d.jumpIn.Advance(jumpInBuf[skip:], remaining)
			info.JumpActive = true
		} else {
			info.JumpActive = true
		}
	} else if d.jumpOut.Active() || d.jumpIn.Active() {
		d.jumpOut.Advance(jumpOutBuf, n)
		d.jumpIn.Advance(jumpInBuf, n)
		info.JumpActive = true
	} else {
		vo, vi := d.jumpOut.Value(), d.jumpIn.Value()
		for i := range jumpOutBuf {
			jumpOutBuf[i] = vo
			jumpInBuf[i] = vi
		}
	}
	info.JumpOutBuf = jumpOutBuf
	info.JumpInBuf = jumpInBuf
	info.JumpOutPlayhead = d.jumpOutPlayhead
	info.JumpInPlayhead = d.jumpInPlayhead
	return info
}

// Transport holds the playhead state machine: tempo map,
// playhead, loop, seek requests, range-checker, and declicker. Advance
// is pure enough to call from the audio thread every block: its only
// cross-thread reads are atomic loads of the pending seek/play request.
type Transport struct {
	tempoMap *tempo.Map

	playhead       int64
	isPlaying      bool
	loop           LoopState
	lastTempoVer   uint64
	declickStartAt int64

	pendingSeek atomic.Pointer[SeekRequest]
	nextSeekVer atomic.Uint64 // bumped by the request producer, read-only to Advance
	seenSeekVer uint64        // owned by Advance (audio thread) only

	playheadNextPublished atomic.Int64

	declicker      *Declicker
	maxBlockFrames int
}

// New creates a Transport paused at frame 0.
func New(tempoMap *tempo.Map, sampleRate float64, maxBlockFrames int) *Transport {
	return &Transport{
		tempoMap:       tempoMap,
		declicker:      NewDeclicker(sampleRate, BypassDeclickSecs),
		maxBlockFrames: maxBlockFrames,
	}
}

// RequestSeek is called from the main thread (the request-producer side).
func (t *Transport) RequestSeek(req SeekRequest) {
	req.Version = t.nextSeekVer.Add(1)
	t.pendingSeek.Store(&req)
}

// ValidLoop reports whether a loop satisfies the invariant that
// loop_end - loop_start is at least the engine's max block size, the
// bound the declicker's loop-back crossfade relies on always fitting
// inside one block.
func (t *Transport) ValidLoop(loop LoopState) bool {
	if !loop.Active {
		return true
	}
	return loop.End > loop.Start && loop.End-loop.Start >= int64(t.maxBlockFrames)
}

// PlayheadNext returns the last-published next-playhead frame, readable
// from the main thread for UI readout.
func (t *Transport) PlayheadNext() int64 { return t.playheadNextPublished.Load() }

// Advance runs one block of transport logic and
// returns the Info the schedule's tasks consume this block.
func (t *Transport) Advance(blockFrames int) Info {
	if v := t.tempoMap.Version(); v != t.lastTempoVer {
		t.lastTempoVer = v
		t.reresolveLoopFromBeats()
	}

	var seekInfo *SeekInfo
	if req := t.pendingSeek.Load(); req != nil && req.Version != t.seenSeekVer {
		t.seenSeekVer = req.Version
		seekInfo = &SeekInfo{SeekedFromPlayhead: t.playhead}
		oldPlayhead := t.playhead
		t.playhead = req.ToFrame
		t.isPlaying = req.IsPlaying
		t.loop = req.Loop
		t.declicker.Jump(oldPlayhead, t.playhead)
	}

	var rc RangeChecker
	var loopBack *LoopBackInfo
	var nextPlayhead int64

	if !t.isPlaying {
		rc = RangeChecker{Kind: RangePaused}
		nextPlayhead = t.playhead
	} else if t.loop.Active && t.playhead < t.loop.End && t.loop.End <= t.playhead+int64(blockFrames) {
		end1 := t.loop.End
		remainder := (t.playhead + int64(blockFrames)) - end1
		start2 := t.loop.Start
		end2 := start2 + remainder
		rc = RangeChecker{Kind: RangeLooping, End1: end1, Start2: start2, End2: end2}
		loopBack = &LoopBackInfo{LoopStart: t.loop.Start, LoopEnd: t.loop.End, PlayheadEnd: end2}
		t.declicker.LoopBack(t.loop.Start, t.loop.End, t.playhead)
		nextPlayhead = end2
	} else {
		rc = RangeChecker{Kind: RangePlaying, End1: t.playhead + int64(blockFrames)}
		nextPlayhead = t.playhead + int64(blockFrames)
	}

	t.playheadNextPublished.Store(nextPlayhead)

	tempoInfo := t.tempoMap.TransportInfoAtFrame(t.playhead)
	declickInfo := t.declicker.Advance(blockFrames, t.declickStartAt)

	info := Info{
		Playhead:     t.playhead,
		PlayheadNext: nextPlayhead,
		Range:        rc,
		LoopBack:     loopBack,
		Seek:         seekInfo,
		Declick:      declickInfo,
		TempoInfo:    tempoInfo,
	}
	t.playhead = nextPlayhead
	return info
}

// SetPlaying toggles play/pause and starts the start/stop declick ramp.
func (t *Transport) SetPlaying(playing bool) {
	if playing == t.isPlaying {
		return
	}
	t.isPlaying = playing
	t.declicker.ToggleStartStop(playing)
	if playing {
		t.declickStartAt = t.playhead
	}
}

// reresolveLoopFromBeats re-resolves beat-denominated loop endpoints
// after a tempo-map replacement. The open question of which endpoint
// representation (beats vs frames) a given LoopState uses is left to
// the caller; a constant-tempo map's frame endpoints never drift, so
// this is a no-op unless loop endpoints are stored in beats elsewhere —
// not exercised by the in-scope engine, which only uses frame-based
// loop points.
func (t *Transport) reresolveLoopFromBeats() {}
