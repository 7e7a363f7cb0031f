package timeline

import (
	"testing"

	"github.com/meadowlark-audio/engine/internal/transport"
	"github.com/meadowlark-audio/engine/pkg/event"
)

func constPCM(n int, v float32) [][]float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	return [][]float32{buf}
}

func stereoOut(n int) [][]float32 {
	return [][]float32{make([]float32, n), make([]float32, n)}
}

func plainInfo(playhead int64) *transport.Info {
	return &transport.Info{
		Playhead: playhead,
		Range:    transport.RangeChecker{Kind: transport.RangePlaying, End1: playhead + 64},
		Declick: transport.DeclickInfo{
			StartStopBuf: onesBuf(64),
			JumpOutBuf:   onesBuf(64),
			JumpInBuf:    onesBuf(64),
		},
	}
}

func onesBuf(n int) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = 1
	}
	return b
}

func TestPlainPlaybackSumsIntersectingClips(t *testing.T) {
	tr := NewTrack()
	tr.SetClips([]Clip{
		{TimelineStart: 0, TimelineEnd: 1000, PCM: constPCM(1000, 1.0), GainLinear: 1.0},
	})
	tr.SetBlockInfo(plainInfo(0))

	out := stereoOut(64)
	status := tr.Process(0, 64, nil, out, event.NewInputBuffer(event.NewPool()), event.NewOutputBuffer())
	if status.String() != "continue" {
		t.Fatalf("status = %v, want continue", status)
	}
	for i := 0; i < 64; i++ {
		if out[0][i] != 1.0 || out[1][i] != 1.0 {
			t.Fatalf("sample %d = (%v,%v), want (1,1)", i, out[0][i], out[1][i])
		}
	}
}

func TestNonIntersectingClipContributesNothing(t *testing.T) {
	tr := NewTrack()
	tr.SetClips([]Clip{
		{TimelineStart: 10000, TimelineEnd: 20000, PCM: constPCM(10000, 1.0), GainLinear: 1.0},
	})
	tr.SetBlockInfo(plainInfo(0))

	out := stereoOut(64)
	tr.Process(0, 64, nil, out, event.NewInputBuffer(event.NewPool()), event.NewOutputBuffer())
	for i := 0; i < 64; i++ {
		if out[0][i] != 0 {
			t.Fatalf("sample %d = %v, want 0", i, out[0][i])
		}
	}
}

func TestFadeInRampsGainLinearly(t *testing.T) {
	tr := NewTrack()
	tr.SetClips([]Clip{
		{TimelineStart: 0, TimelineEnd: 1000, PCM: constPCM(1000, 1.0), GainLinear: 1.0, FadeInFrames: 10},
	})
	tr.SetBlockInfo(plainInfo(0))

	out := stereoOut(10)
	tr.Process(0, 10, nil, out, event.NewInputBuffer(event.NewPool()), event.NewOutputBuffer())
	if out[0][0] != 0 {
		t.Fatalf("first sample should be silent at fade-in start, got %v", out[0][0])
	}
	want := float32(9) / 10
	if out[0][9] != want {
		t.Fatalf("sample 9 = %v, want %v", out[0][9], want)
	}
}

func TestPausedTrackSleeps(t *testing.T) {
	tr := NewTrack()
	tr.SetClips([]Clip{{TimelineStart: 0, TimelineEnd: 1000, PCM: constPCM(1000, 1.0), GainLinear: 1.0}})
	tr.SetBlockInfo(&transport.Info{Range: transport.RangeChecker{Kind: transport.RangePaused}})

	out := stereoOut(64)
	status := tr.Process(0, 64, nil, out, event.NewInputBuffer(event.NewPool()), event.NewOutputBuffer())
	if status.String() != "sleep" {
		t.Fatalf("status = %v, want sleep", status)
	}
}

func TestStartAlignedClipExemptFromStartStopFade(t *testing.T) {
	tr := NewTrack()
	tr.SetClips([]Clip{{TimelineStart: 100, TimelineEnd: 1000, PCM: constPCM(900, 1.0), GainLinear: 1.0}})
	info := &transport.Info{
		Playhead: 100,
		Range:    transport.RangeChecker{Kind: transport.RangePlaying, End1: 164},
		Declick: transport.DeclickInfo{
			StartStopActive:        true,
			StartStopBuf:           []float32{0, 0.1, 0.2, 0.3},
			StartDeclickStartFrame: 100,
		},
	}
	tr.SetBlockInfo(info)

	out := stereoOut(4)
	tr.Process(0, 4, nil, out, event.NewInputBuffer(event.NewPool()), event.NewOutputBuffer())
	// clip starts exactly at start_declick_start_frame, so the fade is
	// skipped entirely: full-gain samples despite a near-zero ramp.
	for i := 0; i < 4; i++ {
		if out[0][i] != 1.0 {
			t.Fatalf("sample %d = %v, want 1.0 (exempt from start fade)", i, out[0][i])
		}
	}
}
