package transport

import (
	"testing"

	"github.com/meadowlark-audio/engine/internal/tempo"
)

func newTestTransport() *Transport {
	tm := tempo.NewConstantMap(48000, 120, tempo.Signature{Numerator: 4, Denominator: 4})
	return New(tm, 48000, 512)
}

// TestAdvanceSplitsBlockAtLoopEnd checks that loop=[100,500),
// playhead=480, block=64 frames produces a split block covering
// [480,500) then [100,164), with playhead_next=164.
func TestAdvanceSplitsBlockAtLoopEnd(t *testing.T) {
	tr := newTestTransport()
	tr.playhead = 480
	tr.isPlaying = true
	tr.loop = LoopState{Active: true, Start: 100, End: 500}

	info := tr.Advance(64)

	if info.Range.Kind != RangeLooping {
		t.Fatalf("range kind = %v, want RangeLooping", info.Range.Kind)
	}
	if info.Range.End1 != 500 {
		t.Fatalf("End1 = %d, want 500", info.Range.End1)
	}
	if info.Range.Start2 != 100 {
		t.Fatalf("Start2 = %d, want 100", info.Range.Start2)
	}
	if info.Range.End2 != 164 {
		t.Fatalf("End2 = %d, want 164", info.Range.End2)
	}
	if info.PlayheadNext != 164 {
		t.Fatalf("PlayheadNext = %d, want 164", info.PlayheadNext)
	}
	if info.LoopBack == nil {
		t.Fatalf("expected LoopBack info to be populated")
	}
	if info.LoopBack.LoopStart != 100 || info.LoopBack.LoopEnd != 500 {
		t.Fatalf("unexpected LoopBack: %+v", info.LoopBack)
	}
}

func TestNonCrossingBlockStaysPlaying(t *testing.T) {
	tr := newTestTransport()
	tr.playhead = 0
	tr.isPlaying = true
	tr.loop = LoopState{Active: true, Start: 100, End: 500}

	info := tr.Advance(64)
	if info.Range.Kind != RangePlaying {
		t.Fatalf("range kind = %v, want RangePlaying", info.Range.Kind)
	}
	if info.PlayheadNext != 64 {
		t.Fatalf("PlayheadNext = %d, want 64", info.PlayheadNext)
	}
	if info.LoopBack != nil {
		t.Fatalf("did not expect a loop-back on a non-crossing block")
	}
}

func TestPausedTransportDoesNotAdvancePlayhead(t *testing.T) {
	tr := newTestTransport()
	tr.playhead = 42
	tr.isPlaying = false

	info := tr.Advance(64)
	if info.Range.Kind != RangePaused {
		t.Fatalf("range kind = %v, want RangePaused", info.Range.Kind)
	}
	if info.PlayheadNext != 42 {
		t.Fatalf("PlayheadNext = %d, want unchanged 42", info.PlayheadNext)
	}
}

func TestSeekStartsJumpDeclickAndRecordsSeekInfo(t *testing.T) {
	tr := newTestTransport()
	tr.playhead = 10
	tr.isPlaying = true

	tr.RequestSeek(SeekRequest{ToFrame: 1000, IsPlaying: true})
	info := tr.Advance(64)

	if info.Seek == nil {
		t.Fatalf("expected SeekInfo to be populated")
	}
	if info.Seek.SeekedFromPlayhead != 10 {
		t.Fatalf("SeekedFromPlayhead = %d, want 10", info.Seek.SeekedFromPlayhead)
	}
	if info.Playhead != 1000 {
		t.Fatalf("Playhead after seek = %d, want 1000", info.Playhead)
	}
	if !info.Declick.JumpActive {
		t.Fatalf("expected jump declick to be active immediately after a seek")
	}
}

func TestSetPlayingStartsStartStopRamp(t *testing.T) {
	tr := newTestTransport()
	tr.SetPlaying(true)
	info := tr.Advance(64)
	if !info.Declick.StartStopActive {
		t.Fatalf("expected start/stop declick to be active after SetPlaying(true)")
	}
}
