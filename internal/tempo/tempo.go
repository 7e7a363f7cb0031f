// Package tempo implements the frame <-> beat <-> seconds mapping. The
// default Map is constant tempo and time signature; reads are lock-free
// (an atomic pointer swap) so the audio thread can call it directly
// every block.
package tempo

import "sync/atomic"

// BeatTime is a song position expressed in beats.
type BeatTime float64

// Signature is a time signature numerator/denominator pair.
type Signature struct {
	Numerator   uint16
	Denominator uint16
}

// Info is the bundle transport_info_at_frame returns.
type Info struct {
	Tempo            float64 // beats per minute
	TempoRate        float64 // bpm change per second (0 for a constant map)
	TimeSignature    Signature
	CurrentBarNumber int64
	CurrentBarStart  BeatTime
}

type mapState struct {
	sampleRate float64
	bpm        float64
	tsig       Signature
	version    uint64
}

// Map is a versioned, pure frame->(beat,seconds,bar,tempo,tsig) function.
// Every replacement of the map increments Version so the transport can
// detect changes and recompute beat-denominated loop endpoints.
type Map struct {
	state atomic.Pointer[mapState]
}

// NewConstantMap builds the default constant-tempo,
// constant-time-signature map.
func NewConstantMap(sampleRate, bpm float64, tsig Signature) *Map {
	m := &Map{}
	m.state.Store(&mapState{sampleRate: sampleRate, bpm: bpm, tsig: tsig, version: 1})
	return m
}

// Version returns the map's version counter. Incremented by Replace.
func (m *Map) Version() uint64 { return m.state.Load().version }

func beatsPerSecond(s *mapState) float64 { return s.bpm / 60.0 }

// FrameToBeat converts a frame count to a beat position, computed as
// (f/sr)*bps + (f mod sr)*bps/sr to preserve precision for very large
// frame counts: splitting the division avoids the precision loss that a
// single f/sr*bps would accumulate once f exceeds a few hours of audio
// at high sample rates.
func (m *Map) FrameToBeat(f int64) BeatTime {
	s := m.state.Load()
	sr := int64(s.sampleRate)
	bps := beatsPerSecond(s)
	whole := f / sr
	rem := f % sr
	return BeatTime(float64(whole)*bps + float64(rem)*bps/s.sampleRate)
}

// FrameToSeconds converts a frame count to seconds, using the same
// split-division technique as FrameToBeat.
func (m *Map) FrameToSeconds(f int64) float64 {
	s := m.state.Load()
	sr := int64(s.sampleRate)
	whole := f / sr
	rem := f % sr
	return float64(whole) + float64(rem)/s.sampleRate
}

// BeatToFrame is the inverse of FrameToBeat, used when loop endpoints are
// specified in beats and must be re-resolved to frames after a tempo-map
// replacement.
func (m *Map) BeatToFrame(b BeatTime) int64 {
	s := m.state.Load()
	seconds := float64(b) / beatsPerSecond(s)
	return int64(seconds * s.sampleRate)
}

// TransportInfoAtFrame returns tempo, tempo rate, time signature, and bar
// position at the given frame.
func (m *Map) TransportInfoAtFrame(f int64) Info {
	s := m.state.Load()
	beat := m.FrameToBeat(f)
	barLen := float64(s.tsig.Numerator)
	var barNumber int64
	var barStart BeatTime
	if barLen > 0 {
		barNumber = int64(float64(beat) / barLen)
		barStart = BeatTime(float64(barNumber) * barLen)
	}
	return Info{
		Tempo:            s.bpm,
		TempoRate:        0,
		TimeSignature:    s.tsig,
		CurrentBarNumber: barNumber,
		CurrentBarStart:  barStart,
	}
}

// Replace atomically swaps in a new tempo/time-signature and bumps
// Version. Called from the engine main thread only.
func (m *Map) Replace(bpm float64, tsig Signature) {
	prev := m.state.Load()
	next := &mapState{sampleRate: prev.sampleRate, bpm: bpm, tsig: tsig, version: prev.version + 1}
	m.state.Store(next)
}
