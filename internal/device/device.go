// Package device implements the hardware audio I/O: a full-duplex
// PortAudio stream whose callback drives the host engine's compiled
// schedule once per hardware block. This is the only package in the
// module that talks to PortAudio; everything upstream of
// Engine.RenderBlock is portaudio-agnostic.
package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/meadowlark-audio/engine/internal/engine"
	"github.com/meadowlark-audio/engine/internal/telemetry"
	"github.com/meadowlark-audio/engine/pkg/thread"
)

// Initialize must be called once at process startup, before any Open
// call, and Terminate once at shutdown after every Stream has been
// closed — PortAudio's own library-lifetime requirement.
func Initialize() error { return portaudio.Initialize() }

// Terminate releases PortAudio's process-wide state.
func Terminate() error { return portaudio.Terminate() }

// Config selects the device-facing parameters of a Stream. Device fields
// left nil mean "use the host's default input/output device."
type Config struct {
	SampleRate      float64
	FramesPerBuffer int
	InputChannels   int
	OutputChannels  int
	InputDevice     *portaudio.DeviceInfo
	OutputDevice    *portaudio.DeviceInfo
}

// Stream owns one full-duplex PortAudio stream whose callback calls
// eng.RenderBlock every hardware block.
type Stream struct {
	pa         *portaudio.Stream
	eng        *engine.Engine
	steadyTime int64
	markOnce   sync.Once
	log        *telemetry.Logger
}

// Open opens and starts a full-duplex stream wired to eng. The stream's
// callback is the only caller of eng.RenderBlock; everything else in
// the engine's public API is reserved for the main thread.
func Open(eng *engine.Engine, cfg Config) (*Stream, error) {
	s := &Stream{eng: eng, log: telemetry.New("device")}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   cfg.InputDevice,
			Channels: cfg.InputChannels,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   cfg.OutputDevice,
			Channels: cfg.OutputChannels,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}

	pa, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return nil, fmt.Errorf("open audio stream: %w", err)
	}
	s.pa = pa

	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, fmt.Errorf("start audio stream: %w", err)
	}
	s.log.Info("stream started",
		"sampleRate", cfg.SampleRate,
		"framesPerBuffer", cfg.FramesPerBuffer,
		"inputChannels", cfg.InputChannels,
		"outputChannels", cfg.OutputChannels,
	)
	return s, nil
}

// process is PortAudio's realtime callback. It locks the calling
// goroutine to its OS thread for the stream's lifetime — PortAudio
// drives this from a dedicated audio thread, and letting the Go
// scheduler migrate the callback goroutine mid-stream would reintroduce
// exactly the kind of stall the dedicated thread exists to avoid — then
// hands the block straight to the engine's realtime render path.
func (s *Stream) process(in, out [][]float32) {
	s.markOnce.Do(func() {
		runtime.LockOSThread()
		thread.MarkAudioThread()
	})

	frames := blockFrames(in, out)
	s.eng.RenderBlock(s.steadyTime, frames, in, out)
	s.steadyTime += int64(frames)
}

// blockFrames derives the callback's frame count from whichever side of
// the duplex stream is non-empty; an input-only or output-only stream
// (the other side's channel count configured to zero) still reports a
// sensible frame count this way.
func blockFrames(in, out [][]float32) int {
	switch {
	case len(out) > 0:
		return len(out[0])
	case len(in) > 0:
		return len(in[0])
	default:
		return 0
	}
}

// Close stops and closes the underlying stream. Safe to call on a
// Stream whose Open failed partway (pa left nil).
func (s *Stream) Close() error {
	if s.pa == nil {
		return nil
	}
	if err := s.pa.Stop(); err != nil {
		s.pa.Close()
		return err
	}
	return s.pa.Close()
}
