//go:build debug
// +build debug

package engine

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/meadowlark-audio/engine/internal/telemetry"
)

// Profiler wraps CPU and heap profiling for a running Engine. It exists
// only in debug builds; a release host has no way to reach it.
type Profiler struct {
	cpuFile *os.File
	log     *telemetry.Logger
}

// NewProfiler attaches a Profiler to eng's own logger, so profiling
// output interleaves with the block-duration stats RunCollector logs.
func NewProfiler(eng *Engine) *Profiler { return &Profiler{log: eng.log} }

// StartCPUProfile begins writing a pprof CPU profile to filename. Meant
// to bracket a single ModifyGraph/RenderBlock stress run, not to run for
// the life of the process.
func (p *Profiler) StartCPUProfile(filename string) error {
	if p.cpuFile != nil {
		return fmt.Errorf("cpu profiling already started")
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}
	p.cpuFile = f
	p.log.Info("cpu profiling started", "file", filename)
	return nil
}

// StopCPUProfile closes out the profile started by StartCPUProfile.
func (p *Profiler) StopCPUProfile() error {
	if p.cpuFile == nil {
		return fmt.Errorf("cpu profiling not started")
	}
	pprof.StopCPUProfile()
	err := p.cpuFile.Close()
	p.cpuFile = nil
	p.log.Info("cpu profiling stopped")
	return err
}

// LogMemoryStats logs a snapshot of the runtime's heap stats at the
// engine's own logger, so it lands alongside the block-duration
// percentiles RunCollector already emits.
func (p *Profiler) LogMemoryStats() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	p.log.Info("memory stats",
		"allocMB", stats.Alloc/1024/1024,
		"heapObjects", stats.HeapObjects,
		"numGC", stats.NumGC,
	)
}
