//go:build debug
// +build debug

package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProfilerStartStopCPUProfile(t *testing.T) {
	eng, _ := newTestEngine(t, "test.silent", nil)
	p := NewProfiler(eng)

	path := filepath.Join(t.TempDir(), "cpu.prof")
	if err := p.StartCPUProfile(path); err != nil {
		t.Fatalf("StartCPUProfile: %v", err)
	}
	if err := p.StartCPUProfile(path); err == nil {
		t.Fatalf("expected error starting a second profile while one is active")
	}
	if err := p.StopCPUProfile(); err != nil {
		t.Fatalf("StopCPUProfile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("profile file not written: %v", err)
	}
	if err := p.StopCPUProfile(); err == nil {
		t.Fatalf("expected error stopping an already-stopped profile")
	}
}

func TestProfilerLogMemoryStatsDoesNotPanic(t *testing.T) {
	eng, _ := newTestEngine(t, "test.silent", nil)
	NewProfiler(eng).LogMemoryStats()
}
