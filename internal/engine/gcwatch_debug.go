//go:build debug
// +build debug

package engine

import (
	"runtime/debug"
	"time"
)

// checkRecentGCPause reports whether the garbage collector ran within
// the last millisecond — a cheap (debug-build-only) way to correlate a
// block-duration spike logged by RunCollector with a GC pause rather
// than genuine DSP cost.
func checkRecentGCPause() bool {
	var stats debug.GCStats
	debug.ReadGCStats(&stats)
	if len(stats.PauseEnd) == 0 {
		return false
	}
	return time.Since(stats.PauseEnd[0]) < time.Millisecond
}
