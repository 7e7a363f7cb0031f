//go:build !debug
// +build !debug

package engine

// checkRecentGCPause is a no-op in release builds; reading GC stats on
// every collector tick is a debug-only convenience, not something a
// shipped host should pay for.
func checkRecentGCPause() bool { return false }
