// Package scan implements plugin directory discovery: a built-in
// OS-specific default list plus user-added directories, walked to a
// maximum recursion depth, collecting candidate plugin manifests.
package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/meadowlark-audio/engine/pkg/manifest"
)

// MaxScanDepth bounds directory recursion.
const MaxScanDepth = 10

// ManifestExtension is the file extension a candidate plugin manifest
// must carry to be considered during a scan.
const ManifestExtension = ".json"

// DefaultDirectories returns the built-in OS-specific scan directories
// plus `~/.clap` where the platform supports a user home directory.
func DefaultDirectories() []string {
	var dirs []string
	switch runtime.GOOS {
	case "darwin":
		dirs = append(dirs, "/Library/Audio/Plug-Ins/CLAP")
	case "windows":
		dirs = append(dirs, `C:/Program Files/Common Files/CLAP`)
	default:
		dirs = append(dirs, "/usr/lib/clap")
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".clap"))
	}
	return dirs
}

// ScannedPlugin is one manifest discovered by a scan, paired with the
// directory it was found in (needed to resolve the manifest's relative
// shared-library path).
type ScannedPlugin struct {
	ManifestPath string
	Dir          string
	Manifest     *manifest.Manifest
}

// Result is the outcome of one scan pass: plugins found plus any
// per-file errors encountered (malformed manifests are skipped, not
// fatal to the scan as a whole).
type Result struct {
	Plugins []ScannedPlugin
	Errors  []error
}

// Scanner owns the configured directory list and the "latest scan"
// generation counter: an atomic id invalidates stale results from a
// superseded scan.
type Scanner struct {
	dirs     []string
	latestID atomic.Uint64
}

// New creates a Scanner seeded with the default directories.
func New() *Scanner {
	return &Scanner{dirs: append([]string(nil), DefaultDirectories()...)}
}

// AddDirectory appends a user directory to scan, rejecting exact
// duplicates of an already-configured directory (default or
// previously-added).
func (s *Scanner) AddDirectory(path string) bool {
	for _, d := range s.dirs {
		if d == path {
			return false
		}
	}
	s.dirs = append(s.dirs, path)
	return true
}

// Directories returns the scanner's configured directory list.
func (s *Scanner) Directories() []string {
	return append([]string(nil), s.dirs...)
}

// scanToken identifies one in-flight scan; a caller holding a stale
// token can tell its result was superseded by checking IsCurrent.
type scanToken struct {
	id      uint64
	scanner *Scanner
}

// IsCurrent reports whether this token's scan is still the latest one
// started, i.e. no newer Scan call has begun since.
func (t scanToken) IsCurrent() bool {
	return t.scanner.latestID.Load() == t.id
}

// Begin starts a new scan generation, superseding any in-flight one.
// Callers doing a blocking scan on a worker goroutine should call Begin
// before walking directories and check the returned token's IsCurrent
// before publishing results.
func (s *Scanner) Begin() scanToken {
	id := s.latestID.Add(1)
	return scanToken{id: id, scanner: s}
}

// Scan walks every configured directory up to MaxScanDepth, collecting
// and validating candidate plugin manifests. Filesystem errors for
// individual entries are recorded in Result.Errors rather than aborting
// the whole walk; a missing or unreadable top-level directory is
// likewise recorded and skipped.
func (s *Scanner) Scan() Result {
	var res Result
	for _, dir := range s.dirs {
		s.scanDir(dir, &res)
	}
	return res
}

func (s *Scanner) scanDir(root string, res *Result) {
	root = filepath.Clean(root)
	rootDepth := strings.Count(root, string(filepath.Separator))

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				res.Errors = append(res.Errors, err)
				return filepath.SkipDir
			}
			res.Errors = append(res.Errors, err)
			return nil
		}
		if d.IsDir() {
			depth := strings.Count(path, string(filepath.Separator)) - rootDepth
			if depth > MaxScanDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ManifestExtension {
			return nil
		}

		m, loadErr := manifest.LoadFromFile(path)
		if loadErr != nil {
			res.Errors = append(res.Errors, loadErr)
			return nil
		}
		if valErr := m.Validate(); valErr != nil {
			res.Errors = append(res.Errors, valErr)
			return nil
		}
		res.Plugins = append(res.Plugins, ScannedPlugin{
			ManifestPath: path,
			Dir:          filepath.Dir(path),
			Manifest:     m,
		})
		return nil
	})
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
}
