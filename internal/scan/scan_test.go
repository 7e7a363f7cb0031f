package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name string, valid bool) {
	t.Helper()
	content := `{"schemaVersion":"1.0","plugin":{"id":"com.example.` + name + `","name":"` + name + `","vendor":"v","version":"1.0"},"build":{"goSharedLibrary":"` + name + `.so"}}`
	if !valid {
		content = `{"schemaVersion":"1.0"}`
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestScanFindsValidManifestsAndSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "gain", true)
	writeManifest(t, dir, "broken", false)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := &Scanner{}
	s.AddDirectory(dir)
	res := s.Scan()

	if len(res.Plugins) != 1 {
		t.Fatalf("found %d plugins, want 1", len(res.Plugins))
	}
	if res.Plugins[0].Manifest.Plugin.ID != "com.example.gain" {
		t.Fatalf("plugin id = %q, want com.example.gain", res.Plugins[0].Manifest.Plugin.ID)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %d, want 1 (the broken manifest)", len(res.Errors))
	}
}

func TestScanRecursesIntoSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "vendorA")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeManifest(t, sub, "delay", true)

	s := &Scanner{}
	s.AddDirectory(dir)
	res := s.Scan()
	if len(res.Plugins) != 1 {
		t.Fatalf("found %d plugins, want 1", len(res.Plugins))
	}
}

func TestAddDirectoryRejectsDuplicates(t *testing.T) {
	s := New()
	dir := s.Directories()[0]
	if s.AddDirectory(dir) {
		t.Fatalf("expected duplicate default directory to be rejected")
	}
	if !s.AddDirectory("/some/new/dir") {
		t.Fatalf("expected a genuinely new directory to be accepted")
	}
}

func TestBeginSupersedesPreviousToken(t *testing.T) {
	s := New()
	first := s.Begin()
	if !first.IsCurrent() {
		t.Fatalf("freshly begun token should be current")
	}
	second := s.Begin()
	if first.IsCurrent() {
		t.Fatalf("first token should be superseded by the second Begin")
	}
	if !second.IsCurrent() {
		t.Fatalf("second token should be current")
	}
}
