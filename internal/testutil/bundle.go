package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"centralpublisher/internal/bundle"
)

// StagingDir creates a Maven repository layout holding one jar and pom for
// group:artifact:version.
func StagingDir(tb testing.TB, group, artifact, version string) string {
	tb.Helper()
	root := tb.TempDir()
	dir := filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(group, ".", "/")), artifact, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatal(err)
	}
	base := artifact + "-" + version
	for name, content := range map[string]string{
		base + ".jar": "jar",
		base + ".pom": "<project/>",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			tb.Fatal(err)
		}
	}
	return root
}

// NewBundle zips a small staging repository into dir/name and returns its path.
func NewBundle(tb testing.TB, dir, name string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if _, err := bundle.Create(StagingDir(tb, "com.example", "lib", "1.0"), path); err != nil {
		tb.Fatalf("create bundle: %v", err)
	}
	return path
}
