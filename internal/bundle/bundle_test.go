package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/zip"

	"centralpublisher/internal/apperrors"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExcluded(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want bool
	}{
		{"com/example/lib/maven-metadata.xml", true},
		{"com/example/lib/maven-metadata.xml.sha1", true},
		{"com/example/lib/maven-metadata.xml.asc", true},
		{"com/example/lib/1.0/lib-1.0.pom", false},
		{"com/example/lib/1.0/lib-1.0.jar.asc", false},
	}
	for _, tt := range tests {
		if got := Excluded(tt.name); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()
	staging := t.TempDir()
	writeFiles(t, staging, map[string]string{
		"com/example/lib/1.0/lib-1.0.jar":        "jar",
		"com/example/lib/1.0/lib-1.0.pom":        "pom",
		"com/example/lib/1.0/lib-1.0.pom.asc":    "sig",
		"com/example/lib/maven-metadata.xml":     "meta",
		"com/example/lib/maven-metadata.xml.md5": "md5",
	})

	dest := filepath.Join(t.TempDir(), "out", "bundle.zip")
	n, err := Create(staging, dest)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Create() wrote %d files, want 3", n)
	}

	r, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	want := []string{
		"com/example/lib/1.0/lib-1.0.jar",
		"com/example/lib/1.0/lib-1.0.pom",
		"com/example/lib/1.0/lib-1.0.pom.asc",
	}
	if !slices.Equal(names, want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestCreate_EmptyStaging(t *testing.T) {
	t.Parallel()
	staging := t.TempDir()
	writeFiles(t, staging, map[string]string{"g/a/maven-metadata.xml": "meta"})

	_, err := Create(staging, filepath.Join(t.TempDir(), "bundle.zip"))
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Create() error = %v, want validation error", err)
	}
}

func TestCreate_MissingStaging(t *testing.T) {
	t.Parallel()
	_, err := Create(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "bundle.zip"))
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Create() error = %v, want validation error", err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	staging := t.TempDir()
	writeFiles(t, staging, map[string]string{"g/a/1.0/a-1.0.jar": "jar"})
	dest := filepath.Join(t.TempDir(), "a.zip")
	if _, err := Create(staging, dest); err != nil {
		t.Fatal(err)
	}

	b, err := Open(dest)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if b.Name != "a.zip" || b.Path != dest || b.Size == 0 {
		t.Errorf("Open() = %+v", b)
	}
}

func TestOpen_Invalid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	notZip := filepath.Join(dir, "bundle.zip")
	if err := os.WriteFile(notZip, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{"", filepath.Join(dir, "missing.zip"), dir, notZip} {
		if _, err := Open(p); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("Open(%q) error = %v, want validation error", p, err)
		}
	}
}
