package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"centralpublisher/internal/bundle"
)

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	counter := 0
	result := WaitFor(t, func() bool {
		counter++
		return counter >= 3
	}, WithTimeout(time.Second), WithInterval(10*time.Millisecond))

	if !result {
		t.Error("expected WaitFor to return true for eventual success")
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	start := time.Now()
	result := WaitFor(t, func() bool {
		return false
	}, WithTimeout(50*time.Millisecond), WithInterval(10*time.Millisecond))

	if result {
		t.Error("expected WaitFor to return false on timeout")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestMustWaitForHTTP(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	MustWaitForHTTP(t, srv.URL, WithInterval(time.Millisecond))
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNewBundle(t *testing.T) {
	t.Parallel()
	path := NewBundle(t, t.TempDir(), "lib.zip")

	b, err := bundle.Open(path)
	if err != nil {
		t.Fatalf("bundle.Open() error = %v", err)
	}
	if b.Name != "lib.zip" {
		t.Errorf("Name = %q", b.Name)
	}
}

func TestStagingDir(t *testing.T) {
	t.Parallel()
	root := StagingDir(t, "org.acme", "core", "2.1")
	for _, name := range []string{"core-2.1.jar", "core-2.1.pom"} {
		if _, err := os.Stat(filepath.Join(root, "org", "acme", "core", "2.1", name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}
