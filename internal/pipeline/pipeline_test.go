package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"zipfetch/internal/domain"
	"zipfetch/internal/infra/config"
)

type fakeStore struct {
	stages []domain.Stage
}

func (s *fakeStore) SaveRun(run *domain.Run) error {
	s.stages = append(s.stages, run.Stage)
	return nil
}

func testConfig(outDir string) *config.Config {
	return &config.Config{
		Download: config.DownloadConfig{
			OutDir:     outDir,
			ChunkSize:  1024,
			MaxRetries: 3,
			RetryDelay: 10 * time.Millisecond,
			Timeout:    5 * time.Second,
		},
		Verify:  config.VerifyConfig{Enabled: true, PointerTimeout: 5 * time.Second},
		Extract: config.ExtractConfig{Enabled: true, MaxDepth: 1, Workers: 2},
	}
}

// buildArchive returns an outer container holding a plain entry and one
// nested container.
func buildArchive(t *testing.T) []byte {
	t.Helper()

	var innerBuf bytes.Buffer
	iw := zip.NewWriter(&innerBuf)
	f, _ := iw.Create("inner.txt")
	f.Write([]byte("inner payload"))
	iw.Close()

	// Poorly compressible padding so the archive spans several chunks and
	// the dropped-connection path actually resumes mid-file.
	pad := make([]byte, 12_000)
	seed := uint32(2463534242)
	for i := range pad {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		pad[i] = byte(seed)
	}

	var outerBuf bytes.Buffer
	ow := zip.NewWriter(&outerBuf)
	f, _ = ow.Create("outer.txt")
	f.Write([]byte("outer payload"))
	f, _ = ow.Create("pad.bin")
	f.Write(pad)
	f, _ = ow.Create("child.zip")
	f.Write(innerBuf.Bytes())
	ow.Close()

	return outerBuf.Bytes()
}

// artifactServer serves payload under /repo/resolve/main/artifact.zip with
// range support and its pointer descriptor under the raw path. When
// dropOnce is set, the first content request dies after 4096 bytes.
func artifactServer(t *testing.T, payload []byte, dropOnce bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	sum := sha256.Sum256(payload)
	pointer := "version https://git-lfs.github.com/spec/v1\noid sha256:" + hex.EncodeToString(sum[:]) + "\nsize " + strconv.Itoa(len(payload)) + "\n"

	var dropped atomic.Bool
	pointerHits := &atomic.Int32{}

	mux := http.NewServeMux()
	mux.HandleFunc("/repo/resolve/main/artifact.zip", func(w http.ResponseWriter, r *http.Request) {
		var offset int
		if h := r.Header.Get("Range"); h != "" {
			offset, _ = strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(h, "bytes="), "-"))
		}
		if offset >= len(payload) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(payload)-offset))
		if offset > 0 {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
		}

		if dropOnce && !dropped.Load() && offset+4096 < len(payload) {
			dropped.Store(true)
			w.Write(payload[offset : offset+4096])
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}

		w.Write(payload[offset:])
	})
	mux.HandleFunc("/repo/raw/main/artifact.zip", func(w http.ResponseWriter, r *http.Request) {
		pointerHits.Add(1)
		fmt.Fprint(w, pointer)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, pointerHits
}

func newRun(url, dest string, extract bool) *domain.Run {
	return &domain.Run{
		ID:          "run-test",
		URL:         url,
		Destination: dest,
		Stage:       domain.StageIdle,
		Extract:     extract,
		StartedAt:   time.Now(),
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	payload := buildArchive(t)
	srv, pointerHits := artifactServer(t, payload, true)

	outDir := t.TempDir()
	dest := filepath.Join(outDir, "artifact.zip")

	store := &fakeStore{}
	p := New(testConfig(outDir), nil, store, nil, nil)

	run := newRun(srv.URL+"/repo/resolve/main/artifact.zip?download=true", dest, true)
	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	if run.Stage != domain.StageDone {
		t.Errorf("stage = %s, want done", run.Stage)
	}

	// Full payload on disk despite the dropped connection.
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("artifact = %d bytes, want %d", len(got), len(payload))
	}

	// Pointer URL was derived from the content URL.
	if pointerHits.Load() == 0 {
		t.Error("pointer descriptor was never fetched")
	}

	// Outer and inner entries extracted, nested container consumed.
	if _, err := os.Stat(filepath.Join(outDir, "outer.txt")); err != nil {
		t.Errorf("outer entry missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "child", "inner.txt")); err != nil {
		t.Errorf("inner entry missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "child.zip")); !os.IsNotExist(err) {
		t.Error("nested container must be deleted")
	}
	if _, err := os.Stat(dest); err != nil {
		t.Error("top-level artifact must be left intact")
	}

	wantStages := []domain.Stage{
		domain.StageDownloading,
		domain.StageVerifying,
		domain.StageExtracting,
		domain.StageDone,
	}
	if len(store.stages) != len(wantStages) {
		t.Fatalf("persisted stages = %v, want %v", store.stages, wantStages)
	}
	for i, s := range wantStages {
		if store.stages[i] != s {
			t.Errorf("stage[%d] = %s, want %s", i, store.stages[i], s)
		}
	}
}

func TestPipelineIntegrityGate(t *testing.T) {
	payload := buildArchive(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/repo/resolve/main/artifact.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	mux.HandleFunc("/repo/raw/main/artifact.zip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "oid sha256:"+strings.Repeat("0", 64)+"\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	dest := filepath.Join(outDir, "artifact.zip")

	p := New(testConfig(outDir), nil, nil, nil, nil)
	run := newRun(srv.URL+"/repo/resolve/main/artifact.zip", dest, true)

	err := p.Run(context.Background(), run)
	if !errors.Is(err, domain.ErrIntegrityMismatch) {
		t.Fatalf("expected ErrIntegrityMismatch, got %v", err)
	}
	if run.Stage != domain.StageFailed {
		t.Errorf("stage = %s, want failed", run.Stage)
	}

	// The gate held: nothing was extracted.
	if _, err := os.Stat(filepath.Join(outDir, "outer.txt")); !os.IsNotExist(err) {
		t.Error("extraction must not run on unverified content")
	}
}

func TestPipelineDownloadFailure(t *testing.T) {
	var pointerHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/raw/") {
			pointerHits.Add(1)
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	p := New(testConfig(outDir), nil, nil, nil, nil)
	run := newRun(srv.URL+"/repo/resolve/main/artifact.zip", filepath.Join(outDir, "artifact.zip"), true)

	err := p.Run(context.Background(), run)
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if run.Stage != domain.StageFailed {
		t.Errorf("stage = %s, want failed", run.Stage)
	}
	if run.Error == "" {
		t.Error("run error must record the failure context")
	}
	if pointerHits.Load() != 0 {
		t.Error("verification must not run after a failed download")
	}

	if got := FailureClass(err); got != "download exhausted retries" {
		t.Errorf("FailureClass = %q", got)
	}
}

func TestPipelineSkipsExtractionForPlainFile(t *testing.T) {
	payload := []byte("just a text artifact, not a container")
	sum := sha256.Sum256(payload)

	mux := http.NewServeMux()
	mux.HandleFunc("/repo/resolve/main/notes.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	mux.HandleFunc("/repo/raw/main/notes.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "oid sha256:"+hex.EncodeToString(sum[:])+"\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	store := &fakeStore{}
	p := New(testConfig(outDir), nil, store, nil, nil)
	run := newRun(srv.URL+"/repo/resolve/main/notes.txt", filepath.Join(outDir, "notes.txt"), true)

	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if run.Stage != domain.StageDone {
		t.Errorf("stage = %s, want done", run.Stage)
	}

	// Verifying -> Done directly, no Extracting stage recorded.
	for _, s := range store.stages {
		if s == domain.StageExtracting {
			t.Error("plain file must not enter the extracting stage")
		}
	}
}

func TestPipelineRejectsReusedRun(t *testing.T) {
	p := New(testConfig(t.TempDir()), nil, nil, nil, nil)
	run := newRun("http://example.invalid/x", "x", false)
	run.Stage = domain.StageDone

	if err := p.Run(context.Background(), run); err == nil {
		t.Fatal("expected error for run not in idle stage")
	}
}
