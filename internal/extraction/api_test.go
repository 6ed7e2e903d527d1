package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/go-pdf/fpdf"
)

func writeChunk(t *testing.T, path string) {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatal(err)
	}
}

func layoutZip(t *testing.T, layoutContent string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("doc_part_001/auto/layout.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(layoutContent)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeService emulates the extraction HTTP service end to end.
type fakeService struct {
	t          *testing.T
	polls      atomic.Int32
	uploads    atomic.Int32
	requests   atomic.Int32
	pollsUntil int32 // number of "running" responses before "done"
	failState  bool
	server     *httptest.Server
}

func newFakeService(t *testing.T, pollsUntilDone int32, failState bool) *fakeService {
	s := &fakeService{t: t, pollsUntil: pollsUntilDone, failState: failState}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /file-urls/batch", func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"batch_id":  "batch-1",
				"file_urls": []string{s.server.URL + "/upload"},
			},
		})
	})

	mux.HandleFunc("PUT /upload", func(w http.ResponseWriter, r *http.Request) {
		s.uploads.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /extract-results/batch/batch-1", func(w http.ResponseWriter, r *http.Request) {
		n := s.polls.Add(1)
		state := "running"
		zipURL := ""
		errMsg := ""
		switch {
		case s.failState:
			state = "failed"
			errMsg = "layout analysis crashed"
		case n > s.pollsUntil:
			state = "done"
			zipURL = s.server.URL + "/result.zip"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"extract_result": []map[string]any{{
					"state":        state,
					"full_zip_url": zipURL,
					"err_msg":      errMsg,
					"extract_progress": map[string]any{
						"extracted_pages": 1,
						"total_pages":     1,
					},
				}},
			},
		})
	})

	mux.HandleFunc("GET /result.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(layoutZip(s.t, `{"pdf_info":[{"page_idx":0,"page_size":[612,792]}]}`))
	})

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func newTestClient(s *fakeService, outputDir string) *APIClient {
	return NewAPIClient(APIConfig{
		BaseURL:         s.server.URL,
		APIKey:          "test-key",
		OutputDir:       outputDir,
		HTTPClient:      s.server.Client(),
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 10,
	})
}

func TestAPIClientProcess(t *testing.T) {
	dir := t.TempDir()
	chunk := filepath.Join(dir, "doc_part_001.pdf")
	writeChunk(t, chunk)

	svc := newFakeService(t, 2, false)
	client := newTestClient(svc, dir)

	middlePath, err := client.Process(context.Background(), chunk)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := filepath.Join(dir, "doc_part_001", "vlm", "doc_part_001_middle.json")
	if middlePath != want {
		t.Errorf("middle path = %q, want %q", middlePath, want)
	}

	data, err := os.ReadFile(middlePath)
	if err != nil {
		t.Fatal(err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		t.Fatalf("middle JSON is not valid JSON: %v", err)
	}
	if _, ok := tree["pdf_info"]; !ok {
		t.Error("middle JSON missing pdf_info")
	}

	if svc.uploads.Load() != 1 {
		t.Errorf("uploads = %d, want 1", svc.uploads.Load())
	}
	if svc.polls.Load() != 3 {
		t.Errorf("polls = %d, want 3 (two running, one done)", svc.polls.Load())
	}
}

func TestAPIClientSkipsProcessed(t *testing.T) {
	dir := t.TempDir()
	chunk := filepath.Join(dir, "doc_part_001.pdf")
	writeChunk(t, chunk)

	middlePath := MiddleJSONPath(dir, "doc_part_001", "vlm")
	if err := os.MkdirAll(filepath.Dir(middlePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(middlePath, []byte(`{"pdf_info":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newFakeService(t, 0, false)
	client := newTestClient(svc, dir)

	got, err := client.Process(context.Background(), chunk)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != middlePath {
		t.Errorf("path = %q, want %q", got, middlePath)
	}
	if svc.requests.Load() != 0 {
		t.Errorf("service was contacted %d times despite existing output", svc.requests.Load())
	}
}

func TestAPIClientRemoteFailure(t *testing.T) {
	dir := t.TempDir()
	chunk := filepath.Join(dir, "doc_part_001.pdf")
	writeChunk(t, chunk)

	svc := newFakeService(t, 0, true)
	client := newTestClient(svc, dir)

	if _, err := client.Process(context.Background(), chunk); err == nil {
		t.Fatal("expected error for remote failure state")
	}
}

func TestAPIClientContextCancelled(t *testing.T) {
	dir := t.TempDir()
	chunk := filepath.Join(dir, "doc_part_001.pdf")
	writeChunk(t, chunk)

	// never reaches done, so polling must exit on cancellation
	svc := newFakeService(t, 1000, false)
	client := newTestClient(svc, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Process(ctx, chunk); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type flakyEngine struct {
	failures int
	calls    int
}

func (f *flakyEngine) Mode() string { return "vlm" }

func (f *flakyEngine) Process(ctx context.Context, chunkPath string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient failure")
	}
	return "middle.json", nil
}

func TestWithRetry(t *testing.T) {
	e := &flakyEngine{failures: 1}
	wrapped := WithRetry(e, 2)

	path, err := wrapped.Process(context.Background(), "chunk.pdf")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if path != "middle.json" || e.calls != 2 {
		t.Errorf("path = %q, calls = %d", path, e.calls)
	}
	if wrapped.Mode() != "vlm" {
		t.Errorf("Mode() = %q, want the inner engine's mode", wrapped.Mode())
	}
}

func TestWithRetryExhausted(t *testing.T) {
	e := &flakyEngine{failures: 10}
	if _, err := WithRetry(e, 2).Process(context.Background(), "chunk.pdf"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if e.calls != 2 {
		t.Errorf("calls = %d, want 2", e.calls)
	}
}
