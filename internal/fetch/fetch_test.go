package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDownloadWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("DATE TIME DOY\n"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "vss20220115dmin.min")
	n, err := Download(context.Background(), NewClient(5*time.Second), srv.URL, dest)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != 14 {
		t.Errorf("bytes written: got %d, want 14", n)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "DATE TIME DOY\n" {
		t.Errorf("content mismatch: %q", data)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestDownloadNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out")
	if _, err := Download(context.Background(), NewClient(5*time.Second), srv.URL, dest); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination file created despite failed download")
	}
}

func TestDownloadIfMissingSkipsExisting(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "existing")
	if err := os.WriteFile(dest, []byte("already here"), 0644); err != nil {
		t.Fatal(err)
	}

	stats := &Stats{}
	skipped, err := DownloadIfMissing(context.Background(), NewClient(5*time.Second), srv.URL, dest, stats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !skipped {
		t.Error("expected existing file to be skipped")
	}
	if hits != 0 {
		t.Errorf("server was hit %d times for a skipped file", hits)
	}
	if stats.Skipped.Load() != 1 {
		t.Errorf("skipped counter: got %d, want 1", stats.Skipped.Load())
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "already here" {
		t.Errorf("existing file overwritten: %q", data)
	}
}
