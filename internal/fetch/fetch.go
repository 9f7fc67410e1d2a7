// Package fetch implements raw-file downloads for the bulk fetchers.
// Files are written through a temp path and renamed into place so a killed
// download never leaves a truncated file behind.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// Stats holds atomic counters shared by concurrent download workers.
type Stats struct {
	Completed atomic.Uint64
	Failed    atomic.Uint64
	Skipped   atomic.Uint64
	Bytes     atomic.Uint64
}

// NewClient returns an HTTP client with the given per-request timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Download fetches url into destPath and returns the number of bytes written.
// Any HTTP status other than 200 is an error; no retry is attempted.
func Download(ctx context.Context, client *http.Client, url, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("not found (404)")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create file failed: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	f.Close()

	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("download failed: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename failed: %w", err)
	}

	return n, nil
}

// DownloadIfMissing downloads url to destPath unless a non-empty file is
// already there, updating stats either way. Resumed runs skip completed
// files.
func DownloadIfMissing(ctx context.Context, client *http.Client, url, destPath string, stats *Stats) (skipped bool, err error) {
	if info, statErr := os.Stat(destPath); statErr == nil && info.Size() > 0 {
		stats.Skipped.Add(1)
		return true, nil
	}

	n, err := Download(ctx, client, url, destPath)
	if err != nil {
		stats.Failed.Add(1)
		return false, err
	}
	stats.Bytes.Add(uint64(n))
	stats.Completed.Add(1)
	return false, nil
}
