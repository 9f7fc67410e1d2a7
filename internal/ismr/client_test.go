package ismr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "http://example.invalid", Station: "PRU2"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestFetchPaginatesInDateChunks(t *testing.T) {
	var pages atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		q := r.URL.Query()
		if q.Get("key") != "sekrit" {
			t.Errorf("key = %q", q.Get("key"))
		}
		if q.Get("station") != "PRU2" {
			t.Errorf("station = %q", q.Get("station"))
		}
		if q.Get("mode") != "json" {
			t.Errorf("mode = %q", q.Get("mode"))
		}
		if got := q["field"]; len(got) != len(DefaultFields) {
			t.Errorf("fields = %v", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"time_utc":"2022-01-15T12:00:00Z","svid":3,"elev":72.5,"s4":0.5,"s4_correction":0.3}]`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "sekrit",
		Station: "PRU2",
		Chunk:   24 * time.Hour,
		Pause:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	from := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 3)
	obs, err := c.Fetch(context.Background(), from, to, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if pages.Load() != 3 {
		t.Errorf("pages requested: got %d, want 3", pages.Load())
	}
	if len(obs) != 3 {
		t.Fatalf("observations: got %d, want 3", len(obs))
	}
	if obs[0].SVID != 3 || obs[0].Elevation != 72.5 {
		t.Errorf("unexpected observation: %+v", obs[0])
	}
}

func TestFetchRetriesRateLimit(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "sekrit",
		Station: "PRU2",
		Backoff: BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	from := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	if _, err := c.Fetch(context.Background(), from, from.Add(time.Hour), nil); err != nil {
		t.Fatalf("fetch after retries: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("attempts: got %d, want 3", hits.Load())
	}
}

func TestFetchDoesNotRetryRejectedCredential(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "expired",
		Station: "PRU2",
		Backoff: BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	from := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	if _, err := c.Fetch(context.Background(), from, from.Add(time.Hour), nil); err == nil {
		t.Fatal("want error for rejected credential")
	}
	if hits.Load() != 1 {
		t.Errorf("attempts: got %d, want 1 (no retry)", hits.Load())
	}
}
