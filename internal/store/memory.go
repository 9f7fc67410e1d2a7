// Package store keeps built datasets in memory for the serving layer.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/viventriglia/scintill-ai/internal/pipeline"
)

// ErrEmpty is returned before the first successful dataset build.
var ErrEmpty = errors.New("no dataset built yet")

// MemoryStore is a concurrency-safe in-memory dataset store. It retains a
// bounded history of builds so a failed refresh never evicts the last good
// dataset.
type MemoryStore struct {
	mu     sync.RWMutex
	builds []*pipeline.Dataset

	maxHistory int           // max number of retained builds
	maxAge     time.Duration // optional max age for retained builds
}

// NewMemoryStore creates a MemoryStore with optional limits. maxHistory <= 0
// means unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{maxHistory: maxHistory, maxAge: maxAge}
}

// Save appends a build and enforces retention.
func (s *MemoryStore) Save(ds *pipeline.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builds = append(s.builds, ds)

	if s.maxHistory > 0 && len(s.builds) > s.maxHistory {
		over := len(s.builds) - s.maxHistory
		s.builds = s.builds[over:]
	}

	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(s.builds); i++ {
			if !s.builds[i].BuiltAt.Before(cutoff) {
				break
			}
		}
		// Keep at least the newest build even when it is stale.
		if i > 0 && i < len(s.builds) {
			s.builds = s.builds[i:]
		}
	}
}

// Latest returns the most recent build.
func (s *MemoryStore) Latest() (*pipeline.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.builds) == 0 {
		return nil, ErrEmpty
	}
	return s.builds[len(s.builds)-1], nil
}

// Len returns the number of retained builds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.builds)
}
