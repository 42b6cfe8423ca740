// Package time carries clock values shared between goroutines.
package time

import (
	"sync"
	"time"
)

// SharedTime is a timestamp safe for concurrent reads and writes.
// The zero value holds the zero time.
type SharedTime struct {
	mu    sync.RWMutex
	stamp time.Time
}

// Time returns the stored timestamp.
func (s *SharedTime) Time() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stamp
}

// Set replaces the stored timestamp.
func (s *SharedTime) Set(to time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp = to
}
