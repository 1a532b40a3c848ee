package service

import (
	"sync"
)

// stampedeTracker counts concurrent cache misses per key.
// RecordMiss increments and returns the count; Resolve decrements once the miss is served.
// A count above 1 means several callers missed the same grid cell at once.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		activeMisses: make(map[string]int),
	}
}

// RecordMiss records a cache miss for key and returns the concurrent miss count after incrementing.
// Callers defer Resolve(key).
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// Resolve records completion of a miss for key.
func (st *stampedeTracker) Resolve(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[key]; ok && count > 0 {
		st.activeMisses[key]--
		if st.activeMisses[key] == 0 {
			delete(st.activeMisses, key)
		}
	}
}

// Active returns the number of misses currently in progress for key.
func (st *stampedeTracker) Active(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.activeMisses[key]
}
