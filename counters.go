package torero

import (
	"sort"
	"strings"
	"sync"
)

// counter names
const (
	countActive    = "active"    // connections owned by a worker right now
	countTotal     = "total"     // connections handed to the pool
	countAbandoned = "abandoned" // transport failures
	countPanics    = "panics"
)

// mucount is a map of named counters, safe for concurrent use.
type mucount struct {
	m  map[string]uint64
	mu sync.Mutex // guards map
}

func newCounters() *mucount {
	return &mucount{m: make(map[string]uint64)}
}

func (m *mucount) Up(t ...string) (current uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range t {
		m.m[i]++
		current = m.m[i]
	}
	return
}

func (m *mucount) Down(t ...string) (current uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range t {
		if m.m[i] >= 1 {
			m.m[i]--
		}
		current = m.m[i]
	}
	return
}

func (m *mucount) Uint64(t string) (current uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current = m.m[t]
	return
}

// Prefixed returns the names starting with prefix, sorted.
func (m *mucount) Prefixed(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for k := range m.m {
		if strings.HasPrefix(k, prefix) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
