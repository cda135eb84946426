package mcphost

import (
	"slices"
	"sync"
)

// rollingWindow keeps the last size tool calls in a ring buffer. Each slot
// remembers both its latency and whether the call failed, so the error rate
// always matches the samples currently in the window.
type rollingWindow struct {
	mu     sync.Mutex
	lat    []int64
	failed []bool
	pos    int
	count  int
	errors int
	size   int
}

// newRollingWindow creates a window. A non-positive size defaults to 100.
func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = 100
	}
	return &rollingWindow{
		lat:    make([]int64, size),
		failed: make([]bool, size),
		size:   size,
	}
}

// Record stores one call, evicting the oldest once the window is full.
func (w *rollingWindow) Record(latencyMs int64, isError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count >= w.size && w.failed[w.pos] {
		w.errors--
	}
	w.lat[w.pos] = latencyMs
	w.failed[w.pos] = isError
	if isError {
		w.errors++
	}
	w.pos = (w.pos + 1) % w.size
	w.count++
}

func (w *rollingWindow) windowLen() int {
	return min(w.count, w.size)
}

func (w *rollingWindow) sorted() []int64 {
	n := w.windowLen()
	if n == 0 {
		return nil
	}
	cp := slices.Clone(w.lat[:n])
	slices.Sort(cp)
	return cp
}

// P50 returns the median latency, or 0 with no samples.
func (w *rollingWindow) P50() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.sorted()
	if len(s) == 0 {
		return 0
	}
	return s[len(s)/2]
}

// P99 returns the 99th-percentile latency, or 0 with no samples.
func (w *rollingWindow) P99() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.sorted()
	if len(s) == 0 {
		return 0
	}
	return s[int(float64(len(s)-1)*0.99)]
}

// ErrorRate returns the failed fraction of the calls in the window.
func (w *rollingWindow) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.windowLen()
	if n == 0 {
		return 0
	}
	return float64(w.errors) / float64(n)
}

// Count returns the total number of calls ever recorded.
func (w *rollingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
