package cpuinstr

import "sync"

// LockedReader serializes access to a Reader so it can be shared between
// goroutines, e.g. by a Tracker and a Collector.
type LockedReader struct {
	mu sync.Mutex
	r  *Reader
}

// NewLockedReader wraps r. r must not be used directly afterwards.
func NewLockedReader(r *Reader) *LockedReader {
	return &LockedReader{r: r}
}

// Instant is Reader.Instant under the lock.
func (l *LockedReader) Instant(cpu int) (Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Instant(cpu)
}

// Snapshot is Reader.Snapshot under the lock.
func (l *LockedReader) Snapshot() ([]Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Snapshot()
}

// CPUs returns the tracked CPU indices.
func (l *LockedReader) CPUs() []int {
	return l.r.CPUs()
}

// Close is Reader.Close under the lock.
func (l *LockedReader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Close()
}
