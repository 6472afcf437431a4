//go:build !linux

package cpuinstr

// PerfBackend opens retired-instruction counters with perf_event_open(2),
// which only exists on Linux. On this platform Open always fails.
type PerfBackend struct{}

// Open implements Backend and returns ErrUnsupported.
func (PerfBackend) Open([]int, int) (Session, error) {
	return nil, ErrUnsupported
}
