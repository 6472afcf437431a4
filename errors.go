package cpuinstr

import "github.com/pkg/errors"

// Sentinel errors returned by the package. Returned errors may carry extra
// context; test for them with errors.Is.
var (
	// ErrCPUCount is returned when the host CPU count, or a CPU index passed to
	// WithCPUs, cannot be represented as a kernel CPU index.
	ErrCPUCount = errors.New("cpuinstr: cpu count out of range")

	// ErrFailedToCreate is returned when the counter session could not be
	// opened or enabled. No session resources are left behind.
	ErrFailedToCreate = errors.New("cpuinstr: failed to create reader")

	// ErrFailedToRead is returned when a counter read fails. The Reader stays
	// usable; the caller decides whether to retry.
	ErrFailedToRead = errors.New("cpuinstr: failed to read cpu instruction count")

	// ErrInconsistentCPU is returned when a delta is requested between two
	// Samples taken on different CPUs.
	ErrInconsistentCPU = errors.New("cpuinstr: samples were taken on different cpus and cannot be subtracted")

	// ErrClosed is returned by Reader methods called after Close.
	ErrClosed = errors.New("cpuinstr: reader closed")

	// ErrUnsupported is returned by PerfBackend on platforms without perf_event_open.
	ErrUnsupported = errors.New("cpuinstr: hardware instruction counters are not supported on this platform")
)
