package cpuinstr

import "github.com/go-kit/log"

type readerConfig struct {
	// explicit cpu subset; nil means every physical cpu
	cpus    []int
	pid     int
	backend Backend
	logger  log.Logger
	// cpuCount reports the host cpu count; replaced in tests.
	cpuCount func() (int, error)
}

func defaultReaderConfig() *readerConfig {
	return &readerConfig{
		pid:      AllProcesses,
		backend:  PerfBackend{},
		logger:   log.NewNopLogger(),
		cpuCount: physicalCPUCount,
	}
}

// ReaderOption configures a Reader constructed by NewReader.
type ReaderOption func(*readerConfig)

// WithPID restricts counting to one process or thread. Without it every
// process on the tracked CPUs is counted.
func WithPID(pid int) ReaderOption {
	return func(cfg *readerConfig) { cfg.pid = pid }
}

// WithCPUs tracks only the given CPU indices instead of every physical CPU.
func WithCPUs(cpus ...int) ReaderOption {
	return func(cfg *readerConfig) { cfg.cpus = append([]int(nil), cpus...) }
}

// WithBackend replaces the perf_event_open backend, e.g. with a perftest.Backend.
func WithBackend(b Backend) ReaderOption {
	return func(cfg *readerConfig) {
		if b != nil {
			cfg.backend = b
		}
	}
}

// WithLogger sets the logger for lifecycle events. The default discards everything.
func WithLogger(l log.Logger) ReaderOption {
	return func(cfg *readerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// withCPUCount overrides host cpu detection.
func withCPUCount(f func() (int, error)) ReaderOption {
	return func(cfg *readerConfig) { cfg.cpuCount = f }
}
