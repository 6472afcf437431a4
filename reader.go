package cpuinstr

import (
	"runtime"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Reader owns an enabled instruction-counter session covering a set of CPUs
// and takes Samples from it.
//
// A Reader is not safe for concurrent use; wrap it in a LockedReader to share
// it between goroutines. Close disables and destroys the session. If a Reader
// becomes unreachable without being closed, the session is torn down when the
// garbage collector notices.
type Reader struct {
	h       *handle
	cpus    []int
	pid     int
	cleanup runtime.Cleanup
}

// handle is the state released on teardown. It is kept apart from Reader so
// the GC cleanup can reach it without keeping the Reader alive.
type handle struct {
	session Session
	closed  atomic.Bool
	logger  log.Logger
}

// release disables, then destroys the session. Only the first call does anything.
func (h *handle) release() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	errs := multierror.New()
	if err := h.session.Disable(); err != nil {
		errs.Add(errors.Wrap(err, "disable counters"))
	}
	if err := h.session.Destroy(); err != nil {
		errs.Add(errors.Wrap(err, "destroy counters"))
	}
	return errs.Err()
}

// NewReader opens and enables instruction counters on every physical CPU, or on
// the CPUs given with WithCPUs. Construction is atomic: on error nothing is
// left open.
func NewReader(opts ...ReaderOption) (*Reader, error) {
	cfg := defaultReaderConfig()
	for _, o := range opts {
		if o != nil {
			o(cfg)
		}
	}

	cpus, err := resolveCPUs(cfg)
	if err != nil {
		return nil, err
	}

	session, err := cfg.backend.Open(cpus, cfg.pid)
	if err != nil {
		return nil, errors.Wrapf(ErrFailedToCreate, "open: %v", err)
	}
	if session == nil {
		return nil, errors.Wrap(ErrFailedToCreate, "open returned no session")
	}
	if err := session.Enable(); err != nil {
		if derr := session.Destroy(); derr != nil {
			level.Warn(cfg.logger).Log("msg", "failed to destroy counters after enable failure", "err", derr)
		}
		return nil, errors.Wrapf(ErrFailedToCreate, "enable: %v", err)
	}

	r := &Reader{
		h:    &handle{session: session, logger: cfg.logger},
		cpus: cpus,
		pid:  cfg.pid,
	}
	r.cleanup = runtime.AddCleanup(r, releaseUnclosed, r.h)
	level.Debug(cfg.logger).Log("msg", "instruction counters enabled", "cpus", len(cpus), "pid", cfg.pid)
	return r, nil
}

func resolveCPUs(cfg *readerConfig) ([]int, error) {
	if cfg.cpus != nil {
		return validateCPUs(cfg.cpus)
	}
	n, err := cfg.cpuCount()
	if err != nil {
		return nil, errors.Wrapf(ErrCPUCount, "%v", err)
	}
	return cpuRange(n)
}

func releaseUnclosed(h *handle) {
	if h.closed.Load() {
		return
	}
	level.Warn(h.logger).Log("msg", "instruction reader was not closed; releasing counters")
	if err := h.release(); err != nil {
		level.Error(h.logger).Log("msg", "failed to release counters", "err", err)
	}
}

// Instant reads the instruction count of cpu. A failed read returns
// ErrFailedToRead and leaves the Reader usable.
func (r *Reader) Instant(cpu int) (Sample, error) {
	if r.h.closed.Load() {
		return Sample{}, ErrClosed
	}
	raw, err := r.h.session.Read(cpu)
	runtime.KeepAlive(r)
	if err != nil {
		return Sample{}, errors.Wrapf(ErrFailedToRead, "cpu %d: %v", cpu, err)
	}
	if raw == readFailed {
		return Sample{}, errors.Wrapf(ErrFailedToRead, "cpu %d", cpu)
	}
	return newSample(cpu, Count(raw)), nil
}

// Snapshot reads every tracked CPU in order. CPUs whose read fails are left
// out of the result and reported together in the returned error.
func (r *Reader) Snapshot() ([]Sample, error) {
	return snapshot(r)
}

// CPUs returns the tracked CPU indices.
func (r *Reader) CPUs() []int {
	return append([]int(nil), r.cpus...)
}

// PID returns the counted process, or AllProcesses.
func (r *Reader) PID() int { return r.pid }

// Close disables and destroys the counter session. It is safe to call more
// than once; only the first call has an effect.
func (r *Reader) Close() error {
	r.cleanup.Stop()
	if r.h.closed.Load() {
		return nil
	}
	err := r.h.release()
	level.Debug(r.h.logger).Log("msg", "instruction counters released", "cpus", len(r.cpus))
	return err
}

// Source is anything that takes per-CPU samples: a Reader or a LockedReader.
type Source interface {
	CPUs() []int
	Instant(cpu int) (Sample, error)
}

func snapshot(src Source) ([]Sample, error) {
	cpus := src.CPUs()
	out := make([]Sample, 0, len(cpus))
	errs := multierror.New()
	for _, cpu := range cpus {
		s, err := src.Instant(cpu)
		if err != nil {
			errs.Add(err)
			continue
		}
		out = append(out, s)
	}
	return out, errs.Err()
}
