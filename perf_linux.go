//go:build linux

package cpuinstr

import (
	"encoding/binary"
	"unsafe"

	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PerfBackend opens retired-instruction counters with perf_event_open(2).
// Counting all processes (AllProcesses) usually requires CAP_PERFMON or a
// kernel.perf_event_paranoid setting of 0 or lower.
type PerfBackend struct{}

// Open implements Backend. It opens one disabled PERF_COUNT_HW_INSTRUCTIONS
// event per CPU and closes the ones already opened if any of them fails.
func (PerfBackend) Open(cpus []int, pid int) (Session, error) {
	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Config: unix.PERF_COUNT_HW_INSTRUCTIONS,
		Bits:   unix.PerfBitDisabled,
	}
	attr.Size = uint32(unsafe.Sizeof(attr))

	s := &perfSession{fds: make(map[int]int, len(cpus)), order: make([]int, 0, len(cpus))}
	for _, cpu := range cpus {
		fd, err := unix.PerfEventOpen(&attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			_ = s.Destroy()
			return nil, errors.Wrapf(err, "perf_event_open cpu %d", cpu)
		}
		s.fds[cpu] = fd
		s.order = append(s.order, cpu)
	}
	return s, nil
}

type perfSession struct {
	fds   map[int]int // cpu -> perf event fd
	order []int
}

func (s *perfSession) ioctl(req uint, name string) error {
	for _, cpu := range s.order {
		if err := unix.IoctlSetInt(s.fds[cpu], req, 0); err != nil {
			return errors.Wrapf(err, "%s cpu %d", name, cpu)
		}
	}
	return nil
}

func (s *perfSession) Enable() error {
	if err := s.ioctl(unix.PERF_EVENT_IOC_RESET, "PERF_EVENT_IOC_RESET"); err != nil {
		return err
	}
	return s.ioctl(unix.PERF_EVENT_IOC_ENABLE, "PERF_EVENT_IOC_ENABLE")
}

func (s *perfSession) Disable() error {
	return s.ioctl(unix.PERF_EVENT_IOC_DISABLE, "PERF_EVENT_IOC_DISABLE")
}

func (s *perfSession) Read(cpu int) (int64, error) {
	fd, ok := s.fds[cpu]
	if !ok {
		return readFailed, errors.Errorf("cpu %d is not tracked", cpu)
	}
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil {
		return readFailed, errors.Wrapf(err, "read cpu %d", cpu)
	}
	if n != len(buf) {
		return readFailed, errors.Errorf("short read on cpu %d: %d bytes", cpu, n)
	}
	return int64(binary.NativeEndian.Uint64(buf[:])), nil
}

func (s *perfSession) Destroy() error {
	errs := multierror.New()
	for _, cpu := range s.order {
		if err := unix.Close(s.fds[cpu]); err != nil {
			errs.Add(errors.Wrapf(err, "close cpu %d", cpu))
		}
	}
	s.fds = nil
	s.order = nil
	return errs.Err()
}
