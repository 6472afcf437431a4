// Package perftest provides an in-memory cpuinstr.Backend for tests and
// examples. It never touches the hardware: counts are set by the test, and
// every call the Reader makes is recorded in order.
package perftest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ygrebnov/cpuinstr"
)

// Call names recorded by Backend.
const (
	CallOpen    = "open"
	CallEnable  = "enable"
	CallDisable = "disable"
	CallDestroy = "destroy"
	CallRead    = "read"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("perftest: injected failure")

// Backend is a scripted cpuinstr.Backend. The zero value is ready to use.
// It is safe for concurrent use.
type Backend struct {
	// FailOpen makes Open return ErrInjected.
	FailOpen bool
	// NilSession makes Open return a nil Session and no error.
	NilSession bool
	// FailEnable makes Session.Enable return ErrInjected.
	FailEnable bool
	// FailDisable makes Session.Disable return ErrInjected.
	FailDisable bool

	mu       sync.Mutex
	calls    []string
	counts   map[int]int64
	failRead map[int]bool
	cpus     []int
	pid      int
	opened   int
	enabled  bool
}

// New returns an empty Backend.
func New() *Backend { return &Backend{} }

// SetCount sets the value the next reads of cpu return. -1 is returned as is,
// so it can be used to exercise the read-failure sentinel.
func (b *Backend) SetCount(cpu int, v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counts == nil {
		b.counts = make(map[int]int64)
	}
	b.counts[cpu] = v
}

// AddCount adds n to the count of cpu, simulating retired instructions.
func (b *Backend) AddCount(cpu int, n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counts == nil {
		b.counts = make(map[int]int64)
	}
	b.counts[cpu] += n
}

// FailRead makes reads of cpu return ErrInjected until called with false.
func (b *Backend) FailRead(cpu int, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failRead == nil {
		b.failRead = make(map[int]bool)
	}
	b.failRead[cpu] = fail
}

// Calls returns the recorded calls in order. Reads are recorded as "read <cpu>".
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// Count returns how many times name was called; reads of any CPU count as CallRead.
func (b *Backend) Count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == name || (name == CallRead && strings.HasPrefix(c, CallRead+" ")) {
			n++
		}
	}
	return n
}

// OpenedCPUs returns the CPU list passed to the last Open.
func (b *Backend) OpenedCPUs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.cpus...)
}

// OpenedPID returns the pid passed to the last Open.
func (b *Backend) OpenedPID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pid
}

// Enabled reports whether the last opened session is counting.
func (b *Backend) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Live reports the number of sessions opened and not yet destroyed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

func (b *Backend) record(call string) {
	b.calls = append(b.calls, call)
}

// Open implements cpuinstr.Backend.
func (b *Backend) Open(cpus []int, pid int) (cpuinstr.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(CallOpen)
	b.cpus = append([]int(nil), cpus...)
	b.pid = pid
	if b.FailOpen {
		return nil, ErrInjected
	}
	if b.NilSession {
		return nil, nil
	}
	tracked := make(map[int]bool, len(cpus))
	for _, c := range cpus {
		tracked[c] = true
	}
	b.opened++
	return &session{b: b, tracked: tracked}, nil
}

type session struct {
	b         *Backend
	tracked   map[int]bool
	destroyed bool
}

func (s *session) Enable() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.record(CallEnable)
	if s.b.FailEnable {
		return ErrInjected
	}
	s.b.enabled = true
	return nil
}

func (s *session) Disable() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.record(CallDisable)
	s.b.enabled = false
	if s.b.FailDisable {
		return ErrInjected
	}
	return nil
}

func (s *session) Read(cpu int) (int64, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.record(fmt.Sprintf("%s %d", CallRead, cpu))
	if !s.tracked[cpu] {
		return -1, errors.Errorf("perftest: cpu %d is not tracked", cpu)
	}
	if s.b.failRead[cpu] {
		return -1, ErrInjected
	}
	return s.b.counts[cpu], nil
}

func (s *session) Destroy() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.record(CallDestroy)
	if s.destroyed {
		return errors.New("perftest: session destroyed twice")
	}
	s.destroyed = true
	s.b.opened--
	return nil
}
