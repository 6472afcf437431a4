package cpuinstr

import (
	"strconv"

	"github.com/pkg/errors"
)

// Sample is the instruction count of one CPU at one instant.
// Samples are produced by Reader.Instant and are plain values: they can be
// copied freely and hold no reference to the Reader that took them.
type Sample struct {
	cpu   int
	count Count
}

func newSample(cpu int, count Count) Sample {
	return Sample{cpu: cpu, count: count}
}

// CPU returns the index of the CPU the sample was read from.
func (s Sample) CPU() int { return s.cpu }

// Count returns the cumulative instruction count at the time of the sample.
func (s Sample) Count() Count { return s.count }

// Since returns the number of instructions retired between other and s.
// It fails with ErrInconsistentCPU if the samples come from different CPUs.
func (s Sample) Since(other Sample) (Count, error) {
	if s.cpu != other.cpu {
		return Zero, errors.Wrapf(ErrInconsistentCPU, "cpu %d minus cpu %d", s.cpu, other.cpu)
	}
	return s.count - other.count, nil
}

// MustSince is like Since but panics if the samples come from different CPUs.
// Use it only where both samples are known to come from the same CPU.
func (s Sample) MustSince(other Sample) Count {
	d, err := s.Since(other)
	if err != nil {
		panic(err)
	}
	return d
}

// Sub is the subtraction operator form of MustSince: s.Sub(other) is s - other
// and panics if the samples come from different CPUs.
func (s Sample) Sub(other Sample) Count {
	return s.MustSince(other)
}

func (s Sample) String() string {
	return "cpu" + strconv.Itoa(s.cpu) + ":" + s.count.String()
}
