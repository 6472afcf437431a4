package cpuinstr

import (
	"math"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
)

// maxCPUIndex is the largest CPU index the kernel accepts (a C int).
const maxCPUIndex = math.MaxInt32

// physicalCPUCount reports the number of physical cores, falling back to the
// logical CPU count when the platform does not expose core topology.
func physicalCPUCount() (int, error) {
	n, err := cpu.Counts(false)
	if err == nil && n > 0 {
		return n, nil
	}
	n, err = cpu.Counts(true)
	if err != nil {
		return 0, errors.Wrap(err, "count cpus")
	}
	return n, nil
}

// cpuRange returns the indices 0..n-1. It fails with ErrCPUCount when n does
// not fit a kernel CPU index.
func cpuRange(n int) ([]int, error) {
	if n <= 0 || n-1 > maxCPUIndex {
		return nil, errors.Wrapf(ErrCPUCount, "%d cpus", n)
	}
	cpus := make([]int, n)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

// validateCPUs checks an explicit CPU list and returns a copy of it.
func validateCPUs(in []int) ([]int, error) {
	if len(in) == 0 {
		return nil, errors.Wrap(ErrCPUCount, "empty cpu list")
	}
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, c := range in {
		if c < 0 || c > maxCPUIndex {
			return nil, errors.Wrapf(ErrCPUCount, "cpu index %d", c)
		}
		if _, dup := seen[c]; dup {
			return nil, errors.Wrapf(ErrCPUCount, "duplicate cpu index %d", c)
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
