/*
Package cpuinstr reads per-CPU retired-instruction counters (hardware performance
counters) through a safe, owning handle.

# Overview

The package is organized around three types:

1. Count: a number of retired instructions. Count is an int64 kind and its arithmetic is
Go's fixed-width signed arithmetic, so overflow wraps exactly like int64 and nothing panics
except division or remainder by zero. Scaling by a float (MulFloat64, DivFloat64,
MulFloat32, DivFloat32) converts to floating point, applies the factor and truncates toward
zero, saturating at the int64 bounds.

2. Sample: the Count of one CPU at one instant. Two samples of the same CPU subtract into
a Count:

	d, err := later.Since(earlier) // ErrInconsistentCPU if the CPUs differ
	d = later.Sub(earlier)         // panics if the CPUs differ

Sub and MustSince are meant for call sites that already know both samples come from the
same CPU.

3. Reader: owns an enabled counter session over a set of CPUs, optionally restricted to one
process, and produces Samples.

	r, err := cpuinstr.NewReader()
	if err != nil {
	    return err
	}
	defer r.Close()

	before, _ := r.Instant(0)
	work()
	after, _ := r.Instant(0)
	fmt.Println(after.Sub(before), "instructions")

# Reader lifecycle

NewReader determines the physical CPU count (or uses WithCPUs), opens one counter per CPU
through its Backend and enables them. Construction is all or nothing: if opening or enabling
fails, nothing stays open and ErrFailedToCreate is returned. Close disables, then destroys
the session exactly once; further calls are no-ops. A Reader dropped without Close is torn
down by a runtime cleanup.

Instant never retries. A failed read returns ErrFailedToRead and the Reader stays usable.

# Backends

Backend and Session describe the counter-control collaborator: open, enable, read, disable,
destroy. PerfBackend implements them with perf_event_open(2) on Linux and refuses on other
platforms with ErrUnsupported. Package perftest provides a simulated backend for tests.

# Concurrency

A Reader does no locking. Share one between goroutines through a LockedReader. Count and
Sample are immutable values.

On top of a Reader (or LockedReader):

  - Tracker polls every CPU and aggregates deltas (min, max, mean, total, rate) per CPU.
  - Collector exports cumulative counts as Prometheus counters.

# Notes

Counting every process (the default, AllProcesses) usually needs CAP_PERFMON or
kernel.perf_event_paranoid <= 0. Counting one process with WithPID works unprivileged for
processes the caller owns when perf_event_paranoid <= 2.
*/
package cpuinstr
