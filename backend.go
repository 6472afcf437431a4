package cpuinstr

// AllProcesses is the pid passed to Backend.Open when no target process is
// configured: every process and thread on the tracked CPUs is counted.
const AllProcesses = -1

// readFailed is the count a Session may return instead of an error to signal a
// failed read.
const readFailed = -1

// Backend opens counter sessions. It is the only seam between this package and
// the hardware; PerfBackend is the default implementation and package perftest
// provides a simulated one.
type Backend interface {
	// Open allocates one instruction counter per listed CPU for pid
	// (AllProcesses for all). Counters start disabled. On any failure Open
	// releases what it allocated and returns a nil Session or an error.
	Open(cpus []int, pid int) (Session, error)
}

// Session is an opened set of per-CPU instruction counters.
//
// Reader calls Enable once after Open, then Read any number of times, then
// Disable and Destroy exactly once each, in that order.
type Session interface {
	// Enable resets and starts counting on all tracked CPUs.
	Enable() error
	// Disable stops counting on all tracked CPUs.
	Disable() error
	// Read returns the count accumulated on cpu since Enable. A returned
	// error or a count of -1 signals failure.
	Read(cpu int) (int64, error)
	// Destroy releases every resource owned by the session.
	Destroy() error
}
