package cpuinstr

// WithCPUCount exposes host cpu detection overrides to external tests.
var WithCPUCount = withCPUCount
