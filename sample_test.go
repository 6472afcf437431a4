package cpuinstr

import (
	"errors"
	"math"
	"testing"
)

func TestSample_Since(t *testing.T) {
	later := newSample(0, 100)
	earlier := newSample(0, 40)

	d, err := later.Since(earlier)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 60 {
		t.Fatalf("unexpected delta: got %d want %d", d, 60)
	}
	if got := later.MustSince(earlier); got != 60 {
		t.Fatalf("unexpected unchecked delta: got %d want %d", got, 60)
	}
	if got := later.Sub(earlier); got != 60 {
		t.Fatalf("unexpected subtraction: got %d want %d", got, 60)
	}
	if got := earlier.Sub(later); got != -60 {
		t.Fatalf("unexpected reverse subtraction: got %d want %d", got, -60)
	}
}

func TestSample_SinceWraps(t *testing.T) {
	a := newSample(2, MaxCount)
	b := newSample(2, -1)
	if got := a.Sub(b); got != math.MinInt64 {
		t.Fatalf("expected wrapped delta, got %d", got)
	}
}

func TestSample_InconsistentCPU(t *testing.T) {
	a := newSample(0, 100)
	b := newSample(1, 40)

	d, err := a.Since(b)
	if !errors.Is(err, ErrInconsistentCPU) {
		t.Fatalf("expected ErrInconsistentCPU, got %v", err)
	}
	if d != Zero {
		t.Fatalf("expected zero delta on error, got %d", d)
	}

	for name, f := range map[string]func(){
		"must_since": func() { a.MustSince(b) },
		"sub":        func() { _ = a.Sub(b) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatalf("expected panic for samples on different cpus")
				}
				err, ok := r.(error)
				if !ok || !errors.Is(err, ErrInconsistentCPU) {
					t.Fatalf("unexpected panic value: %v", r)
				}
			}()
			f()
		})
	}
}

func TestSample_Accessors(t *testing.T) {
	s := newSample(3, 77)
	if s.CPU() != 3 || s.Count() != 77 {
		t.Fatalf("unexpected sample: %v", s)
	}
	if got := s.String(); got != "cpu3:77" {
		t.Fatalf("unexpected rendering: got %q", got)
	}
}
