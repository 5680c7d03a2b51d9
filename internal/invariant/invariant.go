// Package invariant implements the fatal-assert failure path used
// throughout cardrefine for programming-invariant violations.
//
// These are not errors in the Go sense: a violated invariant means the
// mutator-side bookkeeping has already diverged from reality (an empty
// queue observed non-empty at detach, an unknown filter mode, a buffer
// popped from a list it was never pushed to). There is no recovery; the
// process is expected to abort with a diagnostic, matching the VM-fatal
// semantics a real collector would use here.
package invariant

import "fmt"

// Failf reports a violated invariant and aborts the process.
//
// Call sites read like assertions: invariant.Check(cond, "index %d >
// capacity %d", idx, cap). There is deliberately no returned error;
// callers are not expected to handle this.
func Failf(format string, args ...any) {
	panic(fmt.Sprintf("cardrefine: invariant violated: "+format, args...))
}

// Check calls Failf if cond is false.
func Check(cond bool, format string, args ...any) {
	if !cond {
		Failf(format, args...)
	}
}

// integer is the constraint for Cast: any built-in integer type.
type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Cast converts v to To, aborting the process if the value cannot be
// represented exactly in the destination type. Round-trips by
// construction: if Cast returns, To(v) converted back equals v.
func Cast[To, From integer](v From) To {
	out := To(v)
	if From(out) != v || (out < 0) != (v < 0) {
		Failf("value %v cannot be represented in the destination integer type", any(v))
	}

	return out
}
