// Package provenance tracks the call chain that produced a stream event.
package provenance

import "strings"

// Chain is an ordered sequence of segments naming the call chain of an
// event, e.g. ["shell", "bash"] when the bash activation was re-entered
// from the shell activation. A Chain is immutable; Extend returns a new
// Chain rather than mutating the receiver so that concurrent callers can
// safely share a root Chain.
type Chain []string

// Root builds the initial, single-segment chain for a direct dispatcher
// call into namespace.
func Root(namespace string) Chain {
	return Chain{namespace}
}

// Extend returns a new Chain with segment appended. The receiver is not
// modified.
func (c Chain) Extend(segment string) Chain {
	next := make(Chain, len(c)+1)
	copy(next, c)
	next[len(c)] = segment
	return next
}

// Empty reports whether the chain carries no segments. Every Data,
// Progress, and Error event must carry a non-empty provenance (spec §3).
func (c Chain) Empty() bool { return len(c) == 0 }

// String renders the chain as a human-readable "a > b > c" path, used in
// logs and debugging output.
func (c Chain) String() string {
	return strings.Join([]string(c), " > ")
}

// Segments returns the chain as a plain string slice suitable for the wire
// envelope's provenance.segments field.
func (c Chain) Segments() []string {
	out := make([]string, len(c))
	copy(out, c)
	return out
}
