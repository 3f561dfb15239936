package ptrace

import "honnef.co/go/lantern/trace"

// legalPhaseTransitions describes how the phases of a duration event may follow each other on one thread. The first
// index is the state of the thread, PhaseNone when no event is open and PhaseBegin when at least one is.
var legalPhaseTransitions = [256][256]bool{
	trace.PhaseNone: {
		trace.PhaseBegin:    true,
		trace.PhaseComplete: true,
	},
	trace.PhaseBegin: {
		// Nested message loops run tasks inside of tasks.
		trace.PhaseBegin:    true,
		trace.PhaseEnd:      true,
		trace.PhaseComplete: true,
	},
}
