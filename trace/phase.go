package trace

// Phase is the ph member of a trace event. The set of phases is closed; events with any other phase are rejected by
// the parser.
type Phase byte

const (
	PhaseNone Phase = 0

	PhaseBegin            Phase = 'B'
	PhaseEnd              Phase = 'E'
	PhaseComplete         Phase = 'X'
	PhaseInstant          Phase = 'I'
	PhaseInstantLegacy    Phase = 'i'
	PhaseMark             Phase = 'R'
	PhaseMetadata         Phase = 'M'
	PhaseAsyncBegin       Phase = 'b'
	PhaseAsyncEnd         Phase = 'e'
	PhaseAsyncInstant     Phase = 'n'
	PhaseAsyncStepInto    Phase = 'T'
	PhaseAsyncStepPast    Phase = 'p'
	PhaseLegacyAsyncStart Phase = 'S'
	PhaseLegacyAsyncEnd   Phase = 'F'
	PhaseFlowStart        Phase = 's'
	PhaseFlowStep         Phase = 't'
	PhaseFlowEnd          Phase = 'f'
	PhaseSample           Phase = 'P'
	PhaseObjectCreated    Phase = 'N'
	PhaseObjectSnapshot   Phase = 'O'
	PhaseObjectDestroyed  Phase = 'D'
	PhaseCounter          Phase = 'C'
	PhaseMemoryDump       Phase = 'v'
	PhaseContextEnter     Phase = '('
	PhaseContextLeave     Phase = ')'
)

var knownPhases = [256]bool{
	PhaseBegin:            true,
	PhaseEnd:              true,
	PhaseComplete:         true,
	PhaseInstant:          true,
	PhaseInstantLegacy:    true,
	PhaseMark:             true,
	PhaseMetadata:         true,
	PhaseAsyncBegin:       true,
	PhaseAsyncEnd:         true,
	PhaseAsyncInstant:     true,
	PhaseAsyncStepInto:    true,
	PhaseAsyncStepPast:    true,
	PhaseLegacyAsyncStart: true,
	PhaseLegacyAsyncEnd:   true,
	PhaseFlowStart:        true,
	PhaseFlowStep:         true,
	PhaseFlowEnd:          true,
	PhaseSample:           true,
	PhaseObjectCreated:    true,
	PhaseObjectSnapshot:   true,
	PhaseObjectDestroyed:  true,
	PhaseCounter:          true,
	PhaseMemoryDump:       true,
	PhaseContextEnter:     true,
	PhaseContextLeave:     true,
}

// ParsePhase maps the string form of a phase to a Phase. It returns false for unknown phases.
func ParsePhase(s string) (Phase, bool) {
	if len(s) != 1 {
		return PhaseNone, false
	}
	ph := Phase(s[0])
	return ph, knownPhases[ph]
}

func (ph Phase) String() string {
	if ph == PhaseNone {
		return ""
	}
	return string(rune(ph))
}

// IsInstant reports whether the phase denotes a point in time rather than a range.
func (ph Phase) IsInstant() bool {
	switch ph {
	case PhaseInstant, PhaseInstantLegacy, PhaseMark:
		return true
	default:
		return false
	}
}
