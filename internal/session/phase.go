package session

type Phase int

const (
	PhaseIntro Phase = iota
	PhasePreparation
	PhaseResponding
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIntro:
		return "INTRO"
	case PhasePreparation:
		return "PREPARATION"
	case PhaseResponding:
		return "RESPONDING"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// taskState is the in-memory lifecycle of one task. It is never persisted;
// every task starts over at INTRO when entered.
type taskState struct {
	phase     Phase
	remaining int
	timeUp    bool
	done      bool
}

func (s *taskState) reset() {
	s.phase = PhaseIntro
	s.remaining = 0
	s.timeUp = false
}
