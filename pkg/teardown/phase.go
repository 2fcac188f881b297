package teardown

import (
	"fmt"
	"strings"
)

// FinalizePhase is a step of a finalize pass.
type FinalizePhase string

const (
	PhaseStart            FinalizePhase = "Start"
	PhaseChildrenDeleted  FinalizePhase = "ChildrenDeleted"
	PhaseHandlerInvoked   FinalizePhase = "HandlerInvoked"
	PhaseStatusReconciled FinalizePhase = "StatusReconciled"
	PhaseMarkerRemoved    FinalizePhase = "MarkerRemoved"
	PhaseDeferred         FinalizePhase = "Deferred"
	PhaseDone             FinalizePhase = "Done"
	PhaseFailed           FinalizePhase = "Failed"
	PhaseCompleted        FinalizePhase = "Completed"
)

// allowedPhaseTransitions is the pass state machine. Every non-terminal phase
// may also move to PhaseFailed.
var allowedPhaseTransitions = map[FinalizePhase][]FinalizePhase{
	PhaseStart:            {PhaseChildrenDeleted},
	PhaseChildrenDeleted:  {PhaseDone, PhaseHandlerInvoked},
	PhaseHandlerInvoked:   {PhaseStatusReconciled},
	PhaseStatusReconciled: {PhaseMarkerRemoved, PhaseDeferred},
	PhaseMarkerRemoved:    {PhaseCompleted},
	PhaseDeferred:         {PhaseCompleted},
	PhaseDone:             {PhaseCompleted},
	PhaseFailed:           {PhaseCompleted},
}

// CanTransition returns true if a pass may move from one phase to another.
func CanTransition(from, to FinalizePhase) bool {
	if to == PhaseFailed {
		return from != PhaseCompleted && from != PhaseFailed
	}
	for _, allowed := range allowedPhaseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PhaseTransition records a single phase change of a pass.
type PhaseTransition struct {
	From   FinalizePhase
	To     FinalizePhase
	Reason string
}

// PhaseHistory tracks the phases of one pass. It is owned by the pass and not
// safe for concurrent use.
type PhaseHistory struct {
	current FinalizePhase
	entries []PhaseTransition
}

func newPhaseHistory() *PhaseHistory {
	return &PhaseHistory{current: PhaseStart}
}

// Advance moves the pass to phase to. An illegal transition is recorded anyway
// and reported as an error.
func (h *PhaseHistory) Advance(to FinalizePhase, reason string) error {
	from := h.current
	h.entries = append(h.entries, PhaseTransition{From: from, To: to, Reason: reason})
	h.current = to
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid finalize phase transition from %s to %s", from, to)
	}
	return nil
}

// Current returns the current phase.
func (h *PhaseHistory) Current() FinalizePhase {
	return h.current
}

// Entries returns a copy of all transitions.
func (h *PhaseHistory) Entries() []PhaseTransition {
	result := make([]PhaseTransition, len(h.entries))
	copy(result, h.entries)
	return result
}

// Phases returns the visited phases in order, starting with PhaseStart.
func (h *PhaseHistory) Phases() []FinalizePhase {
	phases := []FinalizePhase{PhaseStart}
	for _, e := range h.entries {
		phases = append(phases, e.To)
	}
	return phases
}

// String renders the path of the pass, e.g. "Start>ChildrenDeleted>Done>Completed".
func (h *PhaseHistory) String() string {
	parts := make([]string, 0, len(h.entries)+1)
	for _, p := range h.Phases() {
		parts = append(parts, string(p))
	}
	return strings.Join(parts, ">")
}
