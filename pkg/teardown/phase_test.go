package teardown

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to FinalizePhase
		want     bool
	}{
		{PhaseStart, PhaseChildrenDeleted, true},
		{PhaseStart, PhaseHandlerInvoked, false},
		{PhaseChildrenDeleted, PhaseDone, true},
		{PhaseChildrenDeleted, PhaseHandlerInvoked, true},
		{PhaseHandlerInvoked, PhaseMarkerRemoved, false},
		{PhaseStatusReconciled, PhaseMarkerRemoved, true},
		{PhaseStatusReconciled, PhaseDeferred, true},
		{PhaseDeferred, PhaseCompleted, true},
		{PhaseStart, PhaseFailed, true},
		{PhaseStatusReconciled, PhaseFailed, true},
		{PhaseFailed, PhaseFailed, false},
		{PhaseCompleted, PhaseFailed, false},
		{PhaseFailed, PhaseCompleted, true},
		{PhaseCompleted, PhaseStart, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+">"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPhaseHistory(t *testing.T) {
	h := newPhaseHistory()
	if h.Current() != PhaseStart {
		t.Errorf("Current() = %s, want %s", h.Current(), PhaseStart)
	}

	for _, p := range []FinalizePhase{PhaseChildrenDeleted, PhaseHandlerInvoked, PhaseStatusReconciled, PhaseDeferred, PhaseCompleted} {
		if err := h.Advance(p, ""); err != nil {
			t.Fatalf("Advance(%s) error = %v", p, err)
		}
	}

	want := []FinalizePhase{PhaseStart, PhaseChildrenDeleted, PhaseHandlerInvoked, PhaseStatusReconciled, PhaseDeferred, PhaseCompleted}
	if diff := cmp.Diff(want, h.Phases()); diff != "" {
		t.Errorf("Phases() mismatch (-want +got):\n%s", diff)
	}
	if got := h.String(); got != "Start>ChildrenDeleted>HandlerInvoked>StatusReconciled>Deferred>Completed" {
		t.Errorf("String() = %q", got)
	}
	if got := len(h.Entries()); got != 5 {
		t.Errorf("len(Entries()) = %d, want 5", got)
	}
}

func TestPhaseHistoryInvalidTransition(t *testing.T) {
	h := newPhaseHistory()
	if err := h.Advance(PhaseMarkerRemoved, "skipped ahead"); err == nil {
		t.Error("Advance(MarkerRemoved) from Start should fail")
	}
	if h.Current() != PhaseMarkerRemoved {
		t.Errorf("Current() = %s, want the recorded phase %s", h.Current(), PhaseMarkerRemoved)
	}
	entries := h.Entries()
	if len(entries) != 1 || entries[0].Reason != "skipped ahead" {
		t.Errorf("Entries() = %+v", entries)
	}
}
