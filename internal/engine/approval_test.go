package engine

import (
	"testing"
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

// now — фиксированное время для детерминированных тестов.
func now() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func approvalDef(k int, members ...string) *domain.NodeDef {
	return &domain.NodeDef{
		ID:      "approve",
		Type:    domain.NodeApprovalKofN,
		K:       k,
		Members: members,
	}
}

func TestApproval_QuorumOfTwo(t *testing.T) {
	st := NewApprovalState(approvalDef(2, "alice", "bob", "carol"))

	st = ApplyVote(st, Vote{Actor: "alice", Decision: domain.DecisionApprove}, now())
	if Satisfied(st) {
		t.Error("one vote should not satisfy quorum of two")
	}

	st = ApplyVote(st, Vote{Actor: "bob", Decision: domain.DecisionApprove}, now())
	if !Satisfied(st) {
		t.Error("two votes should satisfy quorum of two")
	}
	if Outcome(st) != OutcomeApproved {
		t.Errorf("expected approved, got %s", Outcome(st))
	}
}

func TestApproval_DuplicateVoteIgnored(t *testing.T) {
	st := NewApprovalState(approvalDef(2, "alice", "bob"))

	st = ApplyVote(st, Vote{Actor: "alice", Decision: domain.DecisionApprove}, now())
	// Повторный голос того же актора не приближает кворум
	st = ApplyVote(st, Vote{Actor: "alice", Decision: domain.DecisionApprove}, now())

	if len(st.ApprovedBy) != 1 {
		t.Errorf("expected 1 recorded vote, got %d", len(st.ApprovedBy))
	}
	if Satisfied(st) {
		t.Error("duplicate vote must not satisfy quorum")
	}
}

func TestApproval_NonMemberIgnored(t *testing.T) {
	st := NewApprovalState(approvalDef(1, "alice"))

	st = ApplyVote(st, Vote{Actor: "mallory", Decision: domain.DecisionApprove}, now())
	if len(st.ApprovedBy) != 0 {
		t.Errorf("non-member vote must be ignored, got %v", st.ApprovedBy)
	}
}

func TestApproval_UnrestrictedMembersAcceptAnyActor(t *testing.T) {
	// Пустой members — голос принимается от любого актора
	st := NewApprovalState(approvalDef(2))

	st = ApplyVote(st, Vote{Actor: "mallory", Decision: domain.DecisionApprove}, now())
	st = ApplyVote(st, Vote{Actor: "trent", Decision: domain.DecisionApprove}, now())

	if !Satisfied(st) {
		t.Error("two votes from arbitrary actors should satisfy quorum of two")
	}
	if Outcome(st) != OutcomeApproved {
		t.Errorf("expected approved, got %s", Outcome(st))
	}
}

func TestApproval_NegativeDecisionIsTerminal(t *testing.T) {
	st := NewApprovalState(approvalDef(2, "alice", "bob", "carol"))
	st = ApplyVote(st, Vote{Actor: "alice", Decision: domain.DecisionApprove}, now())

	// Один негативный голос фиксирует решение без кворума
	st = ApplyVote(st, Vote{Actor: "bob", Decision: domain.DecisionReject, Comment: "too expensive"}, now())
	if !Satisfied(st) {
		t.Error("negative decision should satisfy immediately")
	}
	if Outcome(st) != OutcomeRejected {
		t.Errorf("expected rejected, got %s", Outcome(st))
	}
	if st.DecidedBy != "bob" || st.Comment != "too expensive" {
		t.Errorf("decision metadata lost: %+v", st)
	}

	// Голоса после решения игнорируются
	st = ApplyVote(st, Vote{Actor: "carol", Decision: domain.DecisionApprove}, now())
	if Outcome(st) != OutcomeRejected {
		t.Error("votes after a decision must not change the outcome")
	}
	if len(st.ApprovedBy) != 1 {
		t.Errorf("expected 1 approval, got %d", len(st.ApprovedBy))
	}
}

func TestApproval_NeedsChanges(t *testing.T) {
	st := NewApprovalState(approvalDef(1, "alice"))
	st = ApplyVote(st, Vote{Actor: "alice", Decision: domain.DecisionNeedsChanges, Comment: "fix totals"}, now())

	if Outcome(st) != OutcomeNeedsChanges {
		t.Errorf("expected needs_changes, got %s", Outcome(st))
	}
}

func TestApproval_ApplyVoteDoesNotMutateInput(t *testing.T) {
	orig := NewApprovalState(approvalDef(2, "alice", "bob"))
	_ = ApplyVote(orig, Vote{Actor: "alice", Decision: domain.DecisionApprove}, now())

	if len(orig.ApprovedBy) != 0 {
		t.Error("ApplyVote must not mutate its input")
	}
}

func TestApproval_QuorumNormalizedToOne(t *testing.T) {
	// K меньше единицы нормализуется
	st := NewApprovalState(approvalDef(0, "alice"))
	if st.K != 1 {
		t.Errorf("expected K=1, got %d", st.K)
	}
}
