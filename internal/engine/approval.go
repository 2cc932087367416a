package engine

import (
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

// Итоговые исходы согласования K-из-N.
const (
	OutcomeApproved     = "approved"
	OutcomeRejected     = "rejected"
	OutcomeNeedsChanges = "needs_changes"
	OutcomePending      = "pending"
)

// Vote — один голос согласующего.
type Vote struct {
	Actor    string
	Decision domain.Decision
	Comment  string
}

// NewApprovalState создаёт начальное состояние согласования по описанию
// узла. K меньше единицы нормализуется к единице.
func NewApprovalState(def *domain.NodeDef) *domain.ApprovalState {
	k := def.K
	if k < 1 {
		k = 1
	}
	return &domain.ApprovalState{
		K:       k,
		Members: append([]string(nil), def.Members...),
	}
}

// ApplyVote возвращает новое состояние с учтённым голосом, вход не
// мутируется. Правила агрегации:
//   - после зафиксированного негативного решения голоса игнорируются;
//   - первый негативный голос немедленно фиксирует решение, кворум
//     при этом не требуется;
//   - позитивный голос не из списка согласующих или повторный голос
//     того же актора игнорируется.
func ApplyVote(st *domain.ApprovalState, v Vote, now time.Time) *domain.ApprovalState {
	out := cloneApproval(st)
	if out.Decision != "" {
		return out
	}
	if v.Decision.IsNegative() {
		out.Decision = v.Decision
		out.DecidedBy = v.Actor
		out.Comment = v.Comment
		t := now
		out.DecidedAt = &t
		return out
	}
	if v.Decision != domain.DecisionApprove {
		return out
	}
	if !out.IsMember(v.Actor) || out.HasVoted(v.Actor) {
		return out
	}
	out.ApprovedBy = append(out.ApprovedBy, v.Actor)
	return out
}

// Satisfied сообщает, достигнут ли терминальный исход согласования:
// принято негативное решение либо набран кворум из K одобрений.
func Satisfied(st *domain.ApprovalState) bool {
	return st.Decision != "" || len(st.ApprovedBy) >= st.K
}

// Outcome возвращает исход согласования для текущего состояния.
func Outcome(st *domain.ApprovalState) string {
	switch {
	case st.Decision == domain.DecisionReject:
		return OutcomeRejected
	case st.Decision == domain.DecisionNeedsChanges:
		return OutcomeNeedsChanges
	case len(st.ApprovedBy) >= st.K:
		return OutcomeApproved
	default:
		return OutcomePending
	}
}

func cloneApproval(st *domain.ApprovalState) *domain.ApprovalState {
	out := *st
	out.Members = append([]string(nil), st.Members...)
	out.ApprovedBy = append([]string(nil), st.ApprovedBy...)
	if st.DecidedAt != nil {
		t := *st.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}
