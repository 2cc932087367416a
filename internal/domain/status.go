package domain

// ProcessStatus — статус процесса.
//
// Жизненный цикл:
//
//	running → completed
//	        ↘ rejected       (негативное решение согласования)
//	        ↘ needs_changes  (решение "нужны правки")
//	        ↘ failed         (ошибка шага, gate, дочернего процесса, deadlock)
//
// Терминальные статусы поглощающие: первый установленный побеждает.
type ProcessStatus string

const (
	// ProcessRunning — процесс выполняется.
	ProcessRunning ProcessStatus = "running"

	// ProcessCompleted — все узлы завершены, abort не поднимался.
	ProcessCompleted ProcessStatus = "completed"

	// ProcessRejected — процесс отклонён решением согласования или gate.
	ProcessRejected ProcessStatus = "rejected"

	// ProcessNeedsChanges — согласующий запросил правки.
	ProcessNeedsChanges ProcessStatus = "needs_changes"

	// ProcessFailed — неустранимая ошибка шага или конфигурации.
	ProcessFailed ProcessStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s ProcessStatus) IsTerminal() bool {
	switch s {
	case ProcessCompleted, ProcessRejected, ProcessNeedsChanges, ProcessFailed:
		return true
	default:
		return false
	}
}

// NodeStatus — статус узла.
//
// Жизненный цикл:
//
//	pending → running → done
//	                  ↘ failed
//	        ↘ skipped (guard_false | workflow_aborted)
//
// Движок никогда не возвращает узел из running назад в pending;
// единственное исключение — реактивация guard-skipped узла по DOC_UPDATE.
type NodeStatus string

const (
	// NodePending — узел ожидает готовности зависимостей.
	NodePending NodeStatus = "pending"

	// NodeRunning — узел выполняется.
	NodeRunning NodeStatus = "running"

	// NodeDone — узел успешно завершён.
	NodeDone NodeStatus = "done"

	// NodeSkipped — узел пропущен (см. SkipReason).
	NodeSkipped NodeStatus = "skipped"

	// NodeFailed — узел завершился неустранимой ошибкой.
	NodeFailed NodeStatus = "failed"
)

// IsDoneish возвращает true, если статус удовлетворяет зависимости
// нижестоящих узлов (done или skipped).
func (s NodeStatus) IsDoneish() bool {
	return s == NodeDone || s == NodeSkipped
}

// IsTerminal возвращает true, если статус узла финальный.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeDone || s == NodeSkipped || s == NodeFailed
}

// SkipReason — причина пропуска узла.
type SkipReason string

const (
	// SkipGuardFalse — guard узла вычислился в false.
	SkipGuardFalse SkipReason = "guard_false"

	// SkipWorkflowAborted — процесс остановлен глобальным abort.
	SkipWorkflowAborted SkipReason = "workflow_aborted"
)

// AbortReason — причина глобального abort.
type AbortReason string

const (
	// AbortApprovalDecision — негативное решение обязательного согласования.
	AbortApprovalDecision AbortReason = "approval_decision"

	// AbortGateFailed — обязательный gate не прошёл проверку.
	AbortGateFailed AbortReason = "gate_condition_failed"

	// AbortStepFailed — неустранимая ошибка шага.
	AbortStepFailed AbortReason = "step_failed"

	// AbortChildFailed — дочерний процесс завершился неуспешно.
	AbortChildFailed AbortReason = "child_process_failed"
)

// Decision — каноническое решение согласующего.
type Decision string

const (
	// DecisionApprove — одобрить.
	DecisionApprove Decision = "approve"

	// DecisionReject — отклонить (терминальное для узла).
	DecisionReject Decision = "reject"

	// DecisionNeedsChanges — требуются правки (терминальное для узла).
	DecisionNeedsChanges Decision = "needs_changes"
)

// IsNegative возвращает true для reject и needs_changes.
func (d Decision) IsNegative() bool {
	return d == DecisionReject || d == DecisionNeedsChanges
}

// NormalizeDecision приводит синонимы решения к каноническому значению.
// Возвращает false, если строка не распознана.
func NormalizeDecision(s string) (Decision, bool) {
	switch s {
	case "approve", "approved", "accept", "accepted", "yes":
		return DecisionApprove, true
	case "reject", "rejected", "deny", "denied", "decline", "declined", "no":
		return DecisionReject, true
	case "needs_changes", "needs-changes", "changes_requested", "request_changes":
		return DecisionNeedsChanges, true
	default:
		return "", false
	}
}

// ProcessStatusFor возвращает терминальный статус процесса
// для негативного решения согласования.
func ProcessStatusFor(d Decision) ProcessStatus {
	if d == DecisionNeedsChanges {
		return ProcessNeedsChanges
	}
	return ProcessRejected
}
