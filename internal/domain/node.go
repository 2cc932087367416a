package domain

import "time"

// NodeState — runtime-состояние одного узла.
//
// Мутируется исключительно движком: обработчики сигналов меняют только
// состояние согласований и очереди событий, но не статусы узлов.
type NodeState struct {
	// ID — идентификатор узла (совпадает с NodeDef.ID).
	ID string `json:"id"`

	// Status — текущий статус узла.
	Status NodeStatus `json:"status"`

	// SkipReason — причина пропуска (только для skipped).
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Result — результат основного действия узла.
	// Для handler.http/gate.http — ответ вызова, для event.wait —
	// потреблённое событие, для child.start — итог дочернего процесса.
	Result any `json:"result,omitempty"`

	// Outcome — бизнес-исход approval-узла:
	// approved, rejected, needs_changes.
	Outcome string `json:"outcome,omitempty"`

	// ChildID — идентификатор дочернего процесса (child.start).
	// Записывается сразу после старта, до завершения ребёнка.
	ChildID string `json:"child_id,omitempty"`

	// Error — техническое сообщение об ошибке (для failed).
	Error string `json:"error,omitempty"`

	// UserError — человекочитаемое сообщение об ошибке.
	UserError string `json:"user_error,omitempty"`

	// SoftErrors — ошибки необязательных hooks, не влияющие на исход.
	SoftErrors []string `json:"soft_errors,omitempty"`

	// StartedAt — время перехода в running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewNodeState создаёт состояние узла в статусе pending.
func NewNodeState(id string) *NodeState {
	return &NodeState{ID: id, Status: NodePending}
}

// MarkRunning переводит узел в running.
func (n *NodeState) MarkRunning(now time.Time) {
	n.Status = NodeRunning
	n.StartedAt = &now
}

// MarkDone переводит узел в done с результатом.
func (n *NodeState) MarkDone(result any, now time.Time) {
	n.Status = NodeDone
	n.Result = result
	n.FinishedAt = &now
}

// MarkSkipped переводит узел в skipped с причиной.
func (n *NodeState) MarkSkipped(reason SkipReason, now time.Time) {
	n.Status = NodeSkipped
	n.SkipReason = reason
	n.FinishedAt = &now
}

// MarkFailed переводит узел в failed с техническим и
// человекочитаемым сообщениями.
func (n *NodeState) MarkFailed(techMsg, userMsg string, now time.Time) {
	n.Status = NodeFailed
	n.Error = techMsg
	n.UserError = userMsg
	n.FinishedAt = &now
}

// ResetPending возвращает guard-skipped узел в pending (реактивация).
func (n *NodeState) ResetPending() {
	n.Status = NodePending
	n.SkipReason = ""
	n.FinishedAt = nil
}
