package domain

import (
	"encoding/json"
	"time"
)

// Context — канонический контекст процесса.
//
// Единый источник правды о происходящем: guard/шаблоны читают из него,
// set_vars пишет в vars, снапшот прогресса отдаёт его наружу.
// Инвариант: steps[id].status всегда согласован с NodeState после
// любого перехода узла.
type Context struct {
	// Doc — бизнес-документ процесса (заявка, тикет и т.п.).
	Doc map[string]any `json:"doc"`

	// Vars — свободные переменные (заполняются set_vars).
	Vars map[string]any `json:"vars"`

	// Route — определение маршрута (round-trip без изменений).
	Route Route `json:"route"`

	// Steps — проекция узлов: определение + runtime-состояние +
	// состояние согласования, по одному входу на узел.
	Steps map[string]*StepView `json:"steps"`

	// History — append-only журнал переходов и патчей документа.
	History []HistoryEntry `json:"history"`
}

// StepView — вход проекции steps для одного узла.
type StepView struct {
	// ID — идентификатор узла.
	ID string `json:"id"`

	// Type — тип узла.
	Type NodeType `json:"type"`

	// After — зависимости узла.
	After []string `json:"after,omitempty"`

	// Status — текущий статус узла.
	Status NodeStatus `json:"status"`

	// SkipReason — причина пропуска (для skipped).
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Result — результат основного действия.
	Result any `json:"result,omitempty"`

	// Outcome — бизнес-исход approval-узла.
	Outcome string `json:"outcome,omitempty"`

	// ChildID — идентификатор дочернего процесса.
	ChildID string `json:"child_id,omitempty"`

	// Error — человекочитаемое сообщение об ошибке.
	Error string `json:"error,omitempty"`

	// Approval — состояние согласования (approval.kofn).
	Approval *ApprovalState `json:"approval,omitempty"`
}

// HistoryEntry — запись журнала процесса.
type HistoryEntry struct {
	// At — время события.
	At time.Time `json:"at"`

	// NodeID — узел, к которому относится запись (может быть пустым
	// для событий уровня процесса).
	NodeID string `json:"node_id,omitempty"`

	// Event — тип записи: node_running, node_done, node_skipped,
	// node_failed, vote, event, doc_patch, abort.
	Event string `json:"event"`

	// Detail — произвольные детали записи.
	Detail map[string]any `json:"detail,omitempty"`
}

// NewContext создаёт контекст для старта процесса.
func NewContext(doc, vars map[string]any, route Route) *Context {
	if doc == nil {
		doc = make(map[string]any)
	}
	if vars == nil {
		vars = make(map[string]any)
	}
	c := &Context{
		Doc:   doc,
		Vars:  vars,
		Route: route,
		Steps: make(map[string]*StepView, len(route)),
	}
	for i := range route {
		n := &route[i]
		c.Steps[n.ID] = &StepView{
			ID:     n.ID,
			Type:   n.Type,
			After:  n.After,
			Status: NodePending,
		}
	}
	return c
}

// Append добавляет запись в журнал.
func (c *Context) Append(at time.Time, nodeID, event string, detail map[string]any) {
	c.History = append(c.History, HistoryEntry{
		At:     at,
		NodeID: nodeID,
		Event:  event,
		Detail: detail,
	})
}

// Clone возвращает глубокую копию контекста (через JSON round-trip).
// Используется для иммутабельных снапшотов запросов прогресса.
func (c *Context) Clone() *Context {
	b, err := json.Marshal(c)
	if err != nil {
		return &Context{}
	}
	var out Context
	if err := json.Unmarshal(b, &out); err != nil {
		return &Context{}
	}
	return &out
}
