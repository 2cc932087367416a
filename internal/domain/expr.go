package domain

// Expr — булево выражение guard/pass_when.
//
// Бинарные операторы: eq, ne, gt, gte, lt, lte, in, exists.
// Операнды Left/Right — литералы или lookups вида {"path": "a.b.c"}.
// Комбинаторы: and, or, not — работают над Args.
//
// Примеры (JSON):
//
//	{"op": "gt", "left": {"path": "doc.cost"}, "right": 100}
//	{"op": "and", "args": [
//	    {"op": "exists", "left": {"path": "doc.owner"}},
//	    {"op": "in", "left": {"path": "doc.kind"}, "right": ["travel", "purchase"]}
//	]}
type Expr struct {
	// Op — оператор: eq, ne, gt, gte, lt, lte, in, exists, and, or, not.
	Op string `json:"op"`

	// Left — левый операнд (литерал или {"path": ...}).
	Left any `json:"left,omitempty"`

	// Right — правый операнд. Для in — последовательность.
	Right any `json:"right,omitempty"`

	// Args — вложенные выражения для and/or/not.
	Args []*Expr `json:"args,omitempty"`
}
