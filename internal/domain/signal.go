package domain

// Имена сигналов и запросов процесса.
const (
	// SignalApproval — голос согласующего.
	SignalApproval = "approval"

	// SignalProcessEvent — произвольное внешнее событие.
	SignalProcessEvent = "processEvent"

	// QueryGetProgress — запрос снапшота прогресса.
	QueryGetProgress = "getProgress"

	// EventDocUpdate — зарезервированное имя события: патчит поле
	// cost документа и реактивирует guard-skipped узлы.
	EventDocUpdate = "DOC_UPDATE"
)

// ApprovalSignal — payload сигнала approval.
//
// Обработчик обязан быть идемпотентным: доставка at-least-once,
// сигналы могут приходить повторно и не по порядку.
type ApprovalSignal struct {
	// NodeID — идентификатор approval-узла.
	NodeID string `json:"node_id"`

	// Actor — голосующий.
	Actor string `json:"actor"`

	// Decision — решение (синонимы нормализуются, см. NormalizeDecision).
	Decision string `json:"decision"`

	// Comment — комментарий. Обязателен для негативных решений.
	Comment string `json:"comment,omitempty"`
}

// EventSignal — payload сигнала processEvent.
type EventSignal struct {
	// EventName — имя события (ключ очереди для event.wait).
	EventName string `json:"event_name"`

	// Data — произвольные данные события.
	Data map[string]any `json:"data,omitempty"`

	// EventID — необязательный идентификатор для дедупликации.
	// Повторный сигнал с тем же EventID не применяется второй раз.
	EventID string `json:"event_id,omitempty"`
}
