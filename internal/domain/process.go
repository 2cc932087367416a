package domain

import (
	"time"

	"github.com/google/uuid"
)

// StartInput — вход точки запуска процесса.
type StartInput struct {
	// ProcessType — тип процесса (например, "purchase-approval").
	ProcessType string `json:"process_type"`

	// Document — начальный бизнес-документ.
	Document map[string]any `json:"document,omitempty"`

	// Context — начальные свободные переменные.
	Context map[string]any `json:"context,omitempty"`

	// Route — маршрут процесса. Если пуст, runtime ищет
	// зарегистрированный маршрут по ProcessType.
	Route Route `json:"route,omitempty"`

	// HandlerBaseURLs — базовые URL внешних обработчиков
	// (логическое имя → URL).
	HandlerBaseURLs map[string]string `json:"handler_base_urls,omitempty"`

	// Depth — глубина вложенности (заполняется runtime при запуске
	// дочерних процессов; защита от неограниченной рекурсии).
	Depth int `json:"depth,omitempty"`
}

// AbortInfo — метаданные глобального abort.
type AbortInfo struct {
	// Reason — причина abort.
	Reason AbortReason `json:"reason"`

	// NodeID — узел, вызвавший abort.
	NodeID string `json:"node_id,omitempty"`

	// Actor — актор негативного решения (approval_decision).
	Actor string `json:"actor,omitempty"`

	// Comment — комментарий актора.
	Comment string `json:"comment,omitempty"`

	// Message — человекочитаемое описание.
	Message string `json:"message"`

	// At — время abort.
	At time.Time `json:"at"`
}

// FailureInfo — метаданные неустранимой ошибки.
type FailureInfo struct {
	// NodeID — узел, где произошла ошибка (пусто для ошибок
	// конфигурации уровня процесса).
	NodeID string `json:"node_id,omitempty"`

	// Error — техническое сообщение.
	Error string `json:"error"`

	// UserError — человекочитаемое сообщение.
	UserError string `json:"user_error,omitempty"`
}

// ProgressSnapshot — иммутабельный снапшот прогресса процесса.
//
// Единственная форма, в которой состояние процесса видно снаружи:
// query-обработчик и персистентные чекпоинты отдают именно её.
type ProgressSnapshot struct {
	// ID — идентификатор процесса.
	ID string `json:"id"`

	// ProcessType — тип процесса.
	ProcessType string `json:"process_type"`

	// Status — статус процесса.
	Status ProcessStatus `json:"status"`

	// StatusMessage — человекочитаемое описание статуса:
	// какой узел, какая причина, актор/комментарий.
	StatusMessage string `json:"status_message,omitempty"`

	// Context — канонический контекст (глубокая копия).
	Context *Context `json:"context"`

	// StartedAt — время старта процесса.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения (nil, пока процесс выполняется).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Abort — метаданные abort (nil, если abort не поднимался).
	Abort *AbortInfo `json:"abort,omitempty"`

	// Failure — метаданные ошибки (nil, если ошибок не было).
	Failure *FailureInfo `json:"failure,omitempty"`

	// LastSignalError — последняя ошибка валидации сигнала
	// (для наблюдаемости; сигнал при этом молча отброшен).
	LastSignalError string `json:"last_signal_error,omitempty"`

	// FinalDecision — исход последнего завершённого согласования.
	FinalDecision string `json:"final_decision,omitempty"`
}

// ProcessRecord — персистентная запись процесса (хранится в БД).
type ProcessRecord struct {
	// ID — идентификатор процесса.
	ID uuid.UUID `json:"id"`

	// ProcessType — тип процесса.
	ProcessType string `json:"process_type"`

	// Status — последний известный статус.
	Status ProcessStatus `json:"status"`

	// StatusMessage — последнее известное описание статуса.
	StatusMessage string `json:"status_message,omitempty"`

	// Input — вход запуска (round-trip контракт).
	Input *StartInput `json:"input,omitempty"`

	// Snapshot — последний персистентный чекпоинт.
	Snapshot *ProgressSnapshot `json:"snapshot,omitempty"`

	// ParentID — родительский процесс (для child.start).
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// IdempotencyKey — ключ идемпотентности запуска.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// StartedAt — время старта выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// IsFinished возвращает true, если процесс завершён.
func (p *ProcessRecord) IsFinished() bool {
	return p.Status.IsTerminal()
}
