package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/domain"
	"github.com/shaiso/Procedura/internal/repo"
)

// Process DTOs

// StartProcessRequest — запрос на запуск процесса.
// Route опциональна: при пустой route runner берёт зарегистрированный
// маршрут по process_type.
type StartProcessRequest struct {
	ProcessType     string            `json:"process_type"`
	Document        map[string]any    `json:"document,omitempty"`
	Context         map[string]any    `json:"context,omitempty"`
	Route           domain.Route      `json:"route,omitempty"`
	HandlerBaseURLs map[string]string `json:"handler_base_urls,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
}

// ProcessResponse — ответ с процессом.
type ProcessResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProcessType    string     `json:"process_type"`
	Status         string     `json:"status"`
	StatusMessage  string     `json:"status_message,omitempty"`
	ParentID       *uuid.UUID `json:"parent_id,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ProcessFromDomain конвертирует domain.ProcessRecord в ProcessResponse.
func ProcessFromDomain(p domain.ProcessRecord) ProcessResponse {
	return ProcessResponse{
		ID:             p.ID,
		ProcessType:    p.ProcessType,
		Status:         string(p.Status),
		StatusMessage:  p.StatusMessage,
		ParentID:       p.ParentID,
		IdempotencyKey: p.IdempotencyKey,
		StartedAt:      p.StartedAt,
		FinishedAt:     p.FinishedAt,
		CreatedAt:      p.CreatedAt,
	}
}

// Signal DTOs

// SubmitApprovalRequest — голос согласующего.
type SubmitApprovalRequest struct {
	NodeID   string `json:"node_id"`
	Actor    string `json:"actor"`
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

// SubmitEventRequest — внешнее событие процесса.
type SubmitEventRequest struct {
	EventName string         `json:"event_name"`
	Data      map[string]any `json:"data,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
}

// SignalAcceptedResponse — подтверждение приёма сигнала.
// Сигналы доставляются асинхронно, поэтому ответ не гарантирует
// применение: невалидный сигнал runner молча отбросит.
type SignalAcceptedResponse struct {
	ProcessID uuid.UUID `json:"process_id"`
	Kind      string    `json:"kind"`
}

// SignalResponse — запись журнала сигналов.
type SignalResponse struct {
	ID         uuid.UUID      `json:"id"`
	ProcessID  uuid.UUID      `json:"process_id"`
	Kind       string         `json:"kind"`
	EventID    string         `json:"event_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// SignalFromRecord конвертирует repo.SignalRecord в SignalResponse.
func SignalFromRecord(s repo.SignalRecord) SignalResponse {
	return SignalResponse{
		ID:         s.ID,
		ProcessID:  s.ProcessID,
		Kind:       s.Kind,
		EventID:    s.EventID,
		Payload:    s.Payload,
		ReceivedAt: s.ReceivedAt,
	}
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	ProcessType string             `json:"process_type"`
	Name        string             `json:"name"`
	CronExpr    string             `json:"cron_expr,omitempty"`
	IntervalSec int                `json:"interval_sec,omitempty"`
	Timezone    string             `json:"timezone,omitempty"`
	Enabled     bool               `json:"enabled"`
	Input       *domain.StartInput `json:"input,omitempty"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string            `json:"name,omitempty"`
	CronExpr    *string            `json:"cron_expr,omitempty"`
	IntervalSec *int               `json:"interval_sec,omitempty"`
	Timezone    *string            `json:"timezone,omitempty"`
	Input       *domain.StartInput `json:"input,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID            uuid.UUID          `json:"id"`
	ProcessType   string             `json:"process_type"`
	Name          string             `json:"name,omitempty"`
	CronExpr      string             `json:"cron_expr,omitempty"`
	IntervalSec   int                `json:"interval_sec,omitempty"`
	Timezone      string             `json:"timezone"`
	Enabled       bool               `json:"enabled"`
	NextDueAt     *time.Time         `json:"next_due_at,omitempty"`
	LastStartAt   *time.Time         `json:"last_start_at,omitempty"`
	LastProcessID *uuid.UUID         `json:"last_process_id,omitempty"`
	Input         *domain.StartInput `json:"input,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:            s.ID,
		ProcessType:   s.ProcessType,
		Name:          s.Name,
		CronExpr:      s.CronExpr,
		IntervalSec:   s.IntervalSec,
		Timezone:      s.Timezone,
		Enabled:       s.Enabled,
		NextDueAt:     s.NextDueAt,
		LastStartAt:   s.LastStartAt,
		LastProcessID: s.LastProcessID,
		Input:         s.Input,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
