package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматического запуска процесса.
//
// Schedule позволяет запускать процесс:
// - По cron-выражению: "0 9 * * 1" (каждый понедельник в 9:00)
// - По интервалу: каждые N секунд
//
// Scheduler проверяет next_due_at и создаёт запуск, когда время подошло.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// ProcessType — тип процесса, который нужно запускать.
	ProcessType string `json:"process_type"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	// Используется если CronExpr не задан.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для вычисления времени.
	// По умолчанию: "UTC".
	Timezone string `json:"timezone"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего запуска.
	// Scheduler создаёт запуск, когда now >= NextDueAt.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastStartAt — время последнего запуска.
	LastStartAt *time.Time `json:"last_start_at,omitempty"`

	// LastProcessID — ID последнего созданного процесса.
	LastProcessID *uuid.UUID `json:"last_process_id,omitempty"`

	// Input — вход запуска, передаётся каждому созданному процессу.
	// Route внутри может быть пустой — тогда её резолвит runtime
	// по ProcessType.
	Input *StartInput `json:"input,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueAt == nil {
		return false
	}
	return now.After(*s.NextDueAt) || now.Equal(*s.NextDueAt)
}

// RecordStart записывает информацию о запуске.
func (s *Schedule) RecordStart(processID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastStartAt = &now
	s.LastProcessID = &processID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
