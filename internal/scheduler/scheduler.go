package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/domain"
	"github.com/shaiso/Procedura/internal/mq"
	"github.com/shaiso/Procedura/internal/repo"
)

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	scheduleRepo *repo.ScheduleRepo
	processRepo  *repo.ProcessRepo
	publisher    *mq.Publisher
	logger       *slog.Logger
	batchSize    int
}

// Config — конфигурация Scheduler.
type Config struct {
	ScheduleRepo *repo.ScheduleRepo
	ProcessRepo  *repo.ProcessRepo
	Publisher    *mq.Publisher
	Logger       *slog.Logger
	BatchSize    int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Scheduler{
		scheduleRepo: cfg.ScheduleRepo,
		processRepo:  cfg.ProcessRepo,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
		batchSize:    batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule создаёт процесс
// 3. Обновляет next_due_at
// 4. Публикует process.pending в RabbitMQ
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	// 1. Находим due schedules
	schedules, err := s.scheduleRepo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	// 2. Обрабатываем каждый schedule
	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		procCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		processed++
		if procCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"processes_created", created,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если процесс был создан (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	// 1. Формируем idempotency key: "{schedule_id}_{next_due_at_unix}"
	// Это гарантирует, что для одного schedule и конкретного времени
	// будет создан только один процесс
	idempKey := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	// 2. Проверяем, не создан ли уже процесс (idempotency)
	existing, err := s.processRepo.GetByIdempotencyKey(ctx, sched.ProcessType, idempKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	var procCreated bool
	var processID uuid.UUID

	if existing != nil {
		// Процесс уже существует — просто обновляем next_due_at
		s.logger.Debug("process already exists (idempotency)",
			"schedule_id", sched.ID,
			"process_id", existing.ID,
			"idempotency_key", idempKey,
		)
		processID = existing.ID
		procCreated = false
	} else {
		// 3. Создаём новый процесс
		input := sched.Input
		if input == nil {
			input = &domain.StartInput{}
		}
		input.ProcessType = sched.ProcessType

		rec := &domain.ProcessRecord{
			ID:             uuid.New(),
			ProcessType:    sched.ProcessType,
			Status:         domain.ProcessRunning,
			Input:          input,
			IdempotencyKey: idempKey,
			CreatedAt:      now,
		}

		if err := s.processRepo.Create(ctx, rec); err != nil {
			return false, fmt.Errorf("create process: %w", err)
		}

		s.logger.Info("created process from schedule",
			"process_id", rec.ID,
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"process_type", sched.ProcessType,
		)

		processID = rec.ID
		procCreated = true
	}

	// 4. Вычисляем следующее время выполнения
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		s.logger.Error("failed to calculate next due, leaving schedule as is",
			"schedule_id", sched.ID,
			"error", err,
		)
		// Schedule некорректный — лучше не трогать next_due_at
		return procCreated, nil
	}

	// 5. Обновляем schedule
	sched.RecordStart(processID, nextDue)
	if err := s.scheduleRepo.Update(ctx, sched); err != nil {
		return procCreated, fmt.Errorf("update schedule: %w", err)
	}

	// 6. Публикуем событие в RabbitMQ (если publisher настроен и процесс создан)
	if s.publisher != nil && procCreated {
		if err := s.publisher.PublishProcessPending(ctx, processID); err != nil {
			// Не фатальная ошибка — процесс уже создан в БД
			// Runner может забрать его через polling
			s.logger.Warn("failed to publish process.pending",
				"process_id", processID,
				"error", err,
			)
		}
	}

	return procCreated, nil
}
