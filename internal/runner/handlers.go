package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/domain"
	"github.com/shaiso/Procedura/internal/mq"
	"github.com/shaiso/Procedura/internal/repo"
	"github.com/shaiso/Procedura/internal/runtime"
)

// handleProcessPending обрабатывает событие о новом процессе.
// Тип сообщения и payload уже проверены обёрткой mq.OnProcessPending.
func (r *Runner) handleProcessPending(ctx context.Context, payload *mq.ProcessPendingPayload) error {
	r.logger.Debug("received process.pending event", "process_id", payload.ProcessID)

	// Запускаем процесс
	if err := r.startProcess(ctx, payload.ProcessID); err != nil {
		// Дубликаты доставки и гонки с polling — не ошибка
		if errors.Is(err, ErrProcessFinished) || errors.Is(err, ErrProcessAlreadyActive) {
			r.logger.Debug("process not started", "process_id", payload.ProcessID, "reason", err)
			return nil
		}
		if errors.Is(err, ErrProcessNotFound) {
			// Сообщение обогнало коммит записи в БД — retry
			r.logger.Debug("process not in database yet", "process_id", payload.ProcessID)
			return err
		}
		r.logger.Error("failed to start process", "process_id", payload.ProcessID, "error", err)
		return err
	}

	return nil
}

// handleSignal обрабатывает внешний сигнал (голос или событие).
//
// Сигнал сначала журналируется, затем доставляется в работающий
// процесс. Дубликат в журнале не блокирует доставку: дедупликацию
// применения делает сам движок (по actor для голосов, по event_id
// для событий), журнал нужен для аудита.
func (r *Runner) handleSignal(ctx context.Context, payload *mq.SignalPayload) error {
	r.logger.Debug("received signal",
		"process_id", payload.ProcessID,
		"kind", payload.Kind,
	)

	// Журналируем
	if err := r.journalSignal(ctx, payload); err != nil {
		return fmt.Errorf("journal signal: %w", err)
	}

	// Доставляем в процесс
	if err := r.deliverSignal(ctx, payload); err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.SignalsReceived.WithLabelValues(payload.Kind).Inc()
	}

	return nil
}

// startProcess поднимает процесс из БД в runtime.
func (r *Runner) startProcess(ctx context.Context, id uuid.UUID) error {
	// 1. Загружаем запись из БД
	rec, err := r.processRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProcessNotFound, id)
		}
		return fmt.Errorf("get process: %w", err)
	}

	// 2. Проверяем статус
	if rec.IsFinished() {
		return ErrProcessFinished
	}

	if rec.Input == nil {
		// Запись без входа невозможно выполнить
		r.failProcess(ctx, rec, ErrNoInput.Error())
		return ErrNoInput
	}

	// 3. Добавляем в активные
	if err := r.addActive(id); err != nil {
		return err
	}

	// 4. Поднимаем в runtime
	handle, err := r.rt.StartWithID(id.String(), rec.Input)
	if err != nil {
		r.removeActive(id)
		// Остановка runtime — транзиентная ситуация, сообщение
		// вернётся в очередь. Всё остальное (невалидный маршрут,
		// неизвестный тип, превышение глубины) — терминальный отказ.
		if errors.Is(err, runtime.ErrRuntimeStopped) {
			return fmt.Errorf("start process: %w", err)
		}
		r.failProcess(ctx, rec, err.Error())
		return nil
	}

	r.logger.Info("process started",
		"process_id", id,
		"process_type", rec.ProcessType,
	)

	// 5. Дожидаемся завершения в фоне. Терминальный снапшот
	// персистится движком, здесь только учёт активных.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.removeActive(id)

		snap, err := handle.Result(context.Background())
		if err != nil {
			r.logger.Warn("process finished with error",
				"process_id", id,
				"status", snap.Status,
				"error", err,
			)
			return
		}
		r.logger.Info("process finished",
			"process_id", id,
			"status", snap.Status,
			"message", snap.StatusMessage,
		)
	}()

	return nil
}

// journalSignal пишет сигнал в журнал. Дубликат события (по event_id)
// не считается ошибкой.
func (r *Runner) journalSignal(ctx context.Context, payload *mq.SignalPayload) error {
	rec := &repo.SignalRecord{
		ID:         uuid.New(),
		ProcessID:  payload.ProcessID,
		Kind:       payload.Kind,
		ReceivedAt: time.Now(),
	}

	switch payload.Kind {
	case domain.SignalApproval:
		rec.Payload = toPayloadMap(payload.Approval)
	case domain.SignalProcessEvent:
		if payload.Event != nil {
			rec.EventID = payload.Event.EventID
		}
		rec.Payload = toPayloadMap(payload.Event)
	}

	if err := r.signalRepo.Record(ctx, rec); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			r.logger.Debug("signal already journaled",
				"process_id", payload.ProcessID,
				"event_id", rec.EventID,
			)
			return nil
		}
		return err
	}
	return nil
}

// deliverSignal доставляет сигнал в работающий процесс.
func (r *Runner) deliverSignal(ctx context.Context, payload *mq.SignalPayload) error {
	id := payload.ProcessID.String()

	// Вид сигнала и наличие тела уже проверены на стороне consumer.
	var err error
	switch payload.Kind {
	case domain.SignalApproval:
		err = r.rt.SignalApproval(id, payload.Approval)
	case domain.SignalProcessEvent:
		err = r.rt.SignalEvent(id, payload.Event)
	default:
		r.logger.Warn("unknown signal kind, dropping",
			"process_id", id,
			"kind", payload.Kind,
		)
		return nil
	}

	if err == nil {
		return nil
	}

	if errors.Is(err, runtime.ErrProcessFinished) {
		// Процесс уже завершён — сигнал молча отбрасывается
		r.logger.Debug("signal for finished process dropped", "process_id", id)
		if r.metrics != nil {
			r.metrics.SignalsRejected.Inc()
		}
		return nil
	}

	if errors.Is(err, runtime.ErrProcessNotFound) {
		// Процесс не поднят в этом runtime. Если запись в БД ещё не
		// завершена — сигнал вернётся в очередь и будет доставлен,
		// когда процесс стартует.
		rec, dbErr := r.processRepo.GetByID(ctx, payload.ProcessID)
		if dbErr != nil || rec.IsFinished() {
			r.logger.Warn("signal for unknown process dropped", "process_id", id)
			if r.metrics != nil {
				r.metrics.SignalsRejected.Inc()
			}
			return nil
		}
		return fmt.Errorf("process %s not active yet: %w", id, err)
	}

	return err
}

// failProcess фиксирует ранний отказ процесса в БД (до того, как
// движок успел создать хоть один чекпоинт).
func (r *Runner) failProcess(ctx context.Context, rec *domain.ProcessRecord, msg string) {
	now := time.Now()
	snap := &domain.ProgressSnapshot{
		ID:            rec.ID.String(),
		ProcessType:   rec.ProcessType,
		Status:        domain.ProcessFailed,
		StatusMessage: msg,
		StartedAt:     rec.CreatedAt,
		CompletedAt:   &now,
	}

	if err := r.processRepo.SaveSnapshot(ctx, rec.ID, snap); err != nil {
		r.logger.Error("failed to mark process as failed",
			"process_id", rec.ID,
			"error", err,
		)
		return
	}

	r.logger.Warn("process failed early",
		"process_id", rec.ID,
		"error", msg,
	)
}

// toPayloadMap сериализует payload сигнала в map для журнала.
func toPayloadMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
