package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/mq"
	"github.com/shaiso/Procedura/internal/repo"
	"github.com/shaiso/Procedura/internal/runtime"
	"github.com/shaiso/Procedura/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// Runner исполняет процессы.
//
// Runner — центральный компонент системы, который:
//   - Получает новые процессы из очереди RabbitMQ (event-driven)
//   - Периодически проверяет незавершённые процессы в БД (polling fallback)
//   - Поднимает каждый процесс в in-memory runtime
//   - Принимает внешние сигналы (голоса, события) и доставляет их
//     в работающие процессы
//   - Журналирует сигналы и дедуплицирует события по event_id
type Runner struct {
	// Repositories
	processRepo *repo.ProcessRepo
	signalRepo  *repo.SignalRepo

	// Runtime
	rt *runtime.Runtime

	// MQ
	conn *mq.Connection

	// Active processes — процессы, выполняемые этим runner (id → struct{})
	active map[uuid.UUID]struct{}
	mu     sync.RWMutex

	// Consumers
	processConsumer *mq.Consumer
	signalConsumer  *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Telemetry
	metrics *telemetry.Metrics

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Runner.
type Config struct {
	// Repositories
	ProcessRepo *repo.ProcessRepo
	SignalRepo  *repo.SignalRepo

	// Runtime
	Runtime *runtime.Runtime

	// MQ
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество процессов за один poll (default: 100)

	// Telemetry
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		processRepo:  cfg.ProcessRepo,
		signalRepo:   cfg.SignalRepo,
		rt:           cfg.Runtime,
		conn:         cfg.Conn,
		active:       make(map[uuid.UUID]struct{}),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Start запускает Runner.
//
// Запускает:
//   - Consumer для processes.pending
//   - Consumer для signals.inbox
//   - Polling горутину для fallback
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.logger.Info("starting runner",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
	)

	// Создаём consumers. Без RabbitMQ работаем в polling-only режиме:
	// новые процессы подберёт poll, сигналы доставлять некому.
	if r.conn != nil {
		r.processConsumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueProcessesPending),
			Handler:  mq.OnProcessPending(r.handleProcessPending),
			Prefetch: 10,
		})

		r.signalConsumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueSignalsInbox),
			Handler:  mq.OnSignal(r.handleSignal),
			Prefetch: 10,
		})

		// Запускаем process consumer
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.processConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("process consumer error", "error", err)
			}
		}()

		// Запускаем signal consumer
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.signalConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("signal consumer error", "error", err)
			}
		}()
	}

	// Запускаем polling
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pollLoop(ctx)
	}()

	r.logger.Info("runner started")
	return nil
}

// Stop останавливает Runner.
//
// Consumers останавливаются первыми, затем runtime поднимает abort в
// работающих процессах и дожидается их терминальных чекпоинтов.
func (r *Runner) Stop(ctx context.Context) {
	r.stoppedMu.Lock()
	r.stopped = true
	r.stoppedMu.Unlock()

	r.logger.Info("stopping runner...")

	if r.cancelFunc != nil {
		r.cancelFunc()
	}

	// Останавливаем consumers
	if r.processConsumer != nil {
		r.processConsumer.Stop()
	}
	if r.signalConsumer != nil {
		r.signalConsumer.Stop()
	}

	// Останавливаем runtime (abort + ожидание активных процессов)
	if err := r.rt.Stop(ctx); err != nil {
		r.logger.Warn("runtime stop", "error", err)
	}

	// Ждём завершения горутин
	r.wg.Wait()

	r.logger.Info("runner stopped",
		"active_processes", r.ActiveCount(),
	)
}

// IsStopped проверяет, остановлен ли Runner.
func (r *Runner) IsStopped() bool {
	r.stoppedMu.RLock()
	defer r.stoppedMu.RUnlock()
	return r.stopped
}

// pollLoop — цикл polling для fallback.
func (r *Runner) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем процессы, созданные
	// пока runner был выключен)
	r.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (r *Runner) poll(ctx context.Context) {
	recs, err := r.processRepo.ListUnfinished(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("failed to list unfinished processes", "error", err)
		return
	}

	if len(recs) == 0 {
		return
	}

	r.logger.Debug("poll found unfinished processes", "count", len(recs))

	for i := range recs {
		rec := &recs[i]

		// Проверяем, не выполняется ли уже
		if r.isActive(rec.ID) {
			continue
		}

		// Запускаем процесс
		if err := r.startProcess(ctx, rec.ID); err != nil {
			if errors.Is(err, ErrProcessFinished) || errors.Is(err, ErrProcessAlreadyActive) {
				continue
			}
			r.logger.Error("failed to start process from poll",
				"process_id", rec.ID,
				"error", err,
			)
		}
	}
}

// isActive проверяет, выполняется ли процесс этим runner.
func (r *Runner) isActive(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.active[id]
	return exists
}

// addActive добавляет процесс в активные.
func (r *Runner) addActive(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[id]; exists {
		return ErrProcessAlreadyActive
	}

	r.active[id] = struct{}{}
	return nil
}

// removeActive удаляет процесс из активных.
func (r *Runner) removeActive(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

// ActiveCount возвращает количество активных процессов.
func (r *Runner) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
