package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/domain"
	"github.com/shaiso/Procedura/internal/engine"
	"github.com/shaiso/Procedura/internal/telemetry"
)

// Значения конфигурации по умолчанию.
const (
	defaultMaxDepth = 5
)

// RouteDef — зарегистрированный маршрут: определение плюс обработчики
// по умолчанию для процессов этого типа.
type RouteDef struct {
	Route           domain.Route
	HandlerBaseURLs map[string]string
}

// Runtime — среда исполнения процессов в одном экземпляре сервиса.
//
// Runtime:
//   - держит реестр маршрутов по типам процессов
//   - запускает процессы (включая дочерние) и держит активные в памяти
//   - доставляет сигналы и отвечает на запросы прогресса
//   - сохраняет каждый чекпоинт движка в Store
type Runtime struct {
	caller  *Caller
	store   Store
	metrics *telemetry.Metrics
	logger  *slog.Logger

	maxDepth int

	mu     sync.RWMutex
	routes map[string]*RouteDef
	active map[string]*Handle

	// Жизненный цикл
	lifeCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
}

// Config — конфигурация Runtime.
type Config struct {
	// Caller — HTTP-вызовы обработчиков (default: NewCaller с
	// настройками по умолчанию).
	Caller *Caller

	// Store — персистентность чекпоинтов (default: MemoryStore).
	Store Store

	// Metrics — метрики исполнения (опционально).
	Metrics *telemetry.Metrics

	// MaxDepth — максимальная глубина вложенности дочерних процессов
	// (default: 5).
	MaxDepth int

	// Logger — логгер (default: slog.Default).
	Logger *slog.Logger
}

// New создаёт Runtime.
func New(cfg Config) *Runtime {
	caller := cfg.Caller
	if caller == nil {
		caller = NewCaller(CallerConfig{})
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lifeCtx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		caller:     caller,
		store:      store,
		metrics:    cfg.Metrics,
		logger:     logger,
		maxDepth:   maxDepth,
		routes:     make(map[string]*RouteDef),
		active:     make(map[string]*Handle),
		lifeCtx:    lifeCtx,
		cancelFunc: cancel,
	}
}

// RegisterRoute регистрирует маршрут для типа процесса. Повторная
// регистрация того же типа заменяет маршрут.
func (r *Runtime) RegisterRoute(processType string, def *RouteDef) error {
	if err := engine.ValidateRoute(def.Route); err != nil {
		return fmt.Errorf("route for %q: %w", processType, err)
	}
	r.mu.Lock()
	r.routes[processType] = def
	r.mu.Unlock()
	r.logger.Info("route registered", "process_type", processType, "nodes", len(def.Route))
	return nil
}

// Start запускает процесс под новым ID и возвращает ручку.
func (r *Runtime) Start(input *domain.StartInput) (*Handle, error) {
	return r.StartWithID(uuid.NewString(), input)
}

// StartWithID запускает процесс под заранее известным ID (процессы,
// созданные через API, получают ID при записи в БД). Если во входе нет
// inline-маршрута, он берётся из реестра по типу процесса; обработчики
// входа дополняются обработчиками по умолчанию из реестра.
func (r *Runtime) StartWithID(id string, input *domain.StartInput) (*Handle, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, ErrRuntimeStopped
	}
	if input.Depth > r.maxDepth {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: depth %d, max %d", ErrDepthExceeded, input.Depth, r.maxDepth)
	}

	if len(input.Route) == 0 {
		def, ok := r.routes[input.ProcessType]
		if !ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %q", ErrUnknownProcessType, input.ProcessType)
		}
		input.Route = def.Route
		input.HandlerBaseURLs = mergeURLs(def.HandlerBaseURLs, input.HandlerBaseURLs)
	}
	r.mu.Unlock()

	proc, err := engine.New(id, input, r, r.logger)
	if err != nil {
		return nil, err
	}

	handle := &Handle{
		id:   id,
		proc: proc,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, ErrRuntimeStopped
	}
	r.active[id] = handle
	r.wg.Add(1)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ProcessesStarted.WithLabelValues(input.ProcessType).Inc()
		r.metrics.ProcessesActive.Inc()
	}

	go func() {
		defer r.wg.Done()
		started := time.Now()
		snap, err := proc.Run(r.lifeCtx)

		// Завершённый процесс выгружается из памяти до публикации
		// результата: после Await/Result сигналы гарантированно
		// отклоняются, прогресс читается из Store.
		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()

		handle.mu.Lock()
		handle.result = snap
		handle.err = err
		handle.mu.Unlock()
		close(handle.done)

		if r.metrics != nil {
			r.metrics.ProcessesActive.Dec()
			r.metrics.ProcessesFinished.
				WithLabelValues(input.ProcessType, string(snap.Status)).Inc()
			r.metrics.ProcessDuration.
				WithLabelValues(input.ProcessType).Observe(time.Since(started).Seconds())
		}
	}()

	return handle, nil
}

// SignalApproval доставляет голос согласующего в активный процесс.
func (r *Runtime) SignalApproval(id string, sig *domain.ApprovalSignal) error {
	handle, err := r.lookup(id)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.SignalsReceived.WithLabelValues(domain.SignalApproval).Inc()
	}
	handle.proc.HandleApproval(sig)
	return nil
}

// SignalEvent доставляет внешнее событие в активный процесс.
func (r *Runtime) SignalEvent(id string, sig *domain.EventSignal) error {
	handle, err := r.lookup(id)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.SignalsReceived.WithLabelValues(domain.SignalProcessEvent).Inc()
	}
	handle.proc.HandleEvent(sig)
	return nil
}

// Progress возвращает снапшот прогресса процесса: для активного — живой
// снапшот движка, для завершённого — последний чекпоинт из Store.
func (r *Runtime) Progress(id string) (*domain.ProgressSnapshot, error) {
	r.mu.RLock()
	handle, ok := r.active[id]
	r.mu.RUnlock()
	if ok {
		return handle.proc.Progress(), nil
	}
	if snap, ok := r.store.LoadSnapshot(id); ok {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
}

// Stop останавливает runtime: активные процессы получают abort через
// отмену lifecycle-контекста, затем ожидается их размотка.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	r.logger.Info("stopping runtime")
	r.cancelFunc()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) lookup(id string) (*Handle, error) {
	r.mu.RLock()
	handle, ok := r.active[id]
	r.mu.RUnlock()
	if !ok {
		if _, finished := r.store.LoadSnapshot(id); finished {
			return nil, fmt.Errorf("%w: %s", ErrProcessFinished, id)
		}
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
	}
	return handle, nil
}

func mergeURLs(defaults, overrides map[string]string) map[string]string {
	if len(defaults) == 0 {
		return overrides
	}
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// --- Реализация engine.Host ---

// Call выполняет side-effect вызов через Caller.
func (r *Runtime) Call(ctx context.Context, req *engine.CallRequest) (*engine.CallResult, error) {
	started := time.Now()
	res, err := r.caller.Call(ctx, req)
	if r.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.metrics.HandlerCalls.WithLabelValues(outcome).Inc()
		r.metrics.HandlerCallDuration.Observe(time.Since(started).Seconds())
	}
	return res, err
}

// Sleep блокируется на d с учётом отмены контекста.
func (r *Runtime) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartChild запускает дочерний процесс. Глубина вложенности
// контролируется в Start.
func (r *Runtime) StartChild(ctx context.Context, input *domain.StartInput) (engine.ChildHandle, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return r.Start(input)
}

// Persist сохраняет чекпоинт в Store. Ошибка логируется, исполнение
// продолжается.
func (r *Runtime) Persist(snap *domain.ProgressSnapshot) {
	if err := r.store.SaveSnapshot(snap); err != nil {
		r.logger.Error("checkpoint save failed", "process_id", snap.ID, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.CheckpointsSaved.Inc()
	}
}

// Now возвращает текущее время.
func (r *Runtime) Now() time.Time { return time.Now() }

// Handle — ручка запущенного процесса. Реализует engine.ChildHandle.
type Handle struct {
	id   string
	proc *engine.Process
	done chan struct{}

	mu     sync.Mutex
	result *domain.ProgressSnapshot
	err    error
}

// ID возвращает идентификатор процесса.
func (h *Handle) ID() string { return h.id }

// Progress возвращает текущий снапшот прогресса.
func (h *Handle) Progress() *domain.ProgressSnapshot {
	return h.proc.Progress()
}

// Await блокируется до терминального статуса процесса или отмены ctx.
func (h *Handle) Await(ctx context.Context) (*engine.ChildResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return &engine.ChildResult{
		ID:            h.id,
		Status:        h.result.Status,
		StatusMessage: h.result.StatusMessage,
	}, nil
}

// Result блокируется до завершения и возвращает финальный снапшот.
func (h *Handle) Result(ctx context.Context) (*domain.ProgressSnapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}
