package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

// Process — один исполняемый экземпляр бизнес-процесса.
//
// Модель конкурентности: один mutex защищает всё изменяемое состояние,
// sync.Cond на нём будит цикл планировщика и блокирующие узлы.
// Обработчики сигналов берут mutex, мутируют состояние согласований и
// очереди событий и делают Broadcast — потерянных пробуждений нет,
// потому что ожидающие проверяют условие под тем же mutex.
//
// Дисциплина записи контекста: снапшот контекста для рендера и guard
// берётся под mutex, внешний вызов идёт без mutex, применение
// результата — снова под mutex. Так сигналы не блокируются на время
// сетевых вызовов.
type Process struct {
	id     string
	input  *domain.StartInput
	host   Host
	logger *slog.Logger

	mu   sync.Mutex
	wake *sync.Cond

	// runCtx отменяется при глобальном abort — кооперативная отмена
	// таймеров, вызовов и ожиданий дочерних процессов.
	runCtx context.Context
	cancel context.CancelFunc

	route  domain.Route
	byID   map[string]*domain.NodeDef
	states map[string]*domain.NodeState

	// started помечает узлы, чья горутина уже запущена; сбрасывается
	// при реактивации guard-skipped узла.
	started map[string]bool
	// running — число незавершённых горутин узлов.
	running int

	pcx        *domain.Context
	approvals  map[string]*domain.ApprovalState
	events     map[string][]map[string]any
	seenEvents map[string]bool

	status          domain.ProcessStatus
	statusMessage   string
	abort           *domain.AbortInfo
	failure         *domain.FailureInfo
	lastSignalError string
	finalDecision   string
	startedAt       time.Time
	completedAt     *time.Time
}

// New создаёт процесс из входа запуска. Маршрут валидируется целиком
// до запуска первого узла: ошибки конфигурации не должны проявляться
// посреди исполнения.
func New(id string, input *domain.StartInput, host Host, logger *slog.Logger) (*Process, error) {
	if err := ValidateRoute(input.Route); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Process{
		id:         id,
		input:      input,
		host:       host,
		logger:     logger.With("process_id", id, "process_type", input.ProcessType),
		route:      input.Route,
		byID:       make(map[string]*domain.NodeDef, len(input.Route)),
		states:     make(map[string]*domain.NodeState, len(input.Route)),
		started:    make(map[string]bool, len(input.Route)),
		approvals:  make(map[string]*domain.ApprovalState),
		events:     make(map[string][]map[string]any),
		seenEvents: make(map[string]bool),
		status:     domain.ProcessRunning,
		startedAt:  host.Now(),
	}
	p.wake = sync.NewCond(&p.mu)
	p.runCtx, p.cancel = context.WithCancel(context.Background())

	for i := range p.route {
		def := &p.route[i]
		p.byID[def.ID] = def
		p.states[def.ID] = domain.NewNodeState(def.ID)
	}
	p.pcx = domain.NewContext(input.Document, input.Context, input.Route)

	return p, nil
}

// ID возвращает идентификатор процесса.
func (p *Process) ID() string { return p.id }

// Run исполняет процесс до терминального статуса и возвращает финальный
// снапшот. Цикл планировщика: запустить готовые узлы, дождаться
// пробуждения, повторить; когда все узлы doneish и горутины завершены —
// финализация. Если never-ready узлы остались, а запущенных нет —
// deadlock.
func (p *Process) Run(ctx context.Context) (*domain.ProgressSnapshot, error) {
	// Отмена host-контекста транслируется в abort, чтобы запущенные
	// узлы размотались, а не зависли.
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.abortLocked(domain.ProcessFailed, &domain.AbortInfo{
			Reason:  domain.AbortStepFailed,
			Message: "execution cancelled by host",
		})
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info("process started", "nodes", len(p.route))
	p.host.Persist(p.snapshotLocked())

	for {
		if p.abort == nil {
			for _, id := range Ready(p.route, p.states) {
				if p.started[id] {
					continue
				}
				p.started[id] = true
				p.running++
				go p.runNode(p.byID[id])
			}
		}

		if p.allDoneishLocked() && p.running == 0 {
			break
		}

		if p.running == 0 && p.abort == nil {
			// Ничего не запущено и запускать нечего: зависимости
			// оставшихся узлов неудовлетворимы.
			p.failLocked(&domain.FailureInfo{
				Error:     ErrDeadlock.Error(),
				UserError: "process is stuck: remaining nodes have unsatisfiable dependencies",
			})
			p.finalizeLocked()
			p.host.Persist(p.snapshotLocked())
			return p.snapshotLocked(), ErrDeadlock
		}

		p.wake.Wait()
	}

	p.finalizeLocked()
	p.host.Persist(p.snapshotLocked())
	p.logger.Info("process finished", "status", p.status, "message", p.statusMessage)
	return p.snapshotLocked(), nil
}

// allDoneishLocked — все узлы в терминальном статусе.
func (p *Process) allDoneishLocked() bool {
	for _, st := range p.states {
		if !st.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// finalizeLocked выставляет терминальный статус процесса.
// Если abort не поднимался и ошибок не было — completed.
func (p *Process) finalizeLocked() {
	if p.status == domain.ProcessRunning {
		p.status = domain.ProcessCompleted
		if p.statusMessage == "" {
			p.statusMessage = "all nodes finished"
		}
	}
	now := p.host.Now()
	p.completedAt = &now
}

// failLocked фиксирует неустранимую ошибку процесса и поднимает abort.
// Первая ошибка побеждает: после активного abort последующие ошибки
// шагов не меняют финальный статус.
func (p *Process) failLocked(info *domain.FailureInfo) {
	if p.failure == nil {
		p.failure = info
	}
	msg := info.UserError
	if msg == "" {
		msg = info.Error
	}
	p.abortLocked(domain.ProcessFailed, &domain.AbortInfo{
		Reason:  domain.AbortStepFailed,
		NodeID:  info.NodeID,
		Message: msg,
	})
}

// abortLocked поднимает глобальный abort. Идемпотентен: выигрывает
// первый вызов, повторные — no-op. Все ещё pending узлы помечаются
// skipped(workflow_aborted), запущенным отменяется runCtx.
func (p *Process) abortLocked(status domain.ProcessStatus, info *domain.AbortInfo) {
	if p.abort != nil {
		return
	}
	info.At = p.host.Now()
	p.abort = info
	p.status = status
	p.statusMessage = info.Message

	for id, st := range p.states {
		if st.Status == domain.NodePending {
			st.MarkSkipped(domain.SkipWorkflowAborted, info.At)
			p.syncStepLocked(id)
		}
	}

	p.pcx.Append(info.At, info.NodeID, "abort", map[string]any{
		"reason":  string(info.Reason),
		"message": info.Message,
	})
	p.logger.Warn("process aborted",
		"reason", info.Reason, "node", info.NodeID, "message", info.Message)

	p.cancel()
	p.wake.Broadcast()
}

// syncStepLocked переносит состояние узла в проекцию steps контекста.
func (p *Process) syncStepLocked(id string) {
	st := p.states[id]
	sv := p.pcx.Steps[id]
	if st == nil || sv == nil {
		return
	}
	sv.Status = st.Status
	sv.SkipReason = st.SkipReason
	sv.Result = st.Result
	sv.Outcome = st.Outcome
	sv.ChildID = st.ChildID
	sv.Error = st.UserError
	if ap := p.approvals[id]; ap != nil {
		sv.Approval = ap
	}
}

// contextJSONLocked возвращает JSON-снапшот контекста для guard и
// шаблонов.
func (p *Process) contextJSONLocked() []byte {
	return p.contextJSONWithLocked(nil)
}

// contextJSONWithLocked — то же, но с дополнительными верхнеуровневыми
// полями (например, "result" при вычислении passWhen для gate).
func (p *Process) contextJSONWithLocked(extra map[string]any) []byte {
	base := map[string]any{
		"doc":     p.pcx.Doc,
		"vars":    p.pcx.Vars,
		"steps":   p.pcx.Steps,
		"history": p.pcx.History,
	}
	for k, v := range extra {
		base[k] = v
	}
	b, err := json.Marshal(base)
	if err != nil {
		p.logger.Error("context marshal failed", "error", err)
		return []byte("{}")
	}
	return b
}

// snapshotLocked строит иммутабельный снапшот прогресса. Контекст
// глубоко копируется: наблюдатели никогда не видят живые структуры.
func (p *Process) snapshotLocked() *domain.ProgressSnapshot {
	snap := &domain.ProgressSnapshot{
		ID:              p.id,
		ProcessType:     p.input.ProcessType,
		Status:          p.status,
		StatusMessage:   p.statusMessage,
		Context:         p.pcx.Clone(),
		StartedAt:       p.startedAt,
		LastSignalError: p.lastSignalError,
		FinalDecision:   p.finalDecision,
	}
	if p.completedAt != nil {
		t := *p.completedAt
		snap.CompletedAt = &t
	}
	if p.abort != nil {
		a := *p.abort
		snap.Abort = &a
	}
	if p.failure != nil {
		f := *p.failure
		snap.Failure = &f
	}
	return snap
}

// Progress возвращает снапшот текущего прогресса. Безопасен для
// конкурентного вызова в любой момент жизни процесса.
func (p *Process) Progress() *domain.ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Status возвращает текущий статус процесса.
func (p *Process) Status() domain.ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// humanizeErr сокращает техническую ошибку до человекочитаемого вида.
func humanizeErr(def *domain.NodeDef, err error) string {
	return fmt.Sprintf("step %q (%s) failed: %v", def.ID, def.Type, err)
}
