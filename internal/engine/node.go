package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

// runNode — жизненный цикл одного узла, исполняется в своей горутине:
// guard → pre hook → действие по типу → post hook. Каждый переход
// фиксируется в состоянии, проекции steps и чекпоинте.
func (p *Process) runNode(def *domain.NodeDef) {
	// Счётчик running уменьшается ровно один раз, после post hook:
	// процесс не финализируется, пока у узла есть side effects в полёте.
	defer func() {
		p.mu.Lock()
		p.running--
		p.wake.Broadcast()
		p.mu.Unlock()
	}()

	p.mu.Lock()
	st := p.states[def.ID]

	if p.abort != nil {
		p.skipLocked(def, st, domain.SkipWorkflowAborted)
		p.mu.Unlock()
		return
	}

	// Guard вычисляется на момент запуска узла.
	if def.Guard != nil {
		ok, err := EvalGuard(p.contextJSONLocked(), def.Guard)
		if err != nil {
			p.failNodeLocked(def, st, err)
			p.mu.Unlock()
			return
		}
		if !ok {
			p.skipLocked(def, st, domain.SkipGuardFalse)
			p.mu.Unlock()
			p.logger.Info("node skipped", "node", def.ID, "reason", domain.SkipGuardFalse)
			// Post hook выполняется и для пропущенного узла:
			// step.status в метаданных hook несёт skipped.
			p.runHook(def, def.Post, "post")
			return
		}
	}

	now := p.host.Now()
	st.MarkRunning(now)
	p.syncStepLocked(def.ID)
	p.pcx.Append(now, def.ID, "node_running", nil)
	p.host.Persist(p.snapshotLocked())
	p.mu.Unlock()

	p.logger.Info("node running", "node", def.ID, "type", def.Type)

	if err := p.runHook(def, def.Pre, "pre"); err != nil {
		p.failNode(def, err)
		p.runHook(def, def.Post, "post")
		return
	}

	result, err := p.execute(def)
	if err != nil {
		if p.causedByAbort(err) {
			// Отмена при abort — штатная размотка, не ошибка шага.
			p.mu.Lock()
			p.skipLocked(def, st, domain.SkipWorkflowAborted)
			p.mu.Unlock()
			p.runHook(def, def.Post, "post")
			return
		}
		p.failNode(def, err)
		p.runHook(def, def.Post, "post")
		return
	}

	p.mu.Lock()
	now = p.host.Now()
	st.MarkDone(result, now)
	p.applySetVarsLocked(def)
	p.syncStepLocked(def.ID)
	p.pcx.Append(now, def.ID, "node_done", nil)
	p.host.Persist(p.snapshotLocked())
	// Будим цикл сразу: зависимые узлы могут стартовать параллельно
	// с post hook этого узла.
	p.wake.Broadcast()
	p.mu.Unlock()

	p.logger.Info("node done", "node", def.ID)
	p.runHook(def, def.Post, "post")
}

// skipLocked помечает узел пропущенным и фиксирует переход.
func (p *Process) skipLocked(def *domain.NodeDef, st *domain.NodeState, reason domain.SkipReason) {
	now := p.host.Now()
	st.MarkSkipped(reason, now)
	p.syncStepLocked(def.ID)
	p.pcx.Append(now, def.ID, "node_skipped", map[string]any{"reason": string(reason)})
	p.host.Persist(p.snapshotLocked())
}

// failNode помечает узел failed и поднимает глобальный abort.
func (p *Process) failNode(def *domain.NodeDef, err error) {
	p.mu.Lock()
	p.failNodeLocked(def, p.states[def.ID], err)
	p.mu.Unlock()
}

func (p *Process) failNodeLocked(def *domain.NodeDef, st *domain.NodeState, err error) {
	now := p.host.Now()
	userMsg := humanizeErr(def, err)
	st.MarkFailed(err.Error(), userMsg, now)
	p.syncStepLocked(def.ID)
	p.pcx.Append(now, def.ID, "node_failed", map[string]any{"error": err.Error()})
	p.logger.Error("node failed", "node", def.ID, "error", err)
	p.failLocked(&domain.FailureInfo{
		NodeID:    def.ID,
		Error:     err.Error(),
		UserError: userMsg,
	})
	p.host.Persist(p.snapshotLocked())
}

// causedByAbort отличает ошибку, вызванную глобальным abort, от
// собственной ошибки шага.
func (p *Process) causedByAbort(err error) bool {
	if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.abort != nil
}

// applySetVarsLocked применяет set_vars узла после успешного действия.
// Значения рендерятся против контекста, уже содержащего результат узла.
func (p *Process) applySetVarsLocked(def *domain.NodeDef) {
	if len(def.SetVars) == 0 {
		return
	}
	p.syncStepLocked(def.ID)
	snap := p.contextJSONLocked()
	for key, tmpl := range def.SetVars {
		p.pcx.Vars[key] = Render(snap, tmpl)
	}
}

// execute выполняет действие узла по его типу.
func (p *Process) execute(def *domain.NodeDef) (any, error) {
	switch def.Type {
	case domain.NodeHandlerHTTP:
		return p.execCall(def)
	case domain.NodeGateHTTP:
		return p.execGate(def)
	case domain.NodeApprovalKofN:
		return p.execApproval(def)
	case domain.NodeEventWait:
		return p.execEventWait(def)
	case domain.NodeTimerDelay, domain.NodeTimerUntil:
		return p.execTimer(def)
	case domain.NodeChildStart:
		return p.execChild(def)
	}
	// Валидация не пропускает неизвестные типы.
	return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, def.Type)
}

// execCall — handler.http: side-effect вызов внешнего обработчика.
func (p *Process) execCall(def *domain.NodeDef) (any, error) {
	p.mu.Lock()
	snap := p.contextJSONLocked()
	p.mu.Unlock()
	return p.callWith(snap, def.Action)
}

// execGate — gate.http: вызов плюс проверка passWhen против результата.
// Непройденный обязательный gate поднимает abort; сам узел при этом
// done — вызов состоялся и результат записан.
func (p *Process) execGate(def *domain.NodeDef) (any, error) {
	p.mu.Lock()
	snap := p.contextJSONLocked()
	p.mu.Unlock()

	res, err := p.callWith(snap, def.Action)
	if err != nil {
		return nil, err
	}

	pass, err := p.evalWithResult(def.PassWhen, res)
	if err != nil {
		return nil, err
	}
	res["passed"] = pass

	if !pass && def.Required() {
		p.mu.Lock()
		p.abortLocked(domain.ProcessRejected, &domain.AbortInfo{
			Reason:  domain.AbortGateFailed,
			NodeID:  def.ID,
			Message: fmt.Sprintf("gate %q condition failed", def.ID),
		})
		p.mu.Unlock()
	}
	return res, nil
}

// execApproval — approval.kofn: блокируется до терминального исхода
// согласования или глобального abort. Голоса приходят через
// HandleApproval и будят ожидание через cond.
func (p *Process) execApproval(def *domain.NodeDef) (any, error) {
	p.mu.Lock()
	if p.approvals[def.ID] == nil {
		p.approvals[def.ID] = NewApprovalState(def)
		p.syncStepLocked(def.ID)
	}
	for !Satisfied(p.approvals[def.ID]) && p.abort == nil {
		p.wake.Wait()
	}
	if !Satisfied(p.approvals[def.ID]) {
		// Разбудил abort — размотка без потери накопленных голосов.
		p.mu.Unlock()
		return nil, ErrAborted
	}
	ap := cloneApproval(p.approvals[def.ID])
	p.mu.Unlock()

	outcome := Outcome(ap)
	result := map[string]any{
		"outcome":     outcome,
		"approved_by": ap.ApprovedBy,
	}
	if ap.DecidedBy != "" {
		result["decided_by"] = ap.DecidedBy
		result["comment"] = ap.Comment
	}

	// Скоринговый gate после набора кворума: может понизить исход.
	if outcome == OutcomeApproved && def.Gate != nil {
		gateRes, err := p.gateAfterApproval(def)
		if err != nil {
			return nil, err
		}
		result["gate"] = gateRes
		if !gateRes["passed"].(bool) && def.Gate.Required {
			outcome = OutcomeRejected
			result["outcome"] = outcome
		}
	}

	p.mu.Lock()
	st := p.states[def.ID]
	st.Outcome = outcome
	p.finalDecision = outcome
	p.syncStepLocked(def.ID)
	if outcome != OutcomeApproved && def.Required() {
		p.abortLocked(statusForOutcome(outcome), &domain.AbortInfo{
			Reason:  domain.AbortApprovalDecision,
			NodeID:  def.ID,
			Actor:   ap.DecidedBy,
			Comment: ap.Comment,
			Message: approvalAbortMessage(def.ID, outcome, ap),
		})
	}
	p.mu.Unlock()

	return result, nil
}

func (p *Process) gateAfterApproval(def *domain.NodeDef) (map[string]any, error) {
	p.mu.Lock()
	snap := p.contextJSONLocked()
	p.mu.Unlock()

	res, err := p.callWith(snap, &def.Gate.Action)
	if err != nil {
		return nil, err
	}
	pass, err := p.evalWithResult(def.Gate.PassWhen, res)
	if err != nil {
		return nil, err
	}
	res["passed"] = pass
	return res, nil
}

func statusForOutcome(outcome string) domain.ProcessStatus {
	if outcome == OutcomeNeedsChanges {
		return domain.ProcessNeedsChanges
	}
	return domain.ProcessRejected
}

func approvalAbortMessage(nodeID, outcome string, ap *domain.ApprovalState) string {
	if ap.DecidedBy != "" {
		msg := fmt.Sprintf("approval %q: %s by %s", nodeID, outcome, ap.DecidedBy)
		if ap.Comment != "" {
			msg += ": " + ap.Comment
		}
		return msg
	}
	return fmt.Sprintf("approval %q: %s", nodeID, outcome)
}

// execEventWait — event.wait: блокируется до появления события в
// именованной очереди. События потребляются по одному, FIFO.
func (p *Process) execEventWait(def *domain.NodeDef) (any, error) {
	p.mu.Lock()
	for len(p.events[def.EventName]) == 0 && p.abort == nil {
		p.wake.Wait()
	}
	q := p.events[def.EventName]
	if len(q) == 0 {
		p.mu.Unlock()
		return nil, ErrAborted
	}
	ev := q[0]
	p.events[def.EventName] = q[1:]
	p.mu.Unlock()

	return map[string]any{
		"event_name": def.EventName,
		"data":       ev,
	}, nil
}

// execTimer — timer.delay / timer.until: сон делегируется хосту,
// отмена runCtx при abort прерывает ожидание.
func (p *Process) execTimer(def *domain.NodeDef) (any, error) {
	var d time.Duration
	if def.Type == domain.NodeTimerDelay {
		d = time.Duration(def.Ms) * time.Millisecond
	} else {
		at, err := time.Parse(time.RFC3339, def.At)
		if err != nil {
			return nil, fmt.Errorf("invalid timer timestamp %q: %w", def.At, err)
		}
		d = at.Sub(p.host.Now())
		if d < 0 {
			// Момент в прошлом — узел завершается немедленно.
			d = 0
		}
	}
	if err := p.host.Sleep(p.runCtx, d); err != nil {
		return nil, err
	}
	return map[string]any{"slept_ms": d.Milliseconds()}, nil
}

// execChild — child.start: запуск дочернего процесса и ожидание его
// терминального статуса. ID ребёнка записывается в состояние сразу
// после старта: наблюдатели видят ссылку, не дожидаясь завершения.
func (p *Process) execChild(def *domain.NodeDef) (any, error) {
	spec := def.Child

	p.mu.Lock()
	snap := p.contextJSONLocked()
	p.mu.Unlock()

	doc, _ := Render(snap, any(spec.Document)).(map[string]any)
	vars, _ := Render(snap, any(spec.Context)).(map[string]any)

	urls := spec.HandlerBaseURLs
	if len(urls) == 0 {
		urls = p.input.HandlerBaseURLs
	}

	handle, err := p.host.StartChild(p.runCtx, &domain.StartInput{
		ProcessType:     spec.ProcessType,
		Document:        doc,
		Context:         vars,
		Route:           spec.Route,
		HandlerBaseURLs: urls,
		Depth:           p.input.Depth + 1,
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.states[def.ID].ChildID = handle.ID()
	p.syncStepLocked(def.ID)
	p.host.Persist(p.snapshotLocked())
	p.mu.Unlock()

	res, err := handle.Await(p.runCtx)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"child_id":       res.ID,
		"status":         string(res.Status),
		"status_message": res.StatusMessage,
	}

	if res.Status != domain.ProcessCompleted && def.Required() {
		status := domain.ProcessFailed
		if res.Status == domain.ProcessRejected || res.Status == domain.ProcessNeedsChanges {
			status = res.Status
		}
		p.mu.Lock()
		p.abortLocked(status, &domain.AbortInfo{
			Reason: domain.AbortChildFailed,
			NodeID: def.ID,
			Message: fmt.Sprintf("child process %s finished with status %s: %s",
				res.ID, res.Status, res.StatusMessage),
		})
		p.mu.Unlock()
	}
	return result, nil
}

// callWith рендерит action против переданного снапшота и выполняет
// вызов через хост. Результат — {"status_code": ..., "body": ...}.
func (p *Process) callWith(snap []byte, action *domain.ActionSpec) (map[string]any, error) {
	base, ok := p.input.HandlerBaseURLs[action.Handler]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q", action.Handler)
	}

	path, _ := Render(snap, action.Path).(string)
	payload := Render(snap, action.Payload)

	method := action.Method
	if method == "" {
		method = http.MethodPost
	}

	res, err := p.host.Call(p.runCtx, &CallRequest{
		Method:  method,
		URL:     strings.TrimRight(base, "/") + path,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("handler %q call: %w", action.Handler, err)
	}

	return map[string]any{
		"status_code": res.StatusCode,
		"body":        res.Body,
	}, nil
}

// evalWithResult вычисляет passWhen против контекста, расширенного
// результатом вызова под ключом "result". Отсутствующее выражение —
// true: gate без passWhen проходит всегда.
func (p *Process) evalWithResult(expr *domain.Expr, result map[string]any) (bool, error) {
	p.mu.Lock()
	snap := p.contextJSONWithLocked(map[string]any{"result": result})
	p.mu.Unlock()
	return EvalGuard(snap, expr)
}
