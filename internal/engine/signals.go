package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/Procedura/internal/domain"
)

// HandleApproval применяет голос согласующего.
//
// Невалидные сигналы (неизвестный узел, неизвестное решение, негативное
// решение без комментария) фиксируются в lastSignalError и молча
// отбрасываются: состояние процесса от них не меняется. Негативное
// решение по обязательному узлу немедленно поднимает глобальный abort,
// не дожидаясь, пока approval-узел проснётся.
func (p *Process) HandleApproval(sig *domain.ApprovalSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.wake.Broadcast()

	def := p.byID[sig.NodeID]
	if def == nil || def.Type != domain.NodeApprovalKofN {
		p.rejectSignalLocked(fmt.Sprintf("approval signal for unknown node %q", sig.NodeID))
		return
	}
	decision, ok := domain.NormalizeDecision(sig.Decision)
	if !ok {
		p.rejectSignalLocked(fmt.Sprintf("unknown decision %q for node %q", sig.Decision, sig.NodeID))
		return
	}
	if decision.IsNegative() && strings.TrimSpace(sig.Comment) == "" {
		p.rejectSignalLocked(fmt.Sprintf("decision %q for node %q requires a comment", decision, sig.NodeID))
		return
	}

	prev := p.approvals[def.ID]
	if prev == nil {
		prev = NewApprovalState(def)
	}
	now := p.host.Now()
	next := ApplyVote(prev, Vote{
		Actor:    sig.Actor,
		Decision: decision,
		Comment:  sig.Comment,
	}, now)
	p.approvals[def.ID] = next
	p.syncStepLocked(def.ID)
	p.pcx.Append(now, def.ID, "vote", map[string]any{
		"actor":    sig.Actor,
		"decision": string(decision),
	})
	p.logger.Info("approval vote",
		"node", def.ID, "actor", sig.Actor, "decision", decision,
		"approved", len(next.ApprovedBy), "quorum", next.K)

	// Негативное решение зафиксировано именно этим голосом.
	if next.Decision != "" && prev.Decision == "" && def.Required() {
		p.finalDecision = Outcome(next)
		p.abortLocked(domain.ProcessStatusFor(next.Decision), &domain.AbortInfo{
			Reason:  domain.AbortApprovalDecision,
			NodeID:  def.ID,
			Actor:   sig.Actor,
			Comment: next.Comment,
			Message: approvalAbortMessage(def.ID, Outcome(next), next),
		})
	}
}

// HandleEvent ставит внешнее событие в именованную очередь.
//
// События с непустым event_id дедуплицируются: повторная доставка
// того же идентификатора — no-op. Событие с зарезервированным именем
// DOC_UPDATE дополнительно патчит документ и может реактивировать
// guard-skipped узлы.
func (p *Process) HandleEvent(sig *domain.EventSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.wake.Broadcast()

	if sig.EventName == "" {
		p.rejectSignalLocked("event signal without event name")
		return
	}
	if sig.EventID != "" {
		if p.seenEvents[sig.EventID] {
			p.logger.Info("duplicate event dropped", "event", sig.EventName, "event_id", sig.EventID)
			return
		}
		p.seenEvents[sig.EventID] = true
	}

	now := p.host.Now()
	p.events[sig.EventName] = append(p.events[sig.EventName], sig.Data)
	p.pcx.Append(now, "", "event", map[string]any{"event_name": sig.EventName})
	p.logger.Info("event received", "event", sig.EventName)

	if sig.EventName == domain.EventDocUpdate {
		p.applyDocUpdateLocked(sig.Data)
	}
}

// applyDocUpdateLocked применяет патч документа из события DOC_UPDATE:
// верхнеуровневые поля данных события переписывают одноимённые поля
// документа. После патча guard-skipped узлы пересматриваются.
func (p *Process) applyDocUpdateLocked(data map[string]any) {
	if len(data) == 0 {
		return
	}
	now := p.host.Now()
	keys := make([]string, 0, len(data))
	for key, value := range data {
		p.pcx.Doc[key] = value
		keys = append(keys, key)
	}
	p.pcx.Append(now, "", "doc_patch", map[string]any{"fields": keys})
	p.reactivateLocked()
}

// reactivateLocked возвращает в pending узлы, пропущенные по guard,
// если их guard теперь истинен и ни один transitively-зависимый узел
// ещё не начал выполняться. Второе условие сохраняет детерминизм:
// нельзя перезапускать ветку, результаты которой уже потреблены.
func (p *Process) reactivateLocked() {
	if p.abort != nil {
		return
	}
	snap := p.contextJSONLocked()
	now := p.host.Now()
	for id, st := range p.states {
		if st.Status != domain.NodeSkipped || st.SkipReason != domain.SkipGuardFalse {
			continue
		}
		def := p.byID[id]
		ok, err := EvalGuard(snap, def.Guard)
		if err != nil || !ok {
			continue
		}
		if p.downstreamProgressedLocked(id) {
			continue
		}
		st.ResetPending()
		p.started[id] = false
		p.syncStepLocked(id)
		p.pcx.Append(now, id, "node_reactivated", nil)
		p.logger.Info("node reactivated", "node", id)
	}
}

// downstreamProgressedLocked — true, если хотя бы один транзитивно
// зависимый узел уже вышел из pending.
func (p *Process) downstreamProgressedLocked(id string) bool {
	visited := map[string]bool{id: true}
	queue := p.route.Dependents(id)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		if st := p.states[next]; st != nil && st.Status != domain.NodePending {
			return true
		}
		queue = append(queue, p.route.Dependents(next)...)
	}
	return false
}

// rejectSignalLocked фиксирует отброшенный сигнал для наблюдаемости.
func (p *Process) rejectSignalLocked(msg string) {
	p.lastSignalError = msg
	p.logger.Warn("signal rejected", "error", msg)
}
