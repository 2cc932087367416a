package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/domain"
)

// SubmitApproval принимает голос согласующего и публикует его в очередь
// сигналов. Доставка at-least-once: runner дедуплицирует и валидирует
// сигнал сам, поэтому ответ 202 не гарантирует применение голоса.
// POST /api/v1/processes/{id}/approval
func (h *Handler) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	var req SubmitApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Структурная валидация до публикации. Семантику (известен ли
	// узел, член ли actor, есть ли комментарий у негативного решения)
	// проверяет движок.
	if req.NodeID == "" {
		BadRequest(w, "node_id is required")
		return
	}
	if req.Actor == "" {
		BadRequest(w, "actor is required")
		return
	}
	if _, ok := domain.NormalizeDecision(req.Decision); !ok {
		BadRequest(w, "unknown decision: "+req.Decision)
		return
	}

	rec, err := h.processRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "process not found") {
		return
	}

	if rec.IsFinished() {
		InvalidState(w, "process is already finished")
		return
	}

	// Без RabbitMQ сигнал доставить некуда: polling runner'а
	// подбирает только новые процессы, не голоса.
	if h.publisher == nil {
		ServiceUnavailable(w, "signal transport is not available")
		return
	}

	sig := &domain.ApprovalSignal{
		NodeID:   req.NodeID,
		Actor:    req.Actor,
		Decision: req.Decision,
		Comment:  req.Comment,
	}

	if err := h.publisher.PublishApproval(r.Context(), id, sig); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Accepted(w, SignalAcceptedResponse{ProcessID: id, Kind: domain.SignalApproval})
}

// SubmitEvent принимает внешнее событие и публикует его в очередь
// сигналов.
// POST /api/v1/processes/{id}/events
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	var req SubmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.EventName == "" {
		BadRequest(w, "event_name is required")
		return
	}

	rec, err := h.processRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "process not found") {
		return
	}

	if rec.IsFinished() {
		InvalidState(w, "process is already finished")
		return
	}

	if h.publisher == nil {
		ServiceUnavailable(w, "signal transport is not available")
		return
	}

	sig := &domain.EventSignal{
		EventName: req.EventName,
		Data:      req.Data,
		EventID:   req.EventID,
	}

	if err := h.publisher.PublishEvent(r.Context(), id, sig); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Accepted(w, SignalAcceptedResponse{ProcessID: id, Kind: domain.SignalProcessEvent})
}
