package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/domain"
	"github.com/shaiso/Procedura/internal/engine"
	"github.com/shaiso/Procedura/internal/repo"
)

// ListProcesses возвращает список процессов с фильтрацией.
// GET /api/v1/processes?process_type=...&status=...&limit=...&offset=...
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	filter := repo.ProcessFilter{}

	// Парсим query параметры
	if pt := r.URL.Query().Get("process_type"); pt != "" {
		filter.ProcessType = pt
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.ProcessStatus(status)
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = int(mustParseInt(limitStr, 50))
	} else {
		filter.Limit = 50
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = int(mustParseInt(offsetStr, 0))
	}

	procs, err := h.processRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ProcessResponse, len(procs))
	for i, p := range procs {
		result[i] = ProcessFromDomain(p)
	}

	List(w, result, len(result))
}

// StartProcess ставит новый процесс в очередь на выполнение.
// POST /api/v1/processes
func (h *Handler) StartProcess(w http.ResponseWriter, r *http.Request) {
	var req StartProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.ProcessType == "" {
		BadRequest(w, "process_type is required")
		return
	}

	// Inline-маршрут валидируется до публикации: битый маршрут
	// должен отклоняться синхронно, а не падать в runner.
	if len(req.Route) > 0 {
		if err := engine.ValidateRoute(req.Route); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	// Проверяем idempotency key
	if req.IdempotencyKey != "" {
		existing, err := h.processRepo.GetByIdempotencyKey(r.Context(), req.ProcessType, req.IdempotencyKey)
		if err == nil && existing != nil {
			// Возвращаем существующий процесс
			Success(w, ProcessFromDomain(*existing))
			return
		}
	}

	rec := &domain.ProcessRecord{
		ID:          uuid.New(),
		ProcessType: req.ProcessType,
		Status:      domain.ProcessRunning,
		Input: &domain.StartInput{
			ProcessType:     req.ProcessType,
			Document:        req.Document,
			Context:         req.Context,
			Route:           req.Route,
			HandlerBaseURLs: req.HandlerBaseURLs,
		},
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := h.processRepo.Create(r.Context(), rec); err != nil {
		// Гонка по idempotency key: запись успела появиться между
		// проверкой и вставкой.
		if errors.Is(err, repo.ErrAlreadyExists) && req.IdempotencyKey != "" {
			existing, lookupErr := h.processRepo.GetByIdempotencyKey(r.Context(), req.ProcessType, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				Success(w, ProcessFromDomain(*existing))
				return
			}
		}
		InternalError(w, h.logger, err)
		return
	}

	// Публикуем событие в очередь
	if h.publisher != nil {
		if err := h.publisher.PublishProcessPending(r.Context(), rec.ID); err != nil {
			h.logger.Warn("failed to publish process.pending", "process_id", rec.ID, "error", err)
		}
	}

	Created(w, ProcessFromDomain(*rec))
}

// GetProcess возвращает процесс по ID.
// GET /api/v1/processes/{id}
func (h *Handler) GetProcess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	rec, err := h.processRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "process not found") {
		return
	}

	Success(w, ProcessFromDomain(*rec))
}

// GetProgress возвращает последний снапшот прогресса процесса.
// GET /api/v1/processes/{id}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	rec, err := h.processRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "process not found") {
		return
	}

	// Снапшота нет, пока runner не взял процесс из очереди.
	if rec.Snapshot == nil {
		InvalidState(w, "process has no progress yet")
		return
	}

	Success(w, rec.Snapshot)
}

// ListProcessChildren возвращает дочерние процессы.
// GET /api/v1/processes/{id}/children
func (h *Handler) ListProcessChildren(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	// Проверяем, что процесс существует
	_, err = h.processRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "process not found") {
		return
	}

	children, err := h.processRepo.ListByParent(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ProcessResponse, len(children))
	for i, c := range children {
		result[i] = ProcessFromDomain(c)
	}

	List(w, result, len(result))
}

// ListProcessSignals возвращает журнал сигналов процесса.
// GET /api/v1/processes/{id}/signals
func (h *Handler) ListProcessSignals(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid process id")
		return
	}

	// Проверяем, что процесс существует
	_, err = h.processRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "process not found") {
		return
	}

	signals, err := h.signalRepo.ListByProcess(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]SignalResponse, len(signals))
	for i, s := range signals {
		result[i] = SignalFromRecord(s)
	}

	List(w, result, len(result))
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	var n int64
	if _, err := json.Number(s).Int64(); err == nil {
		n, _ = json.Number(s).Int64()
		return n
	}
	return defaultVal
}
