package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

// fakeHost — тестовый хост: вызовы записываются, ответы программируются.
type fakeHost struct {
	mu    sync.Mutex
	calls []*CallRequest

	// respond подменяет ответ на вызов; nil — ответ 200 {"ok": true}.
	respond func(req *CallRequest) (*CallResult, error)

	// child подменяет результат дочернего процесса.
	child func(input *domain.StartInput) (*ChildResult, error)
}

func (h *fakeHost) Call(ctx context.Context, req *CallRequest) (*CallResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	h.mu.Lock()
	h.calls = append(h.calls, req)
	h.mu.Unlock()
	if h.respond != nil {
		return h.respond(req)
	}
	return &CallResult{StatusCode: 200, Body: map[string]any{"ok": true}}, nil
}

func (h *fakeHost) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (h *fakeHost) StartChild(ctx context.Context, input *domain.StartInput) (ChildHandle, error) {
	if h.child == nil {
		return nil, errors.New("no child factory configured")
	}
	res, err := h.child(input)
	if err != nil {
		return nil, err
	}
	return &fakeChildHandle{result: res}, nil
}

func (h *fakeHost) Persist(*domain.ProgressSnapshot) {}

func (h *fakeHost) Now() time.Time { return time.Now() }

func (h *fakeHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *fakeHost) callURLs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	urls := make([]string, 0, len(h.calls))
	for _, c := range h.calls {
		urls = append(urls, c.URL)
	}
	return urls
}

type fakeChildHandle struct {
	result *ChildResult
}

func (c *fakeChildHandle) ID() string { return c.result.ID }

func (c *fakeChildHandle) Await(ctx context.Context) (*ChildResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return c.result, nil
}

type runResult struct {
	snap *domain.ProgressSnapshot
	err  error
}

// startProcess запускает процесс в горутине и возвращает канал результата.
func startProcess(t *testing.T, input *domain.StartInput, host Host) (*Process, <-chan runResult) {
	t.Helper()
	p, err := New("test-process", input, host, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	done := make(chan runResult, 1)
	go func() {
		snap, err := p.Run(context.Background())
		done <- runResult{snap, err}
	}()
	return p, done
}

// waitDone ждёт завершения процесса с таймаутом.
func waitDone(t *testing.T, done <-chan runResult) *domain.ProgressSnapshot {
	t.Helper()
	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Run failed: %v", res.err)
		}
		return res.snap
	case <-time.After(3 * time.Second):
		t.Fatal("process did not finish in time")
		return nil
	}
}

// waitStep ждёт, пока узел не перейдёт в нужный статус.
func waitStep(t *testing.T, p *Process, id string, status domain.NodeStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := p.Progress()
		if sv := snap.Context.Steps[id]; sv != nil && sv.Status == status {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("node %s did not reach status %s", id, status)
}

func baseInput(route domain.Route, doc map[string]any) *domain.StartInput {
	return &domain.StartInput{
		ProcessType:     "purchase-approval",
		Document:        doc,
		Route:           route,
		HandlerBaseURLs: map[string]string{"crm": "http://crm.local"},
	}
}

func TestProcess_LinearApprovalFlow(t *testing.T) {
	// A(handler) → B(approval 2-из-3) → C(handler)
	route := domain.Route{
		httpNode("A"),
		{ID: "B", Type: domain.NodeApprovalKofN, After: []string{"A"},
			K: 2, Members: []string{"alice", "bob", "carol"}},
		httpNode("C", "B"),
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, map[string]any{"cost": 100}), host)

	waitStep(t, p, "B", domain.NodeRunning)
	p.HandleApproval(&domain.ApprovalSignal{NodeID: "B", Actor: "alice", Decision: "approve"})
	p.HandleApproval(&domain.ApprovalSignal{NodeID: "B", Actor: "bob", Decision: "approved"})

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.StatusMessage)
	}
	if snap.Context.Steps["B"].Outcome != OutcomeApproved {
		t.Errorf("expected approved outcome, got %s", snap.Context.Steps["B"].Outcome)
	}
	if snap.Context.Steps["C"].Status != domain.NodeDone {
		t.Errorf("node C should have run, got %s", snap.Context.Steps["C"].Status)
	}
	if snap.FinalDecision != OutcomeApproved {
		t.Errorf("expected final decision approved, got %s", snap.FinalDecision)
	}
	if host.callCount() != 2 {
		t.Errorf("expected 2 handler calls, got %d", host.callCount())
	}
}

func TestProcess_EarlyVotesCount(t *testing.T) {
	// Голоса, пришедшие до старта approval-узла, учитываются
	route := domain.Route{
		{ID: "wait", Type: domain.NodeTimerDelay, Ms: 30},
		{ID: "B", Type: domain.NodeApprovalKofN, After: []string{"wait"},
			K: 1, Members: []string{"alice"}},
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, nil), host)

	// Голос во время таймера, до запуска B
	p.HandleApproval(&domain.ApprovalSignal{NodeID: "B", Actor: "alice", Decision: "approve"})

	snap := waitDone(t, done)
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestProcess_Rejection(t *testing.T) {
	route := domain.Route{
		httpNode("A"),
		{ID: "B", Type: domain.NodeApprovalKofN, After: []string{"A"},
			K: 2, Members: []string{"alice", "bob"}},
		httpNode("C", "B"),
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, nil), host)

	waitStep(t, p, "B", domain.NodeRunning)
	p.HandleApproval(&domain.ApprovalSignal{
		NodeID: "B", Actor: "bob", Decision: "reject", Comment: "over budget",
	})

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessRejected {
		t.Fatalf("expected rejected, got %s", snap.Status)
	}
	if snap.Abort == nil || snap.Abort.Reason != domain.AbortApprovalDecision {
		t.Fatalf("expected approval_decision abort, got %+v", snap.Abort)
	}
	if snap.Abort.Actor != "bob" || snap.Abort.Comment != "over budget" {
		t.Errorf("abort should carry actor and comment: %+v", snap.Abort)
	}
	// Узел после отклонённого согласования не выполняется
	if snap.Context.Steps["C"].Status != domain.NodeSkipped {
		t.Errorf("node C should be skipped, got %s", snap.Context.Steps["C"].Status)
	}
	if snap.Context.Steps["C"].SkipReason != domain.SkipWorkflowAborted {
		t.Errorf("expected workflow_aborted, got %s", snap.Context.Steps["C"].SkipReason)
	}
	if !strings.Contains(snap.StatusMessage, "bob") {
		t.Errorf("status message should name the actor: %q", snap.StatusMessage)
	}
}

func TestProcess_NeedsChanges(t *testing.T) {
	route := domain.Route{
		{ID: "B", Type: domain.NodeApprovalKofN, K: 1, Members: []string{"alice"}},
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, nil), host)

	waitStep(t, p, "B", domain.NodeRunning)
	p.HandleApproval(&domain.ApprovalSignal{
		NodeID: "B", Actor: "alice", Decision: "changes_requested", Comment: "fix totals",
	})

	snap := waitDone(t, done)
	if snap.Status != domain.ProcessNeedsChanges {
		t.Fatalf("expected needs_changes, got %s", snap.Status)
	}
}

func TestProcess_InvalidSignalsDropped(t *testing.T) {
	route := domain.Route{
		{ID: "B", Type: domain.NodeApprovalKofN, K: 1, Members: []string{"alice"}},
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, nil), host)
	waitStep(t, p, "B", domain.NodeRunning)

	// Негативное решение без комментария — отброшено
	p.HandleApproval(&domain.ApprovalSignal{NodeID: "B", Actor: "alice", Decision: "reject"})
	// Неизвестное решение — отброшено
	p.HandleApproval(&domain.ApprovalSignal{NodeID: "B", Actor: "alice", Decision: "maybe"})
	// Неизвестный узел — отброшено
	p.HandleApproval(&domain.ApprovalSignal{NodeID: "ghost", Actor: "alice", Decision: "approve"})

	if p.Progress().LastSignalError == "" {
		t.Error("dropped signals should be visible in last_signal_error")
	}
	if p.Status() != domain.ProcessRunning {
		t.Fatalf("invalid signals must not change process status, got %s", p.Status())
	}

	p.HandleApproval(&domain.ApprovalSignal{NodeID: "B", Actor: "alice", Decision: "approve"})
	snap := waitDone(t, done)
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestProcess_GuardSkip(t *testing.T) {
	// B охраняется doc.cost > 100, документ стартует с 50
	route := domain.Route{
		httpNode("A"),
		func() domain.NodeDef {
			n := httpNode("B", "A")
			n.Guard = &domain.Expr{Op: "gt", Left: path("doc.cost"), Right: 100}
			return n
		}(),
		httpNode("C", "B"),
	}
	host := &fakeHost{}
	_, done := startProcess(t, baseInput(route, map[string]any{"cost": 50}), host)

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if snap.Context.Steps["B"].Status != domain.NodeSkipped {
		t.Errorf("node B should be skipped, got %s", snap.Context.Steps["B"].Status)
	}
	if snap.Context.Steps["B"].SkipReason != domain.SkipGuardFalse {
		t.Errorf("expected guard_false, got %s", snap.Context.Steps["B"].SkipReason)
	}
	// Пропуск удовлетворяет зависимость: C выполняется
	if snap.Context.Steps["C"].Status != domain.NodeDone {
		t.Errorf("node C should have run, got %s", snap.Context.Steps["C"].Status)
	}
	if host.callCount() != 2 {
		t.Errorf("expected calls for A and C only, got %d", host.callCount())
	}
}

func TestProcess_GuardSkipRunsPostHook(t *testing.T) {
	// Post hook выполняется и для пропущенного по guard узла,
	// step.status в метаданных несёт skipped
	route := domain.Route{
		func() domain.NodeDef {
			n := httpNode("B")
			n.Guard = &domain.Expr{Op: "gt", Left: path("doc.cost"), Right: 100}
			n.Post = &domain.HookSpec{
				Action: domain.ActionSpec{
					Handler: "crm",
					Path:    "/notify",
					Payload: map[string]any{"status": "{{step.status}}"},
				},
			}
			return n
		}(),
	}
	host := &fakeHost{}
	_, done := startProcess(t, baseInput(route, map[string]any{"cost": 50}), host)

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if snap.Context.Steps["B"].SkipReason != domain.SkipGuardFalse {
		t.Errorf("expected guard_false, got %s", snap.Context.Steps["B"].SkipReason)
	}

	host.mu.Lock()
	calls := append([]*CallRequest(nil), host.calls...)
	host.mu.Unlock()

	// Действие узла не выполнялось, единственный вызов — post hook
	if len(calls) != 1 || !strings.HasSuffix(calls[0].URL, "/notify") {
		t.Fatalf("expected a single /notify call, got %v", host.callURLs())
	}
	payload := calls[0].Payload.(map[string]any)
	if payload["status"] != string(domain.NodeSkipped) {
		t.Errorf("hook should see skipped status, got %v", payload["status"])
	}
}

func TestProcess_Reactivation(t *testing.T) {
	// G пропускается по guard, DOC_UPDATE поднимает cost до порога —
	// G возвращается в pending и выполняется, пока C ещё не стартовал
	guarded := httpNode("G")
	guarded.Guard = &domain.Expr{Op: "gt", Left: path("doc.cost"), Right: 100}
	route := domain.Route{
		guarded,
		{ID: "W", Type: domain.NodeEventWait, EventName: "resume"},
		httpNode("C", "G", "W"),
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, map[string]any{"cost": 50}), host)

	waitStep(t, p, "G", domain.NodeSkipped)
	p.HandleEvent(&domain.EventSignal{
		EventName: domain.EventDocUpdate,
		Data:      map[string]any{"cost": float64(200)},
	})
	waitStep(t, p, "G", domain.NodeDone)
	p.HandleEvent(&domain.EventSignal{EventName: "resume", Data: map[string]any{}})

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	// Документ обновлён патчем
	if snap.Context.Doc["cost"] != float64(200) {
		t.Errorf("doc patch not applied: %v", snap.Context.Doc["cost"])
	}
	// G выполнился после реактивации
	if host.callCount() != 2 {
		t.Errorf("expected calls for G and C, got %d: %v", host.callCount(), host.callURLs())
	}
}

func TestProcess_NoReactivationAfterDownstreamProgress(t *testing.T) {
	// Потребитель ветки уже выполнился — реактивация запрещена
	guarded := httpNode("G")
	guarded.Guard = &domain.Expr{Op: "gt", Left: path("doc.cost"), Right: 100}
	route := domain.Route{
		guarded,
		httpNode("C", "G"),
		{ID: "W", Type: domain.NodeEventWait, EventName: "resume"},
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, map[string]any{"cost": 50}), host)

	waitStep(t, p, "C", domain.NodeDone)
	p.HandleEvent(&domain.EventSignal{
		EventName: domain.EventDocUpdate,
		Data:      map[string]any{"cost": float64(200)},
	})
	p.HandleEvent(&domain.EventSignal{EventName: "resume", Data: map[string]any{}})

	snap := waitDone(t, done)

	if snap.Context.Steps["G"].Status != domain.NodeSkipped {
		t.Errorf("G must stay skipped after downstream progressed, got %s",
			snap.Context.Steps["G"].Status)
	}
}

func TestProcess_TemplatePayload(t *testing.T) {
	route := domain.Route{
		{ID: "A", Type: domain.NodeHandlerHTTP, Action: &domain.ActionSpec{
			Handler: "crm",
			Path:    "/orders/{{doc.id}}",
			Payload: map[string]any{
				"amount": "{{doc.cost}}",
				"label":  "cost={{doc.cost}}",
			},
		}},
	}
	host := &fakeHost{}
	_, done := startProcess(t, baseInput(route, map[string]any{
		"id":   "ord-7",
		"cost": float64(100),
	}), host)

	snap := waitDone(t, done)
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}

	host.mu.Lock()
	req := host.calls[0]
	host.mu.Unlock()

	if req.URL != "http://crm.local/orders/ord-7" {
		t.Errorf("unexpected URL: %s", req.URL)
	}
	payload := req.Payload.(map[string]any)
	// Цельный токен сохраняет числовой тип
	if payload["amount"] != float64(100) {
		t.Errorf("expected numeric amount, got %T(%v)", payload["amount"], payload["amount"])
	}
	if payload["label"] != "cost=100" {
		t.Errorf("unexpected label: %v", payload["label"])
	}
}

func TestProcess_SetVars(t *testing.T) {
	route := domain.Route{
		func() domain.NodeDef {
			n := httpNode("A")
			n.SetVars = map[string]any{"ticket": "{{steps.A.result.body.ok}}"}
			return n
		}(),
	}
	host := &fakeHost{}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)
	if snap.Context.Vars["ticket"] != true {
		t.Errorf("set_vars should see the node result, got %v", snap.Context.Vars["ticket"])
	}
}

func TestProcess_GateRejects(t *testing.T) {
	route := domain.Route{
		{ID: "score", Type: domain.NodeGateHTTP,
			Action:   &domain.ActionSpec{Handler: "crm", Path: "/score"},
			PassWhen: &domain.Expr{Op: "gte", Left: path("result.body.score"), Right: 50}},
		httpNode("C", "score"),
	}
	host := &fakeHost{
		respond: func(req *CallRequest) (*CallResult, error) {
			return &CallResult{StatusCode: 200, Body: map[string]any{"score": float64(10)}}, nil
		},
	}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessRejected {
		t.Fatalf("expected rejected, got %s", snap.Status)
	}
	if snap.Abort == nil || snap.Abort.Reason != domain.AbortGateFailed {
		t.Fatalf("expected gate_condition_failed abort, got %+v", snap.Abort)
	}
	// Сам gate-узел done: вызов состоялся, результат записан
	if snap.Context.Steps["score"].Status != domain.NodeDone {
		t.Errorf("gate node should be done, got %s", snap.Context.Steps["score"].Status)
	}
	if snap.Context.Steps["C"].Status != domain.NodeSkipped {
		t.Errorf("node C should be skipped, got %s", snap.Context.Steps["C"].Status)
	}
}

func TestProcess_OptionalGatePasses(t *testing.T) {
	route := domain.Route{
		{ID: "score", Type: domain.NodeGateHTTP, Optional: true,
			Action:   &domain.ActionSpec{Handler: "crm", Path: "/score"},
			PassWhen: &domain.Expr{Op: "gte", Left: path("result.body.score"), Right: 50}},
		httpNode("C", "score"),
	}
	host := &fakeHost{
		respond: func(req *CallRequest) (*CallResult, error) {
			return &CallResult{StatusCode: 200, Body: map[string]any{"score": float64(10)}}, nil
		},
	}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("optional gate failure must not abort, got %s", snap.Status)
	}
}

func TestProcess_StepFailureAborts(t *testing.T) {
	route := domain.Route{
		{ID: "A", Type: domain.NodeHandlerHTTP,
			Action: &domain.ActionSpec{Handler: "crm", Path: "/boom"}},
		httpNode("C", "A"),
	}
	host := &fakeHost{
		respond: func(req *CallRequest) (*CallResult, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if snap.Abort == nil || snap.Abort.Reason != domain.AbortStepFailed {
		t.Fatalf("expected step_failed abort, got %+v", snap.Abort)
	}
	if snap.Failure == nil || snap.Failure.NodeID != "A" {
		t.Fatalf("failure metadata lost: %+v", snap.Failure)
	}
	if snap.Context.Steps["A"].Status != domain.NodeFailed {
		t.Errorf("node A should be failed, got %s", snap.Context.Steps["A"].Status)
	}
	if snap.Context.Steps["C"].Status != domain.NodeSkipped {
		t.Errorf("node C should be skipped, got %s", snap.Context.Steps["C"].Status)
	}
}

func TestProcess_Deadlock(t *testing.T) {
	// Цикл A↔B проходит валидацию, но никогда не становится ready
	route := domain.Route{
		httpNode("A", "B"),
		httpNode("B", "A"),
	}
	host := &fakeHost{}
	p, err := New("deadlocked", baseInput(route, nil), host, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	snap, err := p.Run(context.Background())
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("expected ErrDeadlock, got %v", err)
	}
	if snap.Status != domain.ProcessFailed {
		t.Errorf("expected failed, got %s", snap.Status)
	}
}

func TestProcess_Timers(t *testing.T) {
	route := domain.Route{
		{ID: "pause", Type: domain.NodeTimerDelay, Ms: 10},
		{ID: "past", Type: domain.NodeTimerUntil, After: []string{"pause"},
			At: "2020-01-01T00:00:00Z"},
	}
	host := &fakeHost{}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	// Момент в прошлом завершается немедленно
	if snap.Context.Steps["past"].Status != domain.NodeDone {
		t.Errorf("past timer should be done, got %s", snap.Context.Steps["past"].Status)
	}
}

func TestProcess_EventDeduplication(t *testing.T) {
	route := domain.Route{
		{ID: "W1", Type: domain.NodeEventWait, EventName: "pay"},
		{ID: "W2", Type: domain.NodeEventWait, EventName: "pay", After: []string{"W1"}},
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, nil), host)

	// Дубликат по event_id — одно событие в очереди
	p.HandleEvent(&domain.EventSignal{EventName: "pay", EventID: "evt-1", Data: map[string]any{"n": float64(1)}})
	p.HandleEvent(&domain.EventSignal{EventName: "pay", EventID: "evt-1", Data: map[string]any{"n": float64(1)}})

	waitStep(t, p, "W1", domain.NodeDone)
	if p.Status() != domain.ProcessRunning {
		t.Fatal("W2 should still be waiting, duplicate must not satisfy it")
	}

	p.HandleEvent(&domain.EventSignal{EventName: "pay", EventID: "evt-2", Data: map[string]any{"n": float64(2)}})
	snap := waitDone(t, done)
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
}

func TestProcess_ChildSuccess(t *testing.T) {
	route := domain.Route{
		{ID: "sub", Type: domain.NodeChildStart, Child: &domain.ChildSpec{
			ProcessType: "sub-flow",
			Document:    map[string]any{"parent_cost": "{{doc.cost}}"},
		}},
	}
	var gotInput *domain.StartInput
	host := &fakeHost{
		child: func(input *domain.StartInput) (*ChildResult, error) {
			gotInput = input
			return &ChildResult{ID: "child-1", Status: domain.ProcessCompleted}, nil
		},
	}
	_, done := startProcess(t, baseInput(route, map[string]any{"cost": float64(100)}), host)

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if snap.Context.Steps["sub"].ChildID != "child-1" {
		t.Errorf("child ID not recorded: %q", snap.Context.Steps["sub"].ChildID)
	}
	// Документ ребёнка рендерится против контекста родителя
	if gotInput.Document["parent_cost"] != float64(100) {
		t.Errorf("child document not rendered: %v", gotInput.Document)
	}
	if gotInput.Depth != 1 {
		t.Errorf("child depth should grow, got %d", gotInput.Depth)
	}
}

func TestProcess_ChildFailureAborts(t *testing.T) {
	route := domain.Route{
		{ID: "sub", Type: domain.NodeChildStart, Child: &domain.ChildSpec{ProcessType: "sub-flow"}},
		httpNode("C", "sub"),
	}
	host := &fakeHost{
		child: func(input *domain.StartInput) (*ChildResult, error) {
			return &ChildResult{ID: "child-1", Status: domain.ProcessFailed,
				StatusMessage: "inner step failed"}, nil
		},
	}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if snap.Abort == nil || snap.Abort.Reason != domain.AbortChildFailed {
		t.Fatalf("expected child_process_failed abort, got %+v", snap.Abort)
	}
	if snap.Context.Steps["C"].Status != domain.NodeSkipped {
		t.Errorf("node C should be skipped, got %s", snap.Context.Steps["C"].Status)
	}
}

func TestProcess_HooksEscalation(t *testing.T) {
	// Обязательный pre hook с отказом precheck проваливает шаг
	route := domain.Route{
		func() domain.NodeDef {
			n := httpNode("A")
			n.Pre = &domain.HookSpec{
				Action:   domain.ActionSpec{Handler: "crm", Path: "/precheck"},
				Required: true,
			}
			return n
		}(),
	}
	host := &fakeHost{
		respond: func(req *CallRequest) (*CallResult, error) {
			if strings.HasSuffix(req.URL, "/precheck") {
				return &CallResult{StatusCode: 200, Body: map[string]any{
					"precheck": map[string]any{"ok": false, "reason": "document incomplete"},
				}}, nil
			}
			return &CallResult{StatusCode: 200, Body: map[string]any{"ok": true}}, nil
		},
	}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)

	if snap.Status != domain.ProcessFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if snap.Context.Steps["A"].Status != domain.NodeFailed {
		t.Errorf("node A should be failed, got %s", snap.Context.Steps["A"].Status)
	}
	if !strings.Contains(snap.Failure.Error, "document incomplete") {
		t.Errorf("precheck reason lost: %q", snap.Failure.Error)
	}
}

func TestProcess_OptionalHookFailureIsSoft(t *testing.T) {
	route := domain.Route{
		func() domain.NodeDef {
			n := httpNode("A")
			n.Post = &domain.HookSpec{
				Action: domain.ActionSpec{Handler: "crm", Path: "/notify"},
			}
			return n
		}(),
	}
	host := &fakeHost{
		respond: func(req *CallRequest) (*CallResult, error) {
			if strings.HasSuffix(req.URL, "/notify") {
				return nil, fmt.Errorf("notify service down")
			}
			return &CallResult{StatusCode: 200, Body: map[string]any{"ok": true}}, nil
		},
	}
	_, done := startProcess(t, baseInput(route, nil), host)

	snap := waitDone(t, done)
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("optional hook failure must not fail the process, got %s", snap.Status)
	}
	if snap.Context.Steps["A"].Status != domain.NodeDone {
		t.Errorf("node A should be done, got %s", snap.Context.Steps["A"].Status)
	}
}

func TestProcess_ProgressDuringRun(t *testing.T) {
	route := domain.Route{
		{ID: "B", Type: domain.NodeApprovalKofN, K: 1, Members: []string{"alice"}},
	}
	host := &fakeHost{}
	p, done := startProcess(t, baseInput(route, nil), host)
	waitStep(t, p, "B", domain.NodeRunning)

	snap := p.Progress()
	if snap.Status != domain.ProcessRunning {
		t.Errorf("expected running, got %s", snap.Status)
	}
	if snap.Context.Steps["B"].Approval == nil {
		t.Error("progress should expose approval state")
	}

	// Снапшот — глубокая копия: мутация не влияет на процесс
	snap.Context.Doc["poisoned"] = true
	if _, ok := p.Progress().Context.Doc["poisoned"]; ok {
		t.Error("snapshot mutation leaked into the live context")
	}

	p.HandleApproval(&domain.ApprovalSignal{NodeID: "B", Actor: "alice", Decision: "approve"})
	waitDone(t, done)
}
