package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

func handlerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRuntime() *Runtime {
	return New(Config{
		Caller: NewCaller(CallerConfig{
			MaxAttempts:    1,
			AttemptTimeout: time.Second,
		}),
	})
}

func simpleRoute() domain.Route {
	return domain.Route{
		{ID: "A", Type: domain.NodeHandlerHTTP,
			Action: &domain.ActionSpec{Handler: "crm", Path: "/do"}},
	}
}

func TestRuntime_StartWithRegisteredRoute(t *testing.T) {
	srv := handlerServer(t)
	rt := testRuntime()

	err := rt.RegisterRoute("purchase-approval", &RouteDef{
		Route:           simpleRoute(),
		HandlerBaseURLs: map[string]string{"crm": srv.URL},
	})
	if err != nil {
		t.Fatalf("RegisterRoute failed: %v", err)
	}

	// Вход без inline-маршрута — маршрут берётся из реестра
	handle, err := rt.Start(&domain.StartInput{ProcessType: "purchase-approval"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap, err := handle.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.StatusMessage)
	}
}

func TestRuntime_UnknownProcessType(t *testing.T) {
	rt := testRuntime()
	_, err := rt.Start(&domain.StartInput{ProcessType: "ghost"})
	if !errors.Is(err, ErrUnknownProcessType) {
		t.Fatalf("expected ErrUnknownProcessType, got %v", err)
	}
}

func TestRuntime_InvalidRouteRejected(t *testing.T) {
	rt := testRuntime()
	err := rt.RegisterRoute("bad", &RouteDef{
		Route: domain.Route{{ID: "A", Type: "magic"}},
	})
	if err == nil {
		t.Fatal("invalid route must be rejected at registration")
	}
}

func TestRuntime_ProgressFromStoreAfterFinish(t *testing.T) {
	srv := handlerServer(t)
	rt := testRuntime()

	handle, err := rt.Start(&domain.StartInput{
		ProcessType:     "purchase-approval",
		Route:           simpleRoute(),
		HandlerBaseURLs: map[string]string{"crm": srv.URL},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := handle.Result(context.Background()); err != nil {
		t.Fatalf("Result failed: %v", err)
	}

	// Завершённый процесс выгружен из памяти, прогресс читается из Store
	deadline := time.Now().Add(time.Second)
	for {
		snap, err := rt.Progress(handle.ID())
		if err != nil {
			t.Fatalf("Progress failed: %v", err)
		}
		if snap.Status == domain.ProcessCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("final checkpoint not visible, status %s", snap.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Сигнал в завершённый процесс отклоняется
	err = rt.SignalApproval(handle.ID(), &domain.ApprovalSignal{
		NodeID: "A", Actor: "alice", Decision: "approve",
	})
	if err == nil {
		t.Error("signal to a finished process should fail")
	}
}

func TestRuntime_ProgressUnknownProcess(t *testing.T) {
	rt := testRuntime()
	_, err := rt.Progress("missing")
	if !errors.Is(err, ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound, got %v", err)
	}
}

func TestRuntime_ChildProcess(t *testing.T) {
	srv := handlerServer(t)
	rt := testRuntime()

	if err := rt.RegisterRoute("sub-flow", &RouteDef{
		Route:           simpleRoute(),
		HandlerBaseURLs: map[string]string{"crm": srv.URL},
	}); err != nil {
		t.Fatalf("RegisterRoute failed: %v", err)
	}

	parentRoute := domain.Route{
		{ID: "sub", Type: domain.NodeChildStart,
			Child: &domain.ChildSpec{ProcessType: "sub-flow"}},
	}
	handle, err := rt.Start(&domain.StartInput{
		ProcessType: "parent-flow",
		Route:       parentRoute,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap, err := handle.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if snap.Status != domain.ProcessCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.StatusMessage)
	}
	childID := snap.Context.Steps["sub"].ChildID
	if childID == "" {
		t.Fatal("child ID not recorded in parent context")
	}

	// Прогресс ребёнка доступен по его ID
	deadline := time.Now().Add(time.Second)
	for {
		childSnap, err := rt.Progress(childID)
		if err == nil && childSnap.Status == domain.ProcessCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("child progress not available: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntime_DepthLimit(t *testing.T) {
	rt := New(Config{MaxDepth: 2})
	_, err := rt.Start(&domain.StartInput{
		ProcessType: "deep",
		Route:       simpleRoute(),
		Depth:       3,
	})
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
}

func TestRuntime_StopAbortsActive(t *testing.T) {
	rt := testRuntime()

	// Процесс с бесконечным ожиданием события
	handle, err := rt.Start(&domain.StartInput{
		ProcessType: "waiting",
		Route: domain.Route{
			{ID: "W", Type: domain.NodeEventWait, EventName: "never"},
		},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	snap, err := handle.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if snap.Status != domain.ProcessFailed {
		t.Errorf("stopped process should be failed, got %s", snap.Status)
	}

	// Новые процессы после остановки не принимаются
	if _, err := rt.Start(&domain.StartInput{ProcessType: "waiting", Route: simpleRoute()}); !errors.Is(err, ErrRuntimeStopped) {
		t.Errorf("expected ErrRuntimeStopped, got %v", err)
	}
}
