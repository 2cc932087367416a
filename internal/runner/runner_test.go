package runner

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	r := New(Config{})

	if r.active == nil {
		t.Error("active should be initialized")
	}
	if r.pollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, r.pollInterval)
	}
	if r.batchSize != defaultBatchSize {
		t.Errorf("expected default batch size %d, got %d", defaultBatchSize, r.batchSize)
	}
}

func TestNew_CustomConfig(t *testing.T) {
	r := New(Config{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
	})

	if r.pollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", r.pollInterval)
	}
	if r.batchSize != 50 {
		t.Errorf("expected batch size 50, got %d", r.batchSize)
	}
}

func TestRunner_ActiveProcesses(t *testing.T) {
	r := New(Config{})

	id := uuid.New()

	// Initially no active processes
	if r.ActiveCount() != 0 {
		t.Error("should have no active processes initially")
	}
	if r.isActive(id) {
		t.Error("process should not be active initially")
	}

	// Add active process
	if err := r.addActive(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.ActiveCount() != 1 {
		t.Error("should have 1 active process")
	}
	if !r.isActive(id) {
		t.Error("process should be active")
	}

	// Try to add same process again
	if err := r.addActive(id); err != ErrProcessAlreadyActive {
		t.Errorf("expected ErrProcessAlreadyActive, got %v", err)
	}

	// Remove active process
	r.removeActive(id)

	if r.ActiveCount() != 0 {
		t.Error("should have no active processes after removal")
	}
	if r.isActive(id) {
		t.Error("process should not be active after removal")
	}
}

func TestRunner_ToPayloadMap(t *testing.T) {
	m := toPayloadMap(struct {
		Actor    string `json:"actor"`
		Decision string `json:"decision"`
	}{Actor: "alice", Decision: "approved"})

	if m["actor"] != "alice" {
		t.Errorf("expected actor alice, got %v", m["actor"])
	}
	if m["decision"] != "approved" {
		t.Errorf("expected decision approved, got %v", m["decision"])
	}

	if toPayloadMap(nil) != nil {
		t.Error("nil payload should produce nil map")
	}
}
