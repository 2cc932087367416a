package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestOutput(jsonMode bool) (*Output, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Output{jsonMode: jsonMode, w: buf, errW: &bytes.Buffer{}}, buf
}

func TestOutput_ProcessesTable(t *testing.T) {
	out, buf := newTestOutput(false)

	out.Processes([]ProcessResponse{
		{ID: "p-1", ProcessType: "handle_order", Status: "running", CreatedAt: "2026-08-30T10:00:00Z"},
		{ID: "p-2", ProcessType: "handle_order", Status: "completed", CreatedAt: "2026-08-30T11:00:00Z"},
	})

	got := buf.String()
	for _, want := range []string{"ID", "STATUS", "p-1", "running", "p-2", "completed"} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
}

func TestOutput_ProcessesJSON(t *testing.T) {
	out, buf := newTestOutput(true)

	out.Processes([]ProcessResponse{
		{ID: "p-1", ProcessType: "handle_order", Status: "running", CreatedAt: "2026-08-30T10:00:00Z"},
	})

	// В json-режиме на stdout уходит машиночитаемый список, не таблица.
	var procs []ProcessResponse
	if err := json.Unmarshal(buf.Bytes(), &procs); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(procs) != 1 || procs[0].ID != "p-1" {
		t.Errorf("unexpected JSON payload: %+v", procs)
	}
	if strings.Contains(buf.String(), "----") {
		t.Error("JSON output contains table separator")
	}
}

func TestOutput_ProcessDetailShowsMessage(t *testing.T) {
	out, buf := newTestOutput(false)

	out.ProcessDetail(&ProcessResponse{
		ID: "p-1", ProcessType: "handle_order", Status: "failed",
		StatusMessage: "node B failed", CreatedAt: "2026-08-30T10:00:00Z",
	})

	if !strings.Contains(buf.String(), "node B failed") {
		t.Errorf("detail output missing status message:\n%s", buf.String())
	}
}

func TestOutput_SchedulesFormatsInterval(t *testing.T) {
	out, buf := newTestOutput(false)

	out.Schedules([]ScheduleResponse{
		{ID: "s-1", ProcessType: "handle_order", IntervalSec: 300, Enabled: true},
		{ID: "s-2", ProcessType: "handle_order", CronExpr: "0 * * * *", Enabled: false},
	})

	got := buf.String()
	if !strings.Contains(got, "300s") {
		t.Errorf("interval not rendered as seconds:\n%s", got)
	}
	if !strings.Contains(got, "0 * * * *") {
		t.Errorf("cron expression missing:\n%s", got)
	}
}

func TestOutput_SnapshotAlwaysJSON(t *testing.T) {
	// Снапшот выводится как JSON даже в табличном режиме.
	out, buf := newTestOutput(false)

	out.Snapshot(map[string]any{"process_id": "p-1", "steps": []any{}})

	var snap map[string]any
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v\n%s", err, buf.String())
	}
	if snap["process_id"] != "p-1" {
		t.Errorf("unexpected snapshot payload: %+v", snap)
	}
}

func TestFormatInterval(t *testing.T) {
	if got := formatInterval(0); got != "" {
		t.Errorf("formatInterval(0) = %q, want empty", got)
	}
	if got := formatInterval(60); got != "60s" {
		t.Errorf("formatInterval(60) = %q, want 60s", got)
	}
}
