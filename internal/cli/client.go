package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ProcessResponse — процесс из API.
type ProcessResponse struct {
	ID             string `json:"id"`
	ProcessType    string `json:"process_type"`
	Status         string `json:"status"`
	StatusMessage  string `json:"status_message,omitempty"`
	ParentID       string `json:"parent_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// SignalResponse — запись журнала сигналов из API.
type SignalResponse struct {
	ID         string         `json:"id"`
	ProcessID  string         `json:"process_id"`
	Kind       string         `json:"kind"`
	EventID    string         `json:"event_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt string         `json:"received_at"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID            string         `json:"id"`
	ProcessType   string         `json:"process_type"`
	Name          string         `json:"name,omitempty"`
	CronExpr      string         `json:"cron_expr,omitempty"`
	IntervalSec   int            `json:"interval_sec,omitempty"`
	Timezone      string         `json:"timezone"`
	Enabled       bool           `json:"enabled"`
	NextDueAt     string         `json:"next_due_at,omitempty"`
	LastStartAt   string         `json:"last_start_at,omitempty"`
	LastProcessID string         `json:"last_process_id,omitempty"`
	Input         map[string]any `json:"input,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

// --- Request types ---

// StartProcessRequest — запуск процесса.
type StartProcessRequest struct {
	ProcessType     string            `json:"process_type"`
	Document        map[string]any    `json:"document,omitempty"`
	Context         map[string]any    `json:"context,omitempty"`
	Route           json.RawMessage   `json:"route,omitempty"`
	HandlerBaseURLs map[string]string `json:"handler_base_urls,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
}

// SubmitApprovalRequest — голос согласующего.
type SubmitApprovalRequest struct {
	NodeID   string `json:"node_id"`
	Actor    string `json:"actor"`
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

// SubmitEventRequest — внешнее событие.
type SubmitEventRequest struct {
	EventName string         `json:"event_name"`
	Data      map[string]any `json:"data,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	ProcessType string         `json:"process_type"`
	Name        string         `json:"name,omitempty"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
	Input       map[string]any `json:"input,omitempty"`
}

// UpdateScheduleRequest — обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string `json:"name,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// ListProcessesOpts — параметры фильтрации процессов.
type ListProcessesOpts struct {
	ProcessType string
	Status      string
	Limit       int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Procedura API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Processes ---

// ListProcesses возвращает список процессов с фильтрацией.
func (c *Client) ListProcesses(opts ListProcessesOpts) ([]ProcessResponse, error) {
	params := url.Values{}
	if opts.ProcessType != "" {
		params.Set("process_type", opts.ProcessType)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var procs []ProcessResponse
	err := c.list("/api/v1/processes", params, &procs)
	return procs, err
}

// StartProcess запускает процесс.
func (c *Client) StartProcess(req StartProcessRequest) (*ProcessResponse, error) {
	var proc ProcessResponse
	err := c.post("/api/v1/processes", req, &proc)
	return &proc, err
}

// GetProcess возвращает процесс по ID.
func (c *Client) GetProcess(id string) (*ProcessResponse, error) {
	var proc ProcessResponse
	err := c.get("/api/v1/processes/"+id, &proc)
	return &proc, err
}

// GetProgress возвращает снапшот прогресса процесса.
func (c *Client) GetProgress(id string) (map[string]any, error) {
	var snap map[string]any
	err := c.get("/api/v1/processes/"+id+"/progress", &snap)
	return snap, err
}

// ListChildren возвращает дочерние процессы.
func (c *Client) ListChildren(id string) ([]ProcessResponse, error) {
	var procs []ProcessResponse
	err := c.list("/api/v1/processes/"+id+"/children", nil, &procs)
	return procs, err
}

// ListSignals возвращает журнал сигналов процесса.
func (c *Client) ListSignals(id string) ([]SignalResponse, error) {
	var signals []SignalResponse
	err := c.list("/api/v1/processes/"+id+"/signals", nil, &signals)
	return signals, err
}

// SubmitApproval отправляет голос согласующего.
func (c *Client) SubmitApproval(id string, req SubmitApprovalRequest) error {
	return c.post("/api/v1/processes/"+id+"/approval", req, nil)
}

// SubmitEvent отправляет внешнее событие.
func (c *Client) SubmitEvent(id string, req SubmitEventRequest) error {
	return c.post("/api/v1/processes/"+id+"/events", req, nil)
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если processType не пустой — фильтрует.
func (c *Client) ListSchedules(processType string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if processType != "" {
		params.Set("process_type", processType)
	}

	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает schedule.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает schedule.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
