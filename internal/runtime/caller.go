package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Procedura/internal/engine"
)

// Default configuration values.
const (
	defaultAttemptTimeout = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// Caller выполняет side-effect вызовы внешних обработчиков по HTTP.
//
// Каждая попытка ограничена фиксированным таймаутом; инфраструктурные
// ошибки и ответы 5xx ретраятся с exponential backoff до исчерпания
// попыток. Ответы 4xx не ретраятся: это детерминированный отказ
// обработчика, повтор не поможет.
type Caller struct {
	client         *http.Client
	attemptTimeout time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// CallerConfig — конфигурация Caller. Нулевые значения заменяются
// значениями по умолчанию.
type CallerConfig struct {
	Client         *http.Client
	AttemptTimeout time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewCaller создаёт Caller.
func NewCaller(cfg CallerConfig) *Caller {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	c := &Caller{
		client:         client,
		attemptTimeout: cfg.AttemptTimeout,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = defaultAttemptTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.initialBackoff <= 0 {
		c.initialBackoff = defaultInitialBackoff
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = defaultMaxBackoff
	}
	return c
}

// Call выполняет вызов с ретраями. Возвращает результат последней
// попытки: ответы < 500 считаются результатом (в том числе 4xx — их
// интерпретация остаётся за узлом), 5xx после исчерпания попыток —
// ошибкой.
func (c *Caller) Call(ctx context.Context, req *engine.CallRequest) (*engine.CallResult, error) {
	var lastRes *engine.CallResult
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastRes, lastErr = c.attempt(ctx, req)
		if lastErr == nil && lastRes.StatusCode < 500 {
			return lastRes, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, lastErr)
	}
	return nil, fmt.Errorf("%w: HTTP %d after %d attempts",
		ErrHTTPRequest, lastRes.StatusCode, c.maxAttempts)
}

// attempt — одна попытка вызова с таймаутом.
func (c *Caller) attempt(ctx context.Context, req *engine.CallRequest) (*engine.CallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Payload != nil {
		bodyBytes, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Парсим body: пробуем JSON, иначе строка
	var parsed any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			parsed = string(respBody)
		}
	}

	return &engine.CallResult{
		StatusCode: resp.StatusCode,
		Body:       parsed,
	}, nil
}

// backoff — задержка перед попыткой attempt+1:
// delay = initial * 2^(attempt-1), ограничено maxBackoff.
func (c *Caller) backoff(attempt int) time.Duration {
	delay := c.initialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	if delay > c.maxBackoff {
		return c.maxBackoff
	}
	return delay
}
