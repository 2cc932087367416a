package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SignalRepo — журнал входящих сигналов.
//
// Каждый доставленный сигнал записывается для аудита; уникальный индекс
// по (process_id, event_id) даёт дедупликацию событий на уровне БД —
// повторная доставка с тем же event_id возвращает ErrAlreadyExists.
type SignalRepo struct {
	pool *pgxpool.Pool
}

// NewSignalRepo создаёт новый SignalRepo.
func NewSignalRepo(pool *pgxpool.Pool) *SignalRepo {
	return &SignalRepo{pool: pool}
}

// SignalRecord — запись журнала сигналов.
type SignalRecord struct {
	// ID — идентификатор записи.
	ID uuid.UUID `json:"id"`

	// ProcessID — процесс-получатель.
	ProcessID uuid.UUID `json:"process_id"`

	// Kind — вид сигнала: approval или processEvent.
	Kind string `json:"kind"`

	// EventID — ключ дедупликации (только для событий).
	EventID string `json:"event_id,omitempty"`

	// Payload — тело сигнала.
	Payload map[string]any `json:"payload,omitempty"`

	// ReceivedAt — время приёма.
	ReceivedAt time.Time `json:"received_at"`
}

// Record записывает сигнал в журнал.
func (r *SignalRepo) Record(ctx context.Context, rec *SignalRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO signals (id, process_id, kind, event_id, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.ProcessID,
		rec.Kind,
		nullString(rec.EventID),
		payloadJSON,
		rec.ReceivedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// ListByProcess возвращает журнал сигналов процесса.
func (r *SignalRepo) ListByProcess(ctx context.Context, processID uuid.UUID) ([]SignalRecord, error) {
	query := `
		SELECT id, process_id, kind, event_id, payload, received_at
		FROM signals
		WHERE process_id = $1
		ORDER BY received_at ASC
	`
	rows, err := r.pool.Query(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var recs []SignalRecord
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanSignal(row pgx.Row) (*SignalRecord, error) {
	var rec SignalRecord
	var eventID *string
	var payloadJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.ProcessID,
		&rec.Kind,
		&eventID,
		&payloadJSON,
		&rec.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan signal: %w", err)
	}

	if eventID != nil {
		rec.EventID = *eventID
	}
	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	return &rec, nil
}
