package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Procedura/internal/domain"
)

// ProcessRepo — репозиторий для работы с процессами.
type ProcessRepo struct {
	pool *pgxpool.Pool
}

// NewProcessRepo создаёт новый ProcessRepo.
func NewProcessRepo(pool *pgxpool.Pool) *ProcessRepo {
	return &ProcessRepo{pool: pool}
}

// Create создаёт запись процесса.
func (r *ProcessRepo) Create(ctx context.Context, rec *domain.ProcessRecord) error {
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	query := `
		INSERT INTO processes (id, process_type, status, input, parent_id, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.ProcessType,
		rec.Status,
		inputJSON,
		rec.ParentID,
		nullString(rec.IdempotencyKey),
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

// GetByID возвращает процесс по ID.
func (r *ProcessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessRecord, error) {
	query := `
		SELECT id, process_type, status, status_message, input, snapshot,
		       parent_id, idempotency_key, started_at, finished_at, created_at
		FROM processes
		WHERE id = $1
	`
	return scanProcess(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает процесс по ключу идемпотентности:
// повторный запрос запуска с тем же ключом получает исходный процесс.
func (r *ProcessRepo) GetByIdempotencyKey(ctx context.Context, processType, key string) (*domain.ProcessRecord, error) {
	query := `
		SELECT id, process_type, status, status_message, input, snapshot,
		       parent_id, idempotency_key, started_at, finished_at, created_at
		FROM processes
		WHERE process_type = $1 AND idempotency_key = $2
	`
	return scanProcess(r.pool.QueryRow(ctx, query, processType, key))
}

// List возвращает список процессов с фильтрацией.
func (r *ProcessRepo) List(ctx context.Context, filter ProcessFilter) ([]domain.ProcessRecord, error) {
	query := `
		SELECT id, process_type, status, status_message, input, snapshot,
		       parent_id, idempotency_key, started_at, finished_at, created_at
		FROM processes
		WHERE ($1::text IS NULL OR process_type = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.ProcessType),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var recs []domain.ProcessRecord
	for rows.Next() {
		rec, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// ListByParent возвращает дочерние процессы.
func (r *ProcessRepo) ListByParent(ctx context.Context, parentID uuid.UUID) ([]domain.ProcessRecord, error) {
	query := `
		SELECT id, process_type, status, status_message, input, snapshot,
		       parent_id, idempotency_key, started_at, finished_at, created_at
		FROM processes
		WHERE parent_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var recs []domain.ProcessRecord
	for rows.Next() {
		rec, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// SaveSnapshot сохраняет чекпоинт прогресса и синхронизирует
// дублируемые колонки статуса. Upsert: дочерние процессы впервые
// появляются в БД именно через чекпоинт.
func (r *ProcessRepo) SaveSnapshot(ctx context.Context, id uuid.UUID, snap *domain.ProgressSnapshot) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO processes (id, process_type, status, status_message, snapshot,
		                       started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE
		SET snapshot = EXCLUDED.snapshot,
		    status = EXCLUDED.status,
		    status_message = EXCLUDED.status_message,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		id,
		snap.ProcessType,
		snap.Status,
		nullString(snap.StatusMessage),
		snapJSON,
		snap.StartedAt,
		snap.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ListUnfinished возвращает процессы без терминального статуса —
// кандидаты на восстановление после рестарта.
func (r *ProcessRepo) ListUnfinished(ctx context.Context, limit int) ([]domain.ProcessRecord, error) {
	query := `
		SELECT id, process_type, status, status_message, input, snapshot,
		       parent_id, idempotency_key, started_at, finished_at, created_at
		FROM processes
		WHERE status = 'running'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unfinished: %w", err)
	}
	defer rows.Close()

	var recs []domain.ProcessRecord
	for rows.Next() {
		rec, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// --- Helpers ---

// ProcessFilter — параметры фильтрации процессов.
type ProcessFilter struct {
	ProcessType string
	Status      domain.ProcessStatus
	Limit       int
	Offset      int
}

// scanProcess сканирует одну строку в ProcessRecord.
func scanProcess(row pgx.Row) (*domain.ProcessRecord, error) {
	var rec domain.ProcessRecord
	var inputJSON, snapJSON []byte
	var statusMessage, idempotencyKey *string

	err := row.Scan(
		&rec.ID,
		&rec.ProcessType,
		&rec.Status,
		&statusMessage,
		&inputJSON,
		&snapJSON,
		&rec.ParentID,
		&idempotencyKey,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan process: %w", err)
	}

	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if snapJSON != nil {
		if err := json.Unmarshal(snapJSON, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	if statusMessage != nil {
		rec.StatusMessage = *statusMessage
	}
	if idempotencyKey != nil {
		rec.IdempotencyKey = *idempotencyKey
	}

	return &rec, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
