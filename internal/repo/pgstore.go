package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Procedura/internal/domain"
)

const snapshotSaveTimeout = 5 * time.Second

// PGStore — персистентность чекпоинтов поверх ProcessRepo.
// Реализует runtime.Store.
type PGStore struct {
	processes *ProcessRepo
}

// NewPGStore создаёт PGStore.
func NewPGStore(processes *ProcessRepo) *PGStore {
	return &PGStore{processes: processes}
}

// SaveSnapshot сохраняет чекпоинт процесса. Вызывается движком на
// каждом переходе, поэтому работает с собственным коротким таймаутом,
// а не с контекстом процесса (abort процесса не должен терять
// финальный чекпоинт).
func (s *PGStore) SaveSnapshot(snap *domain.ProgressSnapshot) error {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
	defer cancel()
	return s.processes.SaveSnapshot(ctx, id, snap)
}

// LoadSnapshot возвращает последний чекпоинт процесса.
func (s *PGStore) LoadSnapshot(idStr string) (*domain.ProgressSnapshot, bool) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
	defer cancel()

	rec, err := s.processes.GetByID(ctx, id)
	if err != nil || rec.Snapshot == nil {
		return nil, false
	}
	return rec.Snapshot, true
}

// EnsureRecord создаёт запись процесса, если её ещё нет: процессы,
// запущенные как дочерние, впервые появляются в БД через чекпоинт.
func (s *PGStore) EnsureRecord(ctx context.Context, rec *domain.ProcessRecord) error {
	err := s.processes.Create(ctx, rec)
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}
