package runtime

import (
	"sync"

	"github.com/shaiso/Procedura/internal/domain"
)

// Store — персистентность чекпоинтов прогресса.
//
// Runtime пишет снапшот на каждом чекпоинте движка (best-effort) и
// читает его для запросов прогресса по процессам, которых уже нет
// в памяти.
type Store interface {
	// SaveSnapshot сохраняет чекпоинт. Ошибка логируется, но не
	// останавливает исполнение.
	SaveSnapshot(snap *domain.ProgressSnapshot) error

	// LoadSnapshot возвращает последний чекпоинт процесса.
	LoadSnapshot(id string) (*domain.ProgressSnapshot, bool)
}

// MemoryStore — in-memory реализация Store для тестов и
// односерверных установок без БД.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.ProgressSnapshot
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*domain.ProgressSnapshot)}
}

// SaveSnapshot сохраняет чекпоинт в памяти.
func (s *MemoryStore) SaveSnapshot(snap *domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = snap
	return nil
}

// LoadSnapshot возвращает последний чекпоинт процесса.
func (s *MemoryStore) LoadSnapshot(id string) (*domain.ProgressSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}
