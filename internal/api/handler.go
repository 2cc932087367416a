package api

import (
	"log/slog"

	"github.com/shaiso/Procedura/internal/mq"
	"github.com/shaiso/Procedura/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	processRepo  *repo.ProcessRepo
	signalRepo   *repo.SignalRepo
	scheduleRepo *repo.ScheduleRepo
	publisher    *mq.Publisher
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	ProcessRepo  *repo.ProcessRepo
	SignalRepo   *repo.SignalRepo
	ScheduleRepo *repo.ScheduleRepo
	Publisher    *mq.Publisher
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		processRepo:  cfg.ProcessRepo,
		signalRepo:   cfg.SignalRepo,
		scheduleRepo: cfg.ScheduleRepo,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
	}
}
