package runner

import "errors"

// Ошибки runner.
var (
	// ErrProcessNotFound — процесс не найден в БД.
	ErrProcessNotFound = errors.New("process not found")

	// ErrProcessAlreadyActive — процесс уже выполняется этим runner.
	ErrProcessAlreadyActive = errors.New("process already being executed")

	// ErrProcessFinished — процесс уже в терминальном статусе.
	ErrProcessFinished = errors.New("process already finished")

	// ErrNoInput — у записи процесса нет сохранённого входа запуска.
	ErrNoInput = errors.New("process record has no start input")

	// ErrRunnerStopped — runner остановлен.
	ErrRunnerStopped = errors.New("runner stopped")
)
