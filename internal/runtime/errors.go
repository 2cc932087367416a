package runtime

import "errors"

// Ошибки runtime.
var (
	// ErrUnknownProcessType — маршрут для типа процесса не зарегистрирован.
	ErrUnknownProcessType = errors.New("unknown process type")

	// ErrProcessNotFound — процесс не найден ни в памяти, ни в Store.
	ErrProcessNotFound = errors.New("process not found")

	// ErrProcessFinished — процесс уже завершён, сигналы не принимаются.
	ErrProcessFinished = errors.New("process already finished")

	// ErrDepthExceeded — превышена максимальная глубина вложенности
	// дочерних процессов.
	ErrDepthExceeded = errors.New("child process depth exceeded")

	// ErrRuntimeStopped — runtime остановлен.
	ErrRuntimeStopped = errors.New("runtime stopped")

	// ErrHTTPRequest — вызов обработчика завершился ошибкой.
	ErrHTTPRequest = errors.New("handler request failed")
)
