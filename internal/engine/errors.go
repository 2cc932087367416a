package engine

import "errors"

// Ошибки конфигурации маршрута. Фатальные, не ретраятся.
var (
	// ErrEmptyRoute — маршрут не содержит узлов.
	ErrEmptyRoute = errors.New("route has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNodeType — неизвестный тип узла.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrMissingDependency — узел ссылается в after на несуществующий узел.
	ErrMissingDependency = errors.New("node depends on unknown node")

	// ErrSelfDependency — узел зависит от самого себя.
	ErrSelfDependency = errors.New("node depends on itself")
)

// Ошибки вычисления выражений и времени выполнения.
var (
	// ErrUnsupportedOperator — неподдерживаемый оператор guard-выражения.
	// Ошибка конфигурации, не ретраится.
	ErrUnsupportedOperator = errors.New("unsupported guard operator")

	// ErrDeadlock — ни один узел не выполняется и не готов, процесс
	// не терминален. Маршрут с невыполнимой зависимостью или
	// согласованием, за которое никто не проголосует.
	ErrDeadlock = errors.New("workflow deadlock: no runnable nodes")

	// ErrAborted — выполнение прервано глобальным abort.
	ErrAborted = errors.New("workflow aborted")

	// ErrPrecheckRejected — pre-hook вернул невалидный precheck.
	ErrPrecheckRejected = errors.New("precheck rejected")
)

// RouteError — ошибка валидации маршрута с контекстом.
type RouteError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *RouteError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *RouteError) Unwrap() error {
	return e.Err
}

// NewRouteError создаёт новую ошибку валидации маршрута.
func NewRouteError(nodeID, field, message string, err error) *RouteError {
	return &RouteError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
