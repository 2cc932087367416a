package engine

import (
	"context"
	"time"

	"github.com/shaiso/Procedura/internal/domain"
)

// CallRequest — запрос на side-effect вызов обработчика.
type CallRequest struct {
	// Method — HTTP-метод вызова.
	Method string
	// URL — полный адрес обработчика.
	URL string
	// Payload — тело запроса после подстановки шаблонов.
	Payload any
}

// CallResult — результат side-effect вызова.
type CallResult struct {
	// StatusCode — HTTP-статус ответа.
	StatusCode int
	// Body — распарсенное тело ответа.
	Body any
}

// ChildResult — терминальный результат дочернего процесса.
type ChildResult struct {
	ID            string
	Status        domain.ProcessStatus
	StatusMessage string
}

// ChildHandle — ручка запущенного дочернего процесса.
type ChildHandle interface {
	// ID возвращает идентификатор дочернего процесса.
	ID() string
	// Await блокируется до терминального статуса ребёнка или отмены ctx.
	Await(ctx context.Context) (*ChildResult, error)
}

// Host — контракт среды исполнения, против которого написан движок.
// Движок не делает сетевых вызовов и не спит сам: все side effects,
// таймеры и запуск дочерних процессов делегируются хосту.
type Host interface {
	// Call выполняет side-effect вызов. Ретраи и таймауты на попытку —
	// ответственность хоста; движку возвращается итоговый результат
	// либо ошибка после исчерпания попыток.
	Call(ctx context.Context, req *CallRequest) (*CallResult, error)

	// Sleep блокируется на d и прерывается отменой ctx.
	Sleep(ctx context.Context, d time.Duration) error

	// StartChild запускает вложенный процесс и возвращает ручку.
	StartChild(ctx context.Context, input *domain.StartInput) (ChildHandle, error)

	// Persist сохраняет чекпоинт снапшота прогресса. Вызов best-effort:
	// ошибки персистентности не останавливают исполнение.
	Persist(snapshot *domain.ProgressSnapshot)

	// Now возвращает текущее время хоста.
	Now() time.Time
}
