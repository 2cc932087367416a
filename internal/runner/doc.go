// Package runner реализует сервис выполнения процессов.
//
// Runner связывает три мира:
//   - RabbitMQ: consumers для processes.pending и signals.inbox
//   - PostgreSQL: записи процессов, чекпоинты, журнал сигналов
//   - runtime: in-memory выполнение маршрутов
//
// Структура:
//   - runner.go   — Runner, lifecycle (Start/Stop), polling fallback,
//     учёт активных процессов
//   - handlers.go — обработчики сообщений: запуск процессов,
//     журналирование и доставка сигналов
//   - errors.go   — ошибки runner
//
// Доставка сообщений at-least-once: дубликаты запуска отсекаются по
// активным процессам и терминальному статусу в БД, дедупликацию
// сигналов выполняет движок (по actor для голосов, по event_id для
// событий).
package runner
