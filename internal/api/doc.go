// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (репозитории, publisher, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - process_handler.go  — обработчики для /processes
//   - signal_handler.go   — приём сигналов (approval, события)
//   - schedule_handler.go — обработчики для /schedules
//
// API предоставляет REST endpoints для запуска процессов, подачи
// сигналов, чтения прогресса и управления расписаниями. Запуск и
// сигналы асинхронные: API пишет в БД и публикует сообщение в очередь,
// выполняет процессы runner.
package api
