// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - process.pending — процесс создан и ожидает запуска
//   - process.signal  — внешний сигнал (голос согласующего, событие)
//
// Exchanges:
//   - procedura.processes — запуски процессов
//   - procedura.signals   — внешние сигналы
//   - procedura.dlq       — dead letter queue
package mq
