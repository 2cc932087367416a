package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Procedura/internal/domain"
)

// ErrBadMessage — сообщение в принципе не может быть обработано:
// неизвестный тип, пустой process_id или неразбираемый payload.
// Такие сообщения уходят в DLQ, возврат в очередь их не починит.
var ErrBadMessage = errors.New("bad message")

// Handler — обработчик распарсенного сообщения.
// Возвращённая ошибка возвращает сообщение в очередь для retry;
// ошибка с ErrBadMessage в цепочке отправляет его в DLQ.
type Handler func(ctx context.Context, msg *Message) error

// OnProcessPending адаптирует типизированный обработчик события
// process.pending в Handler: проверяет тип сообщения и распаковывает
// ссылку на процесс.
func OnProcessPending(fn func(ctx context.Context, payload *ProcessPendingPayload) error) Handler {
	return func(ctx context.Context, msg *Message) error {
		if msg.Type != MessageTypeProcessPending {
			return fmt.Errorf("%w: unexpected type %q", ErrBadMessage, msg.Type)
		}
		payload, err := ParsePayload[ProcessPendingPayload](msg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
		if payload.ProcessID == uuid.Nil {
			return fmt.Errorf("%w: empty process_id", ErrBadMessage)
		}
		return fn(ctx, &payload)
	}
}

// OnSignal адаптирует типизированный обработчик внешнего сигнала в
// Handler. Сигнал без тела (kind не соответствует заполненному полю)
// считается битым.
func OnSignal(fn func(ctx context.Context, payload *SignalPayload) error) Handler {
	return func(ctx context.Context, msg *Message) error {
		if msg.Type != MessageTypeSignal {
			return fmt.Errorf("%w: unexpected type %q", ErrBadMessage, msg.Type)
		}
		payload, err := ParsePayload[SignalPayload](msg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadMessage, err)
		}
		if payload.ProcessID == uuid.Nil {
			return fmt.Errorf("%w: empty process_id", ErrBadMessage)
		}
		if err := validateSignal(&payload); err != nil {
			return err
		}
		return fn(ctx, &payload)
	}
}

func validateSignal(payload *SignalPayload) error {
	switch payload.Kind {
	case domain.SignalApproval:
		if payload.Approval == nil {
			return fmt.Errorf("%w: approval signal without body", ErrBadMessage)
		}
	case domain.SignalProcessEvent:
		if payload.Event == nil {
			return fmt.Errorf("%w: event signal without body", ErrBadMessage)
		}
	default:
		return fmt.Errorf("%w: unknown signal kind %q", ErrBadMessage, payload.Kind)
	}
	return nil
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений (обычно обёрнутый
	// OnProcessPending или OnSignal).
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start запускает цикл потребления: при потере соединения consumer
// дожидается переподключения Connection и продолжает с той же очереди.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение: парсинг, обработчик,
// ack/nack по результату.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", c.queue,
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное сообщение — отправляем в DLQ
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	if err := c.handler(ctx, &msg); err != nil {
		if errors.Is(err, ErrBadMessage) {
			c.logger.Error("dropping bad message",
				"queue", c.queue,
				"message_id", msg.ID,
				"error", err,
			)
			raw.Nack(false, false)
			return
		}
		c.logger.Error("handler failed",
			"queue", c.queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		// Транзиентная ошибка — возвращаем в очередь для retry
		// (если retry исчерпаны, DLQ настроен на уровне очереди)
		raw.Nack(false, true)
		return
	}

	raw.Ack(false)
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload может быть уже распарсен как map или быть raw json
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
