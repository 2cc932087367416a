package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Procedura/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeProcessPending MessageType = "process.pending"
	MessageTypeSignal         MessageType = "process.signal"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ProcessPendingPayload — payload для сообщения о процессе, ожидающем
// запуска. Сам вход запуска лежит в БД: сообщение несёт только ссылку.
type ProcessPendingPayload struct {
	ProcessID uuid.UUID `json:"process_id"`
}

// SignalPayload — payload внешнего сигнала. Заполнено ровно одно из
// полей Approval/Event в соответствии с Kind.
type SignalPayload struct {
	ProcessID uuid.UUID              `json:"process_id"`
	Kind      string                 `json:"kind"`
	Approval  *domain.ApprovalSignal `json:"approval,omitempty"`
	Event     *domain.EventSignal    `json:"event,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishProcessPending публикует событие о процессе, ожидающем запуска.
// Потребитель: Runner.
func (p *Publisher) PublishProcessPending(ctx context.Context, processID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeProcessPending,
		Payload:   ProcessPendingPayload{ProcessID: processID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeProcesses, RoutingKeyPending, msg)
}

// PublishApproval публикует голос согласующего.
// Потребитель: Runner.
func (p *Publisher) PublishApproval(ctx context.Context, processID uuid.UUID, sig *domain.ApprovalSignal) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeSignal,
		Payload: SignalPayload{
			ProcessID: processID,
			Kind:      domain.SignalApproval,
			Approval:  sig,
		},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeSignals, RoutingKeySignal, msg)
}

// PublishEvent публикует внешнее событие процесса.
// Потребитель: Runner.
func (p *Publisher) PublishEvent(ctx context.Context, processID uuid.UUID, sig *domain.EventSignal) error {
	msg := &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeSignal,
		Payload: SignalPayload{
			ProcessID: processID,
			Kind:      domain.SignalProcessEvent,
			Event:     sig,
		},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeSignals, RoutingKeySignal, msg)
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, exchange, routingKey, msg)
}
