package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/config"
)

const bufferSize = 128

// channel is the subset of *amqp091.Channel used by the publisher.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher buffers events and publishes them from a single worker.
type AMQPPublisher struct {
	cfg  config.EventsConfig
	log  *zap.Logger
	conn *amqp091.Connection
	ch   channel
	in   chan Event
}

// NewAMQPPublisher creates an unconnected publisher.
func NewAMQPPublisher(cfg config.EventsConfig, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		cfg: cfg,
		log: log,
		in:  make(chan Event, bufferSize),
	}
}

// Connect dials the broker and declares the topic exchange.
func (p *AMQPPublisher) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	conn, err := amqp091.DialConfig(p.cfg.URL, amqp091.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp091.Table{
			"connection_name": "clientdrop-api",
		},
		Dial: func(network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	})
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	p.conn = conn
	if err := p.attach(ch); err != nil {
		_ = conn.Close()
		return err
	}

	p.log.Info("rabbitmq connected", zap.String("exchange", p.cfg.Exchange))
	return nil
}

func (p *AMQPPublisher) attach(ch channel) error {
	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.ch = ch
	return nil
}

// Publish enqueues e, dropping it when the buffer is full.
func (p *AMQPPublisher) Publish(e Event) {
	select {
	case p.in <- e:
	default:
		p.log.Warn("event buffer full, dropping event",
			zap.String("type", e.Type),
			zap.String("file_id", e.FileID.String()),
		)
	}
}

// Run publishes buffered events until ctx is done.
func (p *AMQPPublisher) Run(ctx context.Context) error {
	p.log.Info("starting event publisher")
	defer p.log.Info("event publisher stopped")

	for {
		select {
		case e := <-p.in:
			if err := p.publish(ctx, e); err != nil {
				p.log.Error("publish event", zap.String("type", e.Type), zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(ctx, p.cfg.Exchange, e.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
}
