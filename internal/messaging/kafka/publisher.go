// Package kafka publishes storefront domain events to a Kafka topic.
package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/event"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// Config configures the publisher.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	MaxAttempts  int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ event.Publisher = (*Publisher)(nil)

// Publisher writes events keyed by order, so events of one order keep
// their relative order within a partition.
type Publisher struct {
	writer messageWriter
	closed atomic.Bool
}

// NewPublisher creates a synchronous Publisher for cfg.Topic.
func NewPublisher(cfg Config, lg *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("no topic")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxAttempts,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			lg.Sugar().Warnf("kafka: "+msg, args...)
		}),
	}
	return newPublisher(w), nil
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish writes events and blocks until the broker acknowledged them.
func (p *Publisher) Publish(ctx context.Context, events ...event.Event) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msgs[i] = kafka.Message{
			Key:   []byte(e.Key()),
			Value: Encode(e),
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrapf(err, "write %d events", len(msgs))
	}
	return nil
}

// Close flushes pending writes. It is safe to call more than once.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

// Encode renders e as JSON.
func Encode(e event.Event) []byte {
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("type")
	w.Str(string(e.Type))
	if e.UserID != "" {
		w.FieldStart("userId")
		w.Str(e.UserID)
	}
	if e.OrderID != "" {
		w.FieldStart("orderId")
		w.Str(e.OrderID)
	}
	if e.ItemID != "" {
		w.FieldStart("itemId")
		w.Str(e.ItemID)
	}
	if e.Status != "" {
		w.FieldStart("status")
		w.Str(e.Status)
	}
	if !e.Amount.IsZero() {
		w.FieldStart("amount")
		w.Str(e.Amount.StringFixed(2))
	}
	w.FieldStart("occurredAt")
	w.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	w.ObjEnd()
	return w.Bytes()
}
