// Package events publishes remote store domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"bar-pos/internal/logger"
)

// Topic carries every event; the type travels in a header.
const Topic = "pos.events"

// Envelope is the value of every message.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer hands messages to a background writer so request handlers
// never wait on the broker.
type Producer struct {
	w       writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	now     func() time.Time
}

func NewProducer(brokers []string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, buf)
}

func newProducer(w writer, buf int) *Producer {
	if buf <= 0 {
		buf = 256
	}
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		now:     time.Now,
	}
}

// Start runs the writer loop until ctx ends or Close is called, then
// flushes what is left.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					p.closeWriter()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				p.closeWriter()
				return
			}
			p.write(m)
		default:
			p.closeWriter()
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		logger.LogError("kafka write %s: %v", string(m.Key), err)
	}
}

func (p *Producer) closeWriter() {
	if err := p.w.Close(); err != nil {
		logger.LogWarn("kafka writer close: %v", err)
	}
}

// Publish wraps payload in an Envelope keyed by key (the tenant id, so
// one tenant's events stay ordered). A full buffer drops the event.
func (p *Producer) Publish(eventType, key string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.LogError("marshal %s event: %v", eventType, err)
		return
	}
	env, err := json.Marshal(Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   p.now().UTC(),
		Producer:     "bar-pos-server",
		Payload:      body,
	})
	if err != nil {
		logger.LogError("marshal %s envelope: %v", eventType, err)
		return
	}

	m := kafka.Message{
		Key:     []byte(key),
		Value:   env,
		Time:    p.now(),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
	select {
	case p.inbox <- m:
	default:
		logger.LogWarn("event buffer full, dropping %s for %s", eventType, key)
	}
}

// Close stops accepting events; the loop flushes and closes the writer.
func (p *Producer) Close() { close(p.inbox) }

// WaitClosed blocks until the writer loop has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }

// Decode unpacks the payload of an envelope.
func Decode[T any](env Envelope) (T, error) {
	var t T
	err := json.Unmarshal(env.Payload, &t)
	return t, err
}
