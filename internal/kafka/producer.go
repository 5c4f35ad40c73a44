package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"sos-service/internal/models"
)

// messageWriter is the slice of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// orderingKey is shared by every message so all alerts hash to one partition.
// Consumers fan alerts out in topic order, which must match insertion order.
const orderingKey = "sos_alerts"

// Producer publishes each persisted alert to the topic.
type Producer struct {
	writer messageWriter
}

func NewProducer(cfg Config) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *Producer) PublishAlert(ctx context.Context, a models.Alert) error {
	if err := validate(a); err != nil {
		return err
	}
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", a.ID, err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(orderingKey), Value: value}); err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", a.ID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func validate(a models.Alert) error {
	if a.ID == uuid.Nil || a.UserID == "" {
		return errors.New("missing id or user_id")
	}
	return nil
}
