package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"sos-service/internal/logging"
	"sos-service/internal/metrics"
	"sos-service/internal/models"
	"sos-service/internal/realtime"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads persisted alerts from the topic and publishes them to the local broker.
// Each service instance uses its own group so every instance sees every alert.
type Consumer struct {
	reader *kafka.Reader
	broker *realtime.Broker
	alerts realtime.AlertReader
	logger *logging.Logger
}

// NewConsumer publishes into broker. alerts joins the reporter profile and may be nil.
func NewConsumer(cfg Config, broker *realtime.Broker, alerts realtime.AlertReader, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     500 * time.Millisecond,
	})
	return &Consumer{reader: r, broker: broker, alerts: alerts, logger: logger}
}

func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on topic %s", c.reader.Config().Topic)
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				time.Sleep(time.Second)
				continue
			}
			if err := c.handle(ctx, msg.Value); err != nil {
				c.logger.Errorf("Invalid message at offset %d: %v", msg.Offset, err)
			}
		}
	}()
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var alert models.Alert
	if err := json.Unmarshal(value, &alert); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	if err := validate(alert); err != nil {
		return err
	}

	metrics.RealtimeEvents.WithLabelValues("kafka").Inc()
	c.broker.Publish(realtime.Enrich(ctx, c.alerts, alert, c.logger))
	c.logger.Debugf("Processed Kafka message for alert %s", alert.ID)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
