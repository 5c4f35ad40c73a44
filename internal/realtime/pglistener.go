package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"sos-service/internal/logging"
	"sos-service/internal/metrics"
	"sos-service/internal/models"
	"sos-service/internal/utils"
)

// AlertReader re-reads an inserted alert together with its reporter.
type AlertReader interface {
	GetAlert(ctx context.Context, id uuid.UUID) (models.Alert, error)
}

// PGListener turns Postgres insert notifications into broker publishes.
type PGListener struct {
	pool    *pgxpool.Pool
	channel string
	broker  *Broker
	reader  AlertReader
	logger  *logging.Logger
}

// NewPGListener listens on channel. reader may be nil, in which case alerts are
// published without reporter details.
func NewPGListener(pool *pgxpool.Pool, channel string, broker *Broker, reader AlertReader, logger *logging.Logger) *PGListener {
	return &PGListener{pool: pool, channel: channel, broker: broker, reader: reader, logger: logger}
}

// Run blocks until ctx is cancelled, reconnecting whenever the connection drops.
func (l *PGListener) Run(ctx context.Context) error {
	l.logger.Infof("Realtime listener started on channel %s", l.channel)
	for {
		err := utils.Retry(ctx, l.logger, 5, 2*time.Second, func() error {
			return l.listen(ctx)
		})
		if ctx.Err() != nil {
			l.logger.Infof("Realtime listener stopped")
			return nil
		}
		l.logger.Errorf("Realtime listener failing, backing off: %v", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Second):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		a, err := decodeNotification(n.Payload)
		if err != nil {
			l.logger.Errorf("Invalid alert notification: %v", err)
			continue
		}
		metrics.RealtimeEvents.WithLabelValues("postgres").Inc()
		l.broker.Publish(Enrich(ctx, l.reader, a, l.logger))
	}
}

// Enrich re-reads a with its reporter joined in. It falls back to a as received
// when reader is nil or the lookup fails.
func Enrich(ctx context.Context, reader AlertReader, a models.Alert, logger *logging.Logger) models.Alert {
	if reader == nil {
		return a
	}
	full, err := reader.GetAlert(ctx, a.ID)
	if err != nil {
		logger.Warnf("Publishing alert %s without reporter: %v", a.ID, err)
		return a
	}
	return full
}

// decodeNotification parses the row_to_json payload sent by the insert trigger.
func decodeNotification(payload string) (models.Alert, error) {
	var a models.Alert
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return models.Alert{}, fmt.Errorf("unmarshal alert payload: %w", err)
	}
	if a.ID == uuid.Nil {
		return models.Alert{}, errors.New("alert payload has no id")
	}
	return a, nil
}
