package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sos-service/internal/models"
)

// CreateDispatch records a pending notification attempt and returns its id.
func (d *DB) CreateDispatch(ctx context.Context, alertID uuid.UUID, recipient string) (uuid.UUID, error) {
	id := uuid.New()
	query := `
	INSERT INTO sos_dispatches (id, alert_id, recipient, status)
	VALUES ($1, $2, $3, $4)`
	if _, err := d.Pool.Exec(ctx, query, id, alertID, recipient, models.DispatchPending); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create dispatch: %w", err)
	}
	return id, nil
}

func (d *DB) UpdateDispatchStatus(ctx context.Context, id uuid.UUID, status, lastError string) error {
	query := `
	UPDATE sos_dispatches
	SET status = $1, last_error = $2,
	    sent_at = CASE WHEN $1 = 'sent' THEN $3 ELSE sent_at END
	WHERE id = $4`
	result, err := d.Pool.Exec(ctx, query, status, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update dispatch status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no dispatch updated for id %s", id)
	}
	return nil
}

// ListDispatches returns the attempts recorded for one alert, newest first.
func (d *DB) ListDispatches(ctx context.Context, alertID uuid.UUID) ([]models.Dispatch, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, alert_id, recipient, status, last_error, created_at, sent_at
	FROM sos_dispatches
	WHERE alert_id = $1
	ORDER BY created_at DESC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatches for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	list := []models.Dispatch{}
	for rows.Next() {
		var dp models.Dispatch
		if err := rows.Scan(&dp.ID, &dp.AlertID, &dp.Recipient, &dp.Status, &dp.LastError, &dp.CreatedAt, &dp.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		list = append(list, dp)
	}
	return list, rows.Err()
}
