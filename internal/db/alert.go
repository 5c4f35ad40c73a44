package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sos-service/internal/models"
)

// ErrAlertNotFound is returned when no alert matches, or it is already resolved.
var ErrAlertNotFound = errors.New("alert not found")

const alertColumns = `
	a.id, a.user_id, a.location_lat, a.location_lng, a.created_at, a.resolved, a.resolved_at,
	p.full_name, p.phone_number`

// CreateAlert inserts one alert row. created_at and resolved come from column defaults.
func (d *DB) CreateAlert(ctx context.Context, na models.NewAlert) (models.Alert, error) {
	query := `
	INSERT INTO sos_alerts (id, user_id, location_lat, location_lng)
	VALUES ($1, $2, $3, $4)
	RETURNING id, user_id, location_lat, location_lng, created_at, resolved, resolved_at`

	var a models.Alert
	err := d.Pool.QueryRow(ctx, query,
		uuid.New(),
		na.UserID,
		na.LocationLat,
		na.LocationLng,
	).Scan(&a.ID, &a.UserID, &a.LocationLat, &a.LocationLng, &a.CreatedAt, &a.Resolved, &a.ResolvedAt)
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns alerts newest first with the reporter's name and phone.
// A limit <= 0 returns the full history.
func (d *DB) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	query := `
	SELECT` + alertColumns + `
	FROM sos_alerts a
	LEFT JOIN profiles p ON p.id = a.user_id
	ORDER BY a.created_at DESC`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer rows.Close()

	list := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return list, nil
}

// GetAlert fetches one alert with its reporter.
func (d *DB) GetAlert(ctx context.Context, id uuid.UUID) (models.Alert, error) {
	query := `
	SELECT` + alertColumns + `
	FROM sos_alerts a
	LEFT JOIN profiles p ON p.id = a.user_id
	WHERE a.id = $1`

	a, err := scanAlert(d.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Alert{}, ErrAlertNotFound
	}
	return a, err
}

// ResolveAlert sets the resolution fields. It only matches unresolved rows, so the
// flag flips exactly once.
func (d *DB) ResolveAlert(ctx context.Context, id uuid.UUID) (models.Alert, error) {
	query := `
	UPDATE sos_alerts
	SET resolved = TRUE, resolved_at = NOW()
	WHERE id = $1 AND resolved = FALSE
	RETURNING id, user_id, location_lat, location_lng, created_at, resolved, resolved_at`

	var a models.Alert
	err := d.Pool.QueryRow(ctx, query, id).
		Scan(&a.ID, &a.UserID, &a.LocationLat, &a.LocationLng, &a.CreatedAt, &a.Resolved, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Alert{}, ErrAlertNotFound
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("failed to resolve alert %s: %w", id, err)
	}
	return a, nil
}

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	var r models.Reporter
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.LocationLat,
		&a.LocationLng,
		&a.CreatedAt,
		&a.Resolved,
		&a.ResolvedAt,
		&r.FullName,
		&r.PhoneNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Alert{}, err
		}
		return models.Alert{}, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Reporter = &r
	return a, nil
}
