package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sos-service/internal/models"
)

// ErrProfileNotFound is returned when a user has no profile row.
var ErrProfileNotFound = errors.New("profile not found")

// GetProfile reads the reporter's profile.
func (d *DB) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	query := `
	SELECT id, full_name, phone_number, department
	FROM profiles
	WHERE id = $1`

	var p models.Profile
	err := d.Pool.QueryRow(ctx, query, userID).Scan(&p.ID, &p.FullName, &p.PhoneNumber, &p.Department)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return p, nil
}

// GetRole returns the user's role, defaulting to student when none is assigned.
func (d *DB) GetRole(ctx context.Context, userID string) (string, error) {
	query := `
	SELECT role
	FROM user_roles
	WHERE user_id = $1
	ORDER BY (role = 'admin') DESC
	LIMIT 1`

	var role string
	err := d.Pool.QueryRow(ctx, query, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RoleStudent, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role for %s: %w", userID, err)
	}
	return role, nil
}
