package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pvolkov/mailmirror/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// UpsertUser creates a user or refreshes the credentials of an existing one,
// keyed on the OAuth subject. The user's ID is populated either way.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (google_id, email, access_token, refresh_token, token_expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(google_id) DO UPDATE SET
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE users.refresh_token END,
			token_expiry = excluded.token_expiry,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		user.GoogleID,
		user.Email,
		user.AccessToken,
		user.RefreshToken,
		user.TokenExpiry,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	// LastInsertId is unreliable for upserts, read the row back
	var id int64
	if err := db.GetContext(ctx, &id, `SELECT id FROM users WHERE google_id = ?`, user.GoogleID); err != nil {
		return fmt.Errorf("failed to get user id: %w", err)
	}

	user.ID = id
	user.UpdatedAt = now
	return nil
}

// GetUserByID returns a user by ID
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE id = ?`
	err := db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByGoogleID returns a user by OAuth subject
func (db *DB) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE google_id = ?`
	err := db.GetContext(ctx, &user, query, googleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// UpdateUserTokens persists a refreshed credential pair
func (db *DB) UpdateUserTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error {
	query := `
		UPDATE users SET access_token = ?,
			refresh_token = CASE WHEN ? != '' THEN ? ELSE refresh_token END,
			token_expiry = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, accessToken, refreshToken, refreshToken, expiry, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return nil
}

// UpdateUserLastUID updates the high-water mark of synced IMAP UIDs
func (db *DB) UpdateUserLastUID(ctx context.Context, id int64, uid uint32) error {
	query := `UPDATE users SET last_uid = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, uid, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last uid: %w", err)
	}
	return nil
}

// DeleteUser deletes a user; email metadata rows cascade
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
