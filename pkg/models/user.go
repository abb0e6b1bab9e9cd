package models

import "time"

// User represents an account whose mailbox is mirrored
type User struct {
	ID           int64     `db:"id"`
	GoogleID     string    `db:"google_id"`     // OAuth subject claim
	Email        string    `db:"email"`         // Mailbox identity used for IMAP login
	AccessToken  string    `db:"access_token"`  // Short-lived bearer credential
	RefreshToken string    `db:"refresh_token"` // Long-lived credential
	TokenExpiry  time.Time `db:"token_expiry"`
	LastUID      uint32    `db:"last_uid"` // High-water mark of the last synced IMAP UID
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
