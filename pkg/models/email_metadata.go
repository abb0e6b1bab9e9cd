package models

import "time"

// EmailMetadata represents the stored header metadata of a single message
type EmailMetadata struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`    // FK to User
	MessageID string    `db:"message_id"` // Message-ID header, angle brackets stripped
	FromAddr  string    `db:"from_addr"`  // Raw From header value
	Subject   string    `db:"subject"`
	Date      time.Time `db:"date"` // Header date, ingestion time if unparsable
	CreatedAt time.Time `db:"created_at"`
}
