package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pvolkov/mailmirror/pkg/models"
)

// MetadataFilter narrows a paginated metadata read
type MetadataFilter struct {
	UserID int64
	Search string // substring match on from_addr OR subject, empty matches all
}

// BulkInsertMetadata inserts metadata records, silently skipping rows whose
// (user_id, message_id) already exists. Runs in a single transaction so a
// failure lands zero rows. Returns the number of newly inserted rows.
func (db *DB) BulkInsertMetadata(ctx context.Context, records []*models.EmailMetadata) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO email_metadata (user_id, message_id, from_addr, subject, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	var inserted int64
	for _, rec := range records {
		result, err := stmt.ExecContext(ctx,
			rec.UserID,
			rec.MessageID,
			rec.FromAddr,
			rec.Subject,
			rec.Date,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert metadata: %w", err)
		}

		// INSERT OR IGNORE reports zero affected rows on a key conflict
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// ListMetadata returns one page of metadata rows ordered by date descending
// (id descending breaks ties so pages stay stable), plus the total match count.
func (db *DB) ListMetadata(ctx context.Context, filter MetadataFilter, limit, offset int) ([]*models.EmailMetadata, int64, error) {
	where := `WHERE user_id = ?`
	args := []interface{}{filter.UserID}

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		where += ` AND (from_addr LIKE ? ESCAPE '\' OR subject LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM email_metadata ` + where
	if err := db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count metadata: %w", err)
	}

	var rows []*models.EmailMetadata
	listQuery := `SELECT * FROM email_metadata ` + where + ` ORDER BY date DESC, id DESC LIMIT ? OFFSET ?`
	listArgs := append(args, limit, offset)
	if err := db.SelectContext(ctx, &rows, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list metadata: %w", err)
	}

	return rows, total, nil
}

// CountMetadataByUser returns the number of stored records for a user
func (db *DB) CountMetadataByUser(ctx context.Context, userID int64) (int64, error) {
	var total int64
	query := `SELECT COUNT(*) FROM email_metadata WHERE user_id = ?`
	if err := db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count metadata: %w", err)
	}
	return total, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
