// Package sync reconciles remote mailbox headers into the local metadata
// store and serves paginated reads back out of it.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/pvolkov/mailmirror/internal/database"
	"github.com/pvolkov/mailmirror/internal/imap"
	"github.com/pvolkov/mailmirror/pkg/models"
)

// Credentials aliases the adapter's credential pair so callers above this
// package do not import the protocol layer
type Credentials = imap.Credentials

// Session is one authenticated mailbox connection
type Session interface {
	SelectMailbox(name string) error
	FetchHeaders(ctx context.Context, sinceUID uint32) ([]imap.RawHeader, error)
	Close() error
}

// Dialer opens mailbox sessions
type Dialer interface {
	Dial(ctx context.Context, creds imap.Credentials) (Session, error)
}

// NewIMAPDialer adapts the concrete IMAP dialer to the Dialer interface
func NewIMAPDialer(d *imap.Dialer) Dialer {
	return imapDialer{d}
}

type imapDialer struct {
	d *imap.Dialer
}

func (a imapDialer) Dial(ctx context.Context, creds imap.Credentials) (Session, error) {
	session, err := a.d.Dial(ctx, creds)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Options tune a single sync run
type Options struct {
	Full bool // rescan the whole mailbox instead of starting at the stored UID mark
}

// Result summarizes one sync run
type Result struct {
	Fetched  int   // raw headers pulled from the server
	Inserted int64 // rows newly persisted
	Skipped  int64 // rows skipped as already-present key conflicts
	Dropped  int   // records without a Message-ID or duplicated within the batch
}

// Page is one page of metadata reads
type Page struct {
	Emails     []*models.EmailMetadata
	Page       int
	PageSize   int
	TotalPages int
	Total      int64
}

// DefaultPageSize is used when a read request does not specify one
const DefaultPageSize = 10

const maxPageSize = 100

// Service drives the sync and read paths
type Service struct {
	dialer  Dialer
	db      *database.DB
	mailbox string
	logger  *slog.Logger
}

// NewService creates a new reconciler service
func NewService(dialer Dialer, db *database.DB, mailbox string, logger *slog.Logger) *Service {
	return &Service{
		dialer:  dialer,
		db:      db,
		mailbox: mailbox,
		logger:  logger.With("component", "sync"),
	}
}

// SyncAccount mirrors the user's mailbox headers into the store. Records whose
// (user, message_id) already exist are skipped, so re-running against an
// unchanged mailbox is a no-op. The session is closed on every path.
func (s *Service) SyncAccount(ctx context.Context, user *models.User, creds imap.Credentials, opts Options) (*Result, error) {
	session, err := s.dialer.Dial(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to close session", "user_id", user.ID, "error", err)
		}
	}()

	if err := session.SelectMailbox(s.mailbox); err != nil {
		return nil, err
	}

	sinceUID := user.LastUID
	if opts.Full {
		sinceUID = 0
	}

	headers, err := session.FetchHeaders(ctx, sinceUID)
	if err != nil {
		return nil, err
	}

	records, maxUID := s.normalizeBatch(user.ID, headers)

	inserted, err := s.db.BulkInsertMetadata(ctx, records)
	if err != nil {
		return nil, err
	}

	// Advance the UID mark only after the rows landed; a stale mark just
	// means the next run refetches and the key conflict skips them again.
	if maxUID > user.LastUID {
		if err := s.db.UpdateUserLastUID(ctx, user.ID, maxUID); err != nil {
			s.logger.Warn("failed to advance uid mark", "user_id", user.ID, "uid", maxUID, "error", err)
		} else {
			user.LastUID = maxUID
		}
	}

	result := &Result{
		Fetched:  len(headers),
		Inserted: inserted,
		Skipped:  int64(len(records)) - inserted,
		Dropped:  len(headers) - len(records),
	}

	s.logger.Info("sync completed",
		"user_id", user.ID,
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"dropped", result.Dropped,
	)

	return result, nil
}

// normalizeBatch normalizes raw headers, dropping records without a
// Message-ID and in-batch duplicates (first occurrence wins). Also reports
// the highest UID seen, fetched or not.
func (s *Service) normalizeBatch(userID int64, headers []imap.RawHeader) ([]*models.EmailMetadata, uint32) {
	now := time.Now()
	seen := make(map[string]struct{}, len(headers))
	records := make([]*models.EmailMetadata, 0, len(headers))

	var maxUID uint32
	for _, raw := range headers {
		if raw.UID > maxUID {
			maxUID = raw.UID
		}

		rec, ok := normalizeRecord(userID, raw, now)
		if !ok {
			continue
		}
		if _, dup := seen[rec.MessageID]; dup {
			continue
		}
		seen[rec.MessageID] = struct{}{}
		records = append(records, rec)
	}

	return records, maxUID
}

// ListEmails returns one page of the user's metadata, newest first. A page
// past the end yields an empty list with the correct page count.
func (s *Service) ListEmails(ctx context.Context, userID int64, page, pageSize int, search string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := (page - 1) * pageSize
	rows, total, err := s.db.ListMetadata(ctx, database.MetadataFilter{
		UserID: userID,
		Search: search,
	}, pageSize, offset)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*models.EmailMetadata{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return &Page{
		Emails:     rows,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}
