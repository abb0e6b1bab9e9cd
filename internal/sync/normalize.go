package sync

import (
	"net/mail"
	"strings"
	"time"

	"github.com/pvolkov/mailmirror/internal/imap"
	"github.com/pvolkov/mailmirror/pkg/models"
)

// Placeholder values for absent headers
const (
	defaultFrom    = "N/A"
	defaultSubject = "No Subject"
)

// normalizeRecord turns one raw header into a storable metadata record.
// Returns false when the record has no usable Message-ID and must be dropped.
func normalizeRecord(userID int64, raw imap.RawHeader, now time.Time) (*models.EmailMetadata, bool) {
	messageID := stripAngleBrackets(raw.Get("Message-Id"))
	if messageID == "" {
		return nil, false
	}

	from := raw.Get("From")
	if from == "" {
		from = defaultFrom
	}

	subject := raw.Get("Subject")
	if subject == "" {
		subject = defaultSubject
	}

	return &models.EmailMetadata{
		UserID:    userID,
		MessageID: messageID,
		FromAddr:  from,
		Subject:   subject,
		Date:      parseHeaderDate(raw.Get("Date"), now),
	}, true
}

// stripAngleBrackets removes the <...> delimiters around a Message-ID
func stripAngleBrackets(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return strings.TrimSpace(s)
}

// parseHeaderDate parses an RFC 5322 date, falling back to the given time
// when the header is missing or malformed
func parseHeaderDate(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := mail.ParseDate(s)
	if err != nil {
		return fallback
	}
	return t
}
