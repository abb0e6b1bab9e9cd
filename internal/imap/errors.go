package imap

import "errors"

// Error kinds surfaced by the adapter. Callers match with errors.Is; none of
// them are retried here.
var (
	// ErrConnection covers transport, TLS and authentication failures while
	// establishing the session.
	ErrConnection = errors.New("imap: connection failed")

	// ErrMailbox is returned when the target mailbox cannot be selected.
	ErrMailbox = errors.New("imap: mailbox select failed")

	// ErrFetch is returned when the header search/fetch fails after a mailbox
	// was selected.
	ErrFetch = errors.New("imap: fetch failed")
)
