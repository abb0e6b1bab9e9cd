package imap

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	nettextproto "net/textproto"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/textproto"
)

// Header fields requested from the server; everything else stays remote.
var headerFields = []string{"From", "Subject", "Date", "Message-Id"}

// Credentials is the identity/bearer pair for one session. Tokens are opaque
// here; refreshing them is the caller's job.
type Credentials struct {
	Identity    string // mailbox address, used as the SASL authorization identity
	BearerToken string
}

// RawHeader is one message's unparsed header fields plus its IMAP UID
type RawHeader struct {
	UID    uint32
	Fields map[string]string // canonical MIME key -> raw value
}

// Get returns a header value by name, case-insensitively
func (h RawHeader) Get(name string) string {
	return h.Fields[nettextproto.CanonicalMIMEHeaderKey(name)]
}

// Config for the session dialer
type Config struct {
	Server             string // host:port; resolved from the identity domain when empty
	DialTimeout        time.Duration
	InsecureSkipVerify bool
}

// Dialer opens authenticated IMAP sessions
type Dialer struct {
	config Config
	logger *slog.Logger
}

// NewDialer creates a new session dialer
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	return &Dialer{
		config: cfg,
		logger: logger.With("component", "imap_dialer"),
	}
}

// Dial connects to the IMAP server over TLS and authenticates with XOAUTH2.
// The dial timeout bounds the handshake only, not later fetches. The returned
// session holds one connection; callers must Close it on every path.
func (d *Dialer) Dial(ctx context.Context, creds Credentials) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	addr := d.config.Server
	if addr == "" {
		resolved, err := Resolve(creds.Identity)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve server for %s: %w", ErrConnection, creds.Identity, err)
		}
		addr = resolved
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid server address %q: %w", ErrConnection, addr, err)
	}

	timeout := d.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	tlsConfig := &tls.Config{ServerName: host}
	if d.config.InsecureSkipVerify {
		// Explicit opt-in only; certificate validation is the default.
		d.logger.Warn("TLS certificate verification disabled", "server", addr)
		tlsConfig.InsecureSkipVerify = true
	}

	d.logger.Info("connecting to IMAP server", "server", addr, "identity", creds.Identity)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, addr, err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: greeting from %s: %w", ErrConnection, addr, err)
	}

	if err := imapClient.Authenticate(newXOAuth2Client(creds.Identity, creds.BearerToken)); err != nil {
		imapClient.Logout()
		return nil, fmt.Errorf("%w: authenticate %s: %w", ErrConnection, creds.Identity, err)
	}

	d.logger.Info("authenticated", "identity", creds.Identity)

	return &Session{
		client: imapClient,
		logger: d.logger.With("identity", creds.Identity),
	}, nil
}

// Session is a single authenticated IMAP connection
type Session struct {
	client  *client.Client
	logger  *slog.Logger
	mailbox *imap.MailboxStatus
}

// SelectMailbox selects a mailbox read-only for subsequent fetches
func (s *Session) SelectMailbox(name string) error {
	mbox, err := s.client.Select(name, true)
	if err != nil {
		return fmt.Errorf("%w: select %q: %w", ErrMailbox, name, err)
	}
	s.mailbox = mbox
	return nil
}

// FetchHeaders fetches the tracked header fields of every message with
// UID > sinceUID (0 fetches the whole mailbox). Field content is returned
// raw; parsing and defaulting happen in the reconciler.
func (s *Session) FetchHeaders(ctx context.Context, sinceUID uint32) ([]RawHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if s.mailbox == nil {
		return nil, fmt.Errorf("%w: no mailbox selected", ErrFetch)
	}
	if s.mailbox.Messages == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(sinceUID+1, 0) // 0 means * (all)

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{
			Specifier: imap.HeaderSpecifier,
			Fields:    headerFields,
		},
		Peek: true,
	}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 100)
	done := make(chan error, 1)

	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var headers []RawHeader
	for msg := range messages {
		// n:* matches the highest-UID message even when n exceeds it
		if msg.Uid <= sinceUID {
			continue
		}
		headers = append(headers, s.parseHeader(msg, section))
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid fetch: %w", ErrFetch, err)
	}

	return headers, nil
}

// parseHeader reads the fetched header section into a raw field map
func (s *Session) parseHeader(msg *imap.Message, section *imap.BodySectionName) RawHeader {
	raw := RawHeader{
		UID:    msg.Uid,
		Fields: make(map[string]string, len(headerFields)),
	}

	body := msg.GetBody(section)
	if body == nil {
		return raw
	}

	hdr, err := textproto.ReadHeader(bufio.NewReader(body))
	if err != nil {
		s.logger.Warn("failed to read header section", "uid", msg.Uid, "error", err)
		return raw
	}

	fields := hdr.Fields()
	for fields.Next() {
		key := nettextproto.CanonicalMIMEHeaderKey(fields.Key())
		if _, dup := raw.Fields[key]; dup {
			continue
		}
		raw.Fields[key] = fields.Value()
	}

	return raw
}

// Close logs out and releases the connection
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	c := s.client
	s.client = nil
	s.mailbox = nil
	if err := c.Logout(); err != nil {
		c.Terminate()
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}
