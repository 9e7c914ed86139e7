package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const (
	defaultInbox   = "INBOX"
	defaultArchive = "[Gmail]/All Mail"
	defaultTrash   = "[Gmail]/Trash"
)

type IMAPConfig struct {
	Address  string // host:port, TLS
	Username string
	Password string
	Inbox    string
	Archive  string
	Trash    string
}

// IMAP implements Source for any IMAP server. Message ids are UIDs of the
// inbox and the page token is the last UID handed out.
type IMAP struct {
	cfg IMAPConfig

	mu sync.Mutex
	c  *client.Client
}

func NewIMAP(cfg IMAPConfig) *IMAP {
	if cfg.Inbox == "" {
		cfg.Inbox = defaultInbox
	}
	if cfg.Archive == "" {
		cfg.Archive = defaultArchive
	}
	if cfg.Trash == "" {
		cfg.Trash = defaultTrash
	}
	return &IMAP{cfg: cfg}
}

// Close logs out of the server if a session is open.
func (m *IMAP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c == nil {
		return nil
	}
	err := m.c.Logout()
	m.c = nil
	return err
}

func (m *IMAP) ListUnread(ctx context.Context, pageToken string, pageSize int) (Page, error) {
	var before uint32
	if pageToken != "" {
		n, err := strconv.ParseUint(pageToken, 10, 32)
		if err != nil {
			return Page{}, fmt.Errorf("invalid page token %q: %w", pageToken, err)
		}
		before = uint32(n)
	}

	var page Page
	err := m.withMailbox(ctx, true, func(c *client.Client) error {
		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		uids, err := c.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("imap: search unseen failed: %w", err)
		}
		pageUIDs, next := paginateUIDs(uids, before, pageSize)
		page.ResultSizeEstimate = len(uids)
		page.NextPageToken = next
		if len(pageUIDs) == 0 {
			return nil
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(pageUIDs...)
		items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchRFC822Size}
		fetched, err := fetchAll(c, seqSet, items)
		if err != nil {
			return fmt.Errorf("imap: fetch envelopes failed: %w", err)
		}
		byUID := make(map[uint32]*imap.Message, len(fetched))
		for _, msg := range fetched {
			byUID[msg.Uid] = msg
		}
		for _, uid := range pageUIDs {
			msg, ok := byUID[uid]
			if !ok {
				slog.Warn("Message disappeared before envelope fetch, skipping", "uid", uid)
				continue
			}
			page.Messages = append(page.Messages, summaryFromEnvelope(msg))
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (m *IMAP) GetMessage(ctx context.Context, id string) (Detail, error) {
	uid, err := parseUID(id)
	if err != nil {
		return Detail{}, err
	}
	var detail Detail
	err = m.withMailbox(ctx, true, func(c *client.Client) error {
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)
		section := &imap.BodySectionName{Peek: true}
		fetched, err := fetchAll(c, seqSet, []imap.FetchItem{imap.FetchUid, section.FetchItem()})
		if err != nil {
			return fmt.Errorf("imap: fetch body failed: %w", err)
		}
		if len(fetched) == 0 {
			return fmt.Errorf("imap: message %s not found", id)
		}
		literal := fetched[0].GetBody(section)
		if literal == nil {
			return fmt.Errorf("imap: message %s has no body section", id)
		}
		raw, err := io.ReadAll(literal)
		if err != nil {
			return fmt.Errorf("imap: reading body of %s failed: %w", id, err)
		}
		detail, err = parseRawMessage(id, raw)
		return err
	})
	if err != nil {
		return Detail{}, err
	}
	return detail, nil
}

func (m *IMAP) ModifyLabels(ctx context.Context, id string, remove []string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	return m.withMailbox(ctx, false, func(c *client.Client) error {
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)
		for _, label := range remove {
			switch label {
			case LabelUnread:
				storeItem := imap.FormatFlagsOp(imap.AddFlags, true)
				if err := c.UidStore(seqSet, storeItem, []interface{}{imap.SeenFlag}, nil); err != nil {
					return fmt.Errorf("imap: mark %s seen failed: %w", id, err)
				}
			case LabelInbox:
				if err := c.UidMove(seqSet, m.cfg.Archive); err != nil {
					return fmt.Errorf("imap: archive %s failed: %w", id, err)
				}
			default:
				return fmt.Errorf("imap: unsupported label %q", label)
			}
		}
		return nil
	})
}

func (m *IMAP) Trash(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	return m.withMailbox(ctx, false, func(c *client.Client) error {
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)
		if err := c.UidMove(seqSet, m.cfg.Trash); err != nil {
			return fmt.Errorf("imap: trash %s failed: %w", id, err)
		}
		return nil
	})
}

// withMailbox runs fn with the inbox selected on a live session. A failed
// session is dropped so the next call dials again.
func (m *IMAP) withMailbox(ctx context.Context, readOnly bool, fn func(c *client.Client) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.c == nil {
		c, err := m.dial()
		if err != nil {
			return err
		}
		m.c = c
	}
	if _, err := m.c.Select(m.cfg.Inbox, readOnly); err != nil {
		m.drop()
		return fmt.Errorf("imap: select %s failed: %w", m.cfg.Inbox, err)
	}
	err := fn(m.c)
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		m.drop()
	}
	return err
}

func (m *IMAP) dial() (*client.Client, error) {
	host, _, err := net.SplitHostPort(m.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("imap: invalid address %q: %w", m.cfg.Address, err)
	}
	c, err := client.DialTLS(m.cfg.Address, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("imap: dial failed: %w", err)
	}
	c.Timeout = 30 * time.Second
	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap: login failed: %w", err)
	}
	return c, nil
}

func (m *IMAP) drop() {
	if m.c != nil {
		_ = m.c.Logout()
		m.c = nil
	}
}

func fetchAll(c *client.Client, seqSet *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()
	var out []*imap.Message
	for msg := range messages {
		out = append(out, msg)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return out, nil
}

// paginateUIDs orders uids newest first and returns the page below the
// cursor together with the cursor for the following page.
func paginateUIDs(uids []uint32, before uint32, pageSize int) ([]uint32, string) {
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	start := 0
	if before > 0 {
		start = sort.Search(len(sorted), func(i int) bool { return sorted[i] < before })
	}
	if pageSize <= 0 || start >= len(sorted) {
		return nil, ""
	}
	end := start + pageSize
	if end >= len(sorted) {
		return sorted[start:], ""
	}
	page := sorted[start:end]
	return page, strconv.FormatUint(uint64(page[len(page)-1]), 10)
}

func summaryFromEnvelope(msg *imap.Message) Summary {
	s := Summary{
		ID:      strconv.FormatUint(uint64(msg.Uid), 10),
		Headers: Headers{},
		HasBody: msg.Size > 0,
	}
	env := msg.Envelope
	if env == nil {
		return s
	}
	if len(env.From) > 0 && env.From[0] != nil {
		s.Headers.Set("From", formatAddress(env.From[0]))
	}
	s.Headers.Set("Subject", env.Subject)
	if !env.Date.IsZero() {
		s.Headers.Set("Date", env.Date.Format(time.RFC1123Z))
	}
	return s
}

func formatAddress(addr *imap.Address) string {
	email := addr.MailboxName + "@" + addr.HostName
	if addr.PersonalName == "" {
		return email
	}
	return (&mail.Address{Name: addr.PersonalName, Address: email}).String()
}

func parseUID(id string) (uint32, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("imap: invalid message id %q", id)
	}
	return uint32(n), nil
}

// parseRawMessage decodes headers and the first text body of an RFC 5322 message.
func parseRawMessage(id string, raw []byte) (Detail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Detail{}, fmt.Errorf("imap: parse message %s failed: %w", id, err)
	}
	d := Detail{ID: id, Headers: Headers{}}
	dec := new(mime.WordDecoder)
	for name, values := range msg.Header {
		if len(values) == 0 {
			continue
		}
		v, err := dec.DecodeHeader(values[0])
		if err != nil {
			v = values[0]
		}
		d.Headers.Set(name, v)
	}
	body, err := textBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return Detail{}, fmt.Errorf("imap: decode body of %s failed: %w", id, err)
	}
	d.Body = body
	return d, nil
}

func textBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			body, err := textBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if body != "" {
				return body, nil
			}
		}
	}
	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", nil
	}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
