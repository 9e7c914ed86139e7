// Package mailbox abstracts the remote store of unread messages.
package mailbox

import (
	"context"
	"net/textproto"
)

// Labels removed by the bulk actions.
const (
	LabelUnread = "UNREAD"
	LabelInbox  = "INBOX"
)

// Source is a paginated view over the unread messages of one account.
type Source interface {
	// ListUnread returns at most pageSize messages starting at pageToken.
	// An empty NextPageToken means the listing is exhausted.
	ListUnread(ctx context.Context, pageToken string, pageSize int) (Page, error)
	GetMessage(ctx context.Context, id string) (Detail, error)
	ModifyLabels(ctx context.Context, id string, remove []string) error
	Trash(ctx context.Context, id string) error
}

type Page struct {
	Messages           []Summary
	NextPageToken      string
	ResultSizeEstimate int
}

// Summary is a listed message with its raw headers.
type Summary struct {
	ID      string
	Headers Headers
	HasBody bool
}

// Detail is a fetched message with its decoded body.
type Detail struct {
	ID      string
	Headers Headers
	Body    string
}

// Headers is keyed by canonical MIME header name.
type Headers map[string]string

// Set stores value under the canonical form of name, keeping the first value seen.
func (h Headers) Set(name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	if _, ok := h[key]; ok {
		return
	}
	h[key] = value
}

// Get returns the header value, or fallback when it is absent or blank.
func (h Headers) Get(name, fallback string) string {
	if v, ok := h[textproto.CanonicalMIMEHeaderKey(name)]; ok && v != "" {
		return v
	}
	return fallback
}
