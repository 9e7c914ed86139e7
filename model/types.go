package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Header sentinels used when the mailbox omits a value.
const (
	UnknownSender = "Unknown"
	NoSubject     = "No Subject"
)

// Message is one unread message as shown to the user.
type Message struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Domain  string `json:"domain"`
}

// Grouping maps a sender domain to its messages.
type Grouping map[string][]Message

// DomainGroup is a single rendered entry of a Grouping.
type DomainGroup struct {
	Domain   string    `json:"domain"`
	Count    int       `json:"count"`
	Messages []Message `json:"messages"`
}

// GroupByDomain buckets msgs by their Domain field.
func GroupByDomain(msgs []Message) Grouping {
	g := make(Grouping)
	for _, m := range msgs {
		g[m.Domain] = append(g[m.Domain], m)
	}
	return g
}

// Sorted returns the groups ordered by message count desc, then domain asc.
func (g Grouping) Sorted() []DomainGroup {
	out := make([]DomainGroup, 0, len(g))
	for domain, msgs := range g {
		out = append(out, DomainGroup{Domain: domain, Count: len(msgs), Messages: msgs})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// Messages flattens the grouping in rendered order.
func (g Grouping) Messages() []Message {
	var out []Message
	for _, group := range g.Sorted() {
		out = append(out, group.Messages...)
	}
	return out
}

// Count returns the number of messages across all groups.
func (g Grouping) Count() int {
	n := 0
	for _, msgs := range g {
		n += len(msgs)
	}
	return n
}

type Status string

const (
	StatusFetching Status = "fetching"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// FetchProgress is the process-wide record of the background walk.
type FetchProgress struct {
	IsFetching    bool      `json:"is_fetching"`
	IsPaused      bool      `json:"is_paused"`
	TotalEstimate int       `json:"total_estimate"`
	FetchedCount  int       `json:"fetched_count"`
	GroupCount    int       `json:"group_count"`
	NextPageToken string    `json:"next_page_token"`
	LastFetch     time.Time `json:"last_fetch"`
	LastError     string    `json:"last_error,omitempty"`
}

// Status derives the display state. A running walk wins over a stale error.
func (p FetchProgress) Status() Status {
	switch {
	case p.IsFetching:
		return StatusFetching
	case p.LastError != "":
		return StatusError
	case p.IsPaused:
		return StatusPaused
	default:
		return StatusComplete
	}
}

// PaginationState lets an interrupted walk continue at the next page.
type PaginationState struct {
	NextPageToken string    `json:"next_page_token"`
	FetchedCount  int       `json:"fetched_count"`
	TotalEstimate int       `json:"total_estimate"`
	SavedAt       time.Time `json:"saved_at"`
}

// Snapshot is the persisted grouping.
type Snapshot struct {
	Grouping      Grouping  `json:"grouping"`
	TotalEstimate int       `json:"total_estimate"`
	FetchedCount  int       `json:"fetched_count"`
	SavedAt       time.Time `json:"saved_at"`
}

// Preview is the full view of a single message.
type Preview struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}

// ActionKind is a bulk mailbox mutation requested by the client.
type ActionKind string

const (
	ActionRead    ActionKind = "read"
	ActionArchive ActionKind = "archive"
	ActionTrash   ActionKind = "delete"
)

// ParseAction maps the client's actionType onto an ActionKind.
func ParseAction(s string) (ActionKind, error) {
	switch ActionKind(strings.ToLower(strings.TrimSpace(s))) {
	case ActionRead:
		return ActionRead, nil
	case ActionArchive:
		return ActionArchive, nil
	case ActionTrash, "trash":
		return ActionTrash, nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}
