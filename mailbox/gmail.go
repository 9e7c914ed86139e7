package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	gmailUser   = "me"
	unreadQuery = "is:unread"
	maxParallel = 5
)

type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// RequestsPerSecond bounds calls made against the Gmail API.
	RequestsPerSecond float64
	Burst             int
}

// Gmail implements Source on top of the Gmail REST API.
type Gmail struct {
	svc       *gmail.Service
	throttler *rate.Limiter
	cb        *gobreaker.CircuitBreaker
}

func NewGmail(ctx context.Context, cfg GmailConfig) (*Gmail, error) {
	if cfg.RefreshToken == "" {
		return nil, errors.New("gmail refresh token is empty")
	}
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailModifyScope},
	}
	tokenSrc := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSrc))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return newGmail(svc, cfg), nil
}

func newGmail(svc *gmail.Service, cfg GmailConfig) *Gmail {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
	}
	return &Gmail{
		svc:       svc,
		throttler: rate.NewLimiter(rate.Limit(rps), burst),
		cb:        gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// ListUnread lists one page of unread messages and hydrates their headers.
func (g *Gmail) ListUnread(ctx context.Context, pageToken string, pageSize int) (Page, error) {
	call := g.svc.Users.Messages.List(gmailUser).Q(unreadQuery).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	var resp *gmail.ListMessagesResponse
	err := g.do(ctx, func() error {
		var err error
		resp, err = call.Context(ctx).Do()
		return err
	})
	if err != nil {
		return Page{}, fmt.Errorf("failed to list unread messages (page_token=%q): %w", pageToken, err)
	}

	summaries, err := g.hydrate(ctx, resp.Messages)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Messages:           summaries,
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: int(resp.ResultSizeEstimate),
	}, nil
}

// hydrate fetches metadata for refs with bounded concurrency, keeping list order.
// Messages that vanished between list and get are skipped.
func (g *Gmail) hydrate(ctx context.Context, refs []*gmail.Message) ([]Summary, error) {
	type result struct {
		summary Summary
		skip    bool
		err     error
	}
	results := make([]result, len(refs))
	semaphore := make(chan struct{}, maxParallel)
	done := make(chan struct{}, len(refs))

	for i, ref := range refs {
		go func(idx int, id string) {
			defer func() { done <- struct{}{} }()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			var msg *gmail.Message
			err := g.do(ctx, func() error {
				var err error
				msg, err = g.svc.Users.Messages.Get(gmailUser, id).
					Format("metadata").
					MetadataHeaders("From", "Subject", "Date").
					Context(ctx).
					Do()
				return err
			})
			switch {
			case isNotFound(err):
				slog.Warn("Message disappeared before metadata fetch, skipping", "message_id", id)
				results[idx] = result{skip: true}
			case err != nil:
				results[idx] = result{err: fmt.Errorf("failed to get message %s: %w", id, err)}
			default:
				results[idx] = result{summary: summaryFromMessage(msg)}
			}
		}(i, ref.Id)
	}
	for range refs {
		<-done
	}

	out := make([]Summary, 0, len(refs))
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if !r.skip {
			out = append(out, r.summary)
		}
	}
	return out, nil
}

func (g *Gmail) GetMessage(ctx context.Context, id string) (Detail, error) {
	var msg *gmail.Message
	err := g.do(ctx, func() error {
		var err error
		msg, err = g.svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return Detail{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	d := Detail{ID: msg.Id, Headers: Headers{}}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			d.Headers.Set(h.Name, h.Value)
		}
		d.Body = extractBody(msg.Payload)
	}
	if d.Body == "" {
		d.Body = msg.Snippet
	}
	return d, nil
}

func (g *Gmail) ModifyLabels(ctx context.Context, id string, remove []string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: remove}
	err := g.do(ctx, func() error {
		_, err := g.svc.Users.Messages.Modify(gmailUser, id, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to modify labels of message %s: %w", id, err)
	}
	return nil
}

func (g *Gmail) Trash(ctx context.Context, id string) error {
	err := g.do(ctx, func() error {
		_, err := g.svc.Users.Messages.Trash(gmailUser, id).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to trash message %s: %w", id, err)
	}
	return nil
}

// do throttles fn and runs it behind the circuit breaker.
func (g *Gmail) do(ctx context.Context, fn func() error) error {
	if err := g.throttler.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func summaryFromMessage(msg *gmail.Message) Summary {
	s := Summary{ID: msg.Id, Headers: Headers{}}
	if msg.Payload == nil {
		return s
	}
	for _, h := range msg.Payload.Headers {
		s.Headers.Set(h.Name, h.Value)
	}
	s.HasBody = len(msg.Payload.Parts) > 0 || (msg.Payload.Body != nil && msg.Payload.Body.Size > 0)
	return s
}

// extractBody returns the first text/plain or text/html body in the part tree,
// falling back to the part's own body data.
func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	for _, sub := range part.Parts {
		mime := strings.ToLower(sub.MimeType)
		if (mime == "text/plain" || mime == "text/html") && sub.Body != nil && sub.Body.Data != "" {
			return decodeBase64URL(sub.Body.Data)
		}
	}
	for _, sub := range part.Parts {
		if strings.HasPrefix(strings.ToLower(sub.MimeType), "multipart/") {
			if body := extractBody(sub); body != "" {
				return body
			}
		}
	}
	if part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	return ""
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}

// isTransient reports whether err is a rate-limit or server-side failure.
func isTransient(err error) bool {
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return googleErr.Code == http.StatusTooManyRequests || googleErr.Code >= http.StatusInternalServerError
	}
	return false
}

func isNotFound(err error) bool {
	var googleErr *googleapi.Error
	return errors.As(err, &googleErr) && googleErr.Code == http.StatusNotFound
}
