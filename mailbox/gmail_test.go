package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type fakeGmailAPI struct {
	mu       sync.Mutex
	modified map[string][]string
	trashed  []string
}

func (f *fakeGmailAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case path == "" && r.Method == http.MethodGet:
			assert.Equal(t, "is:unread", r.URL.Query().Get("q"))
			if r.URL.Query().Get("pageToken") == "" {
				writeJSON(w, map[string]any{
					"messages":           []map[string]string{{"id": "m1"}, {"id": "gone"}, {"id": "m2"}},
					"nextPageToken":      "p2",
					"resultSizeEstimate": 40,
				})
				return
			}
			writeJSON(w, map[string]any{"messages": []map[string]string{{"id": "m3"}}})
		case path == "/gone":
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"error": map[string]any{"code": 404, "message": "Not Found"}})
		case strings.HasSuffix(path, "/modify"):
			var req gmail.ModifyMessageRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.mu.Lock()
			f.modified[strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/modify")] = req.RemoveLabelIds
			f.mu.Unlock()
			writeJSON(w, map[string]any{"id": "x"})
		case strings.HasSuffix(path, "/trash"):
			f.mu.Lock()
			f.trashed = append(f.trashed, strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/trash"))
			f.mu.Unlock()
			writeJSON(w, map[string]any{"id": "x"})
		default:
			id := strings.TrimPrefix(path, "/")
			writeJSON(w, map[string]any{
				"id":      id,
				"snippet": "snippet of " + id,
				"payload": map[string]any{
					"mimeType": "multipart/alternative",
					"headers": []map[string]string{
						{"name": "From", "value": "News <news@" + id + ".com>"},
						{"name": "Subject", "value": "hello " + id},
					},
					"parts": []map[string]any{
						{"mimeType": "text/plain", "body": map[string]any{
							"size": 5,
							"data": base64.URLEncoding.EncodeToString([]byte("body " + id)),
						}},
					},
				},
			})
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGmail(t *testing.T) (*Gmail, *fakeGmailAPI) {
	t.Helper()
	api := &fakeGmailAPI{modified: map[string][]string{}}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return newGmail(svc, GmailConfig{RequestsPerSecond: 1000, Burst: 100}), api
}

func TestGmailListUnreadHydratesInOrder(t *testing.T) {
	g, _ := newTestGmail(t)

	page, err := g.ListUnread(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Equal(t, "p2", page.NextPageToken)
	assert.Equal(t, 40, page.ResultSizeEstimate)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.Equal(t, "m2", page.Messages[1].ID)
	assert.Equal(t, "News <news@m1.com>", page.Messages[0].Headers.Get("from", ""))

	last, err := g.ListUnread(context.Background(), "p2", 50)
	require.NoError(t, err)
	assert.Empty(t, last.NextPageToken)
	require.Len(t, last.Messages, 1)
}

func TestGmailGetMessage(t *testing.T) {
	g, _ := newTestGmail(t)

	d, err := g.GetMessage(context.Background(), "m7")
	require.NoError(t, err)
	assert.Equal(t, "body m7", d.Body)
	assert.Equal(t, "hello m7", d.Headers.Get("Subject", ""))
}

func TestGmailModifyAndTrash(t *testing.T) {
	g, api := newTestGmail(t)
	ctx := context.Background()

	require.NoError(t, g.ModifyLabels(ctx, "a", []string{LabelUnread}))
	require.NoError(t, g.ModifyLabels(ctx, "b", []string{LabelInbox}))
	require.NoError(t, g.Trash(ctx, "c"))

	assert.Equal(t, []string{"UNREAD"}, api.modified["a"])
	assert.Equal(t, []string{"INBOX"}, api.modified["b"])
	assert.Equal(t, []string{"c"}, api.trashed)
}

func TestExtractBody(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

	nested := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{MimeType: "application/pdf", Body: &gmail.MessagePartBody{Data: enc("%PDF")}},
			{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<p>hi</p>")}},
			}},
		},
	}
	assert.Equal(t, "<p>hi</p>", extractBody(nested))

	single := &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("plain")}}
	assert.Equal(t, "plain", extractBody(single))

	assert.Empty(t, extractBody(&gmail.MessagePart{MimeType: "text/plain"}))
	assert.Empty(t, extractBody(nil))
}

func TestSummaryFromMessage(t *testing.T) {
	msg := &gmail.Message{
		Id: "x",
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "FROM", Value: "a@b.com"},
				{Name: "from", Value: "ignored@b.com"},
			},
			Body: &gmail.MessagePartBody{Size: 3},
		},
	}
	s := summaryFromMessage(msg)
	assert.Equal(t, "a@b.com", s.Headers.Get("From", ""))
	assert.True(t, s.HasBody)

	bare := summaryFromMessage(&gmail.Message{Id: "y"})
	assert.False(t, bare.HasBody)
	assert.Equal(t, "fallback", bare.Headers.Get("Subject", "fallback"))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.True(t, isTransient(&googleapi.Error{Code: http.StatusServiceUnavailable}))
	assert.False(t, isTransient(&googleapi.Error{Code: http.StatusNotFound}))
	assert.False(t, isTransient(assert.AnError))
	assert.True(t, isNotFound(&googleapi.Error{Code: http.StatusNotFound}))
}
