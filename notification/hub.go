package notification

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jyothri/inboxsweep/model"
)

const subscriberBuffer = 8

// Hub fans progress updates out to subscribers. Publishing never blocks: a
// subscriber that is not keeping up misses intermediate updates.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan model.FetchProgress
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan model.FetchProgress)}
}

// Subscribe registers a new subscriber and returns its key and channel.
func (h *Hub) Subscribe() (string, <-chan model.FetchProgress) {
	key := uuid.NewString()
	ch := make(chan model.FetchProgress, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[key] = ch
	h.mu.Unlock()
	return key, ch
}

// Unsubscribe closes the subscriber's channel. Unknown keys are ignored.
func (h *Hub) Unsubscribe(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[key]; ok {
		close(ch)
		delete(h.subscribers, key)
	}
}

func (h *Hub) Publish(progress model.FetchProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, ch := range h.subscribers {
		pushToSubscriber(key, ch, progress)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func pushToSubscriber(key string, subscriber chan<- model.FetchProgress, progress model.FetchProgress) {
	select {
	case subscriber <- progress:
	default:
		slog.Debug("Subscriber is behind, dropping progress update", "subscriber", key)
	}
}
