package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jyothri/inboxsweep/model"
	"github.com/jyothri/inboxsweep/notification"
)

const sseHeartbeat = 4 * time.Second

func sse(r *mux.Router, tracker *notification.Tracker) {
	sse := r.PathPrefix("/sse").Subrouter()
	sse.HandleFunc("/events", sseHandler(tracker))
}

// sseHandler streams progress: the current state on connect, every update
// while subscribed, and the current state again on each heartbeat.
func sseHandler(tracker *notification.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		lastEventId := r.Header.Get("Last-Event-Id")
		key, updates := tracker.Hub().Subscribe()
		defer tracker.Hub().Unsubscribe(key)

		rc := http.NewResponseController(w)
		clientGone := r.Context().Done()
		ticker := time.NewTicker(sseHeartbeat)
		defer ticker.Stop()

		slog.Info("Client connected", "subscriber", key, "last_event_id", lastEventId)
		start := time.Now()
		if err := writeProgressEvent(w, rc, tracker.Snapshot()); err != nil {
			slog.Warn("Unable to write", "subscriber", key, "error", err)
			return
		}
		for {
			select {
			case <-clientGone:
				slog.Info("Client disconnected", "subscriber", key, "duration", time.Since(start))
				return
			case p, ok := <-updates:
				if !ok {
					return
				}
				if err := writeProgressEvent(w, rc, p); err != nil {
					slog.Warn("Unable to write", "subscriber", key, "error", err)
					return
				}
			case <-ticker.C:
				if err := writeProgressEvent(w, rc, tracker.Snapshot()); err != nil {
					slog.Warn("Unable to write", "subscriber", key, "error", err)
					return
				}
			}
		}
	}
}

func writeProgressEvent(w http.ResponseWriter, rc *http.ResponseController, p model.FetchProgress) error {
	data, err := json.Marshal(newStatusResponse(p))
	if err != nil {
		return err
	}
	timestamp := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	if _, err := fmt.Fprintf(w, "event:progress\nretry: 10000\nid:%s\ndata:%s\n\n", timestamp, data); err != nil {
		return err
	}
	rc.SetWriteDeadline(time.Time{})
	return rc.Flush()
}
