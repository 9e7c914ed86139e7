package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jyothri/inboxsweep/cache"
	"github.com/jyothri/inboxsweep/collect"
	"github.com/jyothri/inboxsweep/model"
	"github.com/jyothri/inboxsweep/notification"
)

// Deps are the components the HTTP surface drives.
type Deps struct {
	Fetcher *collect.Fetcher
	Actions *collect.Actions
	Cache   *cache.Cache
	Tracker *notification.Tracker
}

type handlers struct {
	Deps
}

func api(r *mux.Router, deps Deps) {
	h := &handlers{Deps: deps}
	// Handle API routes
	api := r.PathPrefix("/api/").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.Use(RequestSizeLimitMiddleware(DefaultMaxBodySize))
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, map[string]bool{"ok": true}, http.StatusOK)
	})
	api.HandleFunc("/status", h.StatusHandler).Methods("GET")
	api.HandleFunc("/groups", h.ListGroupsHandler).Methods("GET")
	api.HandleFunc("/messages/{message_id}", h.PreviewHandler).Methods("GET")
	api.Handle("/actions", RequestSizeLimitMiddleware(ActionRequestMaxBodySize)(http.HandlerFunc(h.ActionHandler))).Methods("POST")
	api.HandleFunc("/fetch/start", h.StartFetchHandler).Methods("POST")
	api.HandleFunc("/fetch/pause", h.PauseFetchHandler).Methods("POST")
	api.HandleFunc("/fetch/resume", h.ResumeFetchHandler).Methods("POST")
	api.HandleFunc("/fetch/more", h.FetchMoreHandler).Methods("POST")
	api.HandleFunc("/cache/clear", h.ClearCacheHandler).Methods("POST")
}

func (h *handlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, newStatusResponse(h.Tracker.Snapshot()), http.StatusOK)
}

func (h *handlers) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Fetcher.Listing(r.Context())
	if err != nil {
		slog.Error("Failed to build listing", "error", err)
		writeError(w, http.StatusBadGateway, "SOURCE_ERROR", "Failed to list unread messages", err)
		return
	}
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	writeJSONResponse(w, GroupsResponse{Groups: groups, Count: total}, http.StatusOK)
}

func (h *handlers) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	messageId := mux.Vars(r)["message_id"]
	preview, err := h.Fetcher.Preview(r.Context(), messageId)
	if err != nil {
		slog.Error("Failed to load preview",
			"message_id", messageId,
			"error", err)
		writeError(w, http.StatusBadGateway, "SOURCE_ERROR", "Failed to load message", err)
		return
	}
	writeJSONResponse(w, preview, http.StatusOK)
}

func (h *handlers) ActionHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeActionRequest(r)
	if handleMaxBytesError(w, r, err, ActionRequestMaxBodySize) {
		return
	}
	if err != nil {
		slog.Error("Failed to decode action request", "error", err)
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	kind, err := model.ParseAction(req.ActionType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNKNOWN_ACTION", fmt.Sprintf("Unknown action type: %s", req.ActionType), nil)
		return
	}

	res, err := h.Actions.Apply(r.Context(), req.IDs, kind)
	if errors.Is(err, collect.ErrUnknownAction) {
		writeError(w, http.StatusBadRequest, "UNKNOWN_ACTION", err.Error(), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ACTION_FAILED", "Failed to apply action", err)
		return
	}
	writeJSONResponse(w, res, http.StatusOK)
}

func (h *handlers) StartFetchHandler(w http.ResponseWriter, r *http.Request) {
	h.respondToStart(w, h.Fetcher.StartSaved())
}

func (h *handlers) ResumeFetchHandler(w http.ResponseWriter, r *http.Request) {
	h.respondToStart(w, h.Fetcher.Resume())
}

func (h *handlers) respondToStart(w http.ResponseWriter, err error) {
	if errors.Is(err, collect.ErrFetchInProgress) {
		writeError(w, http.StatusConflict, "FETCH_IN_PROGRESS", "A fetch is already running", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FETCH_FAILED", "Failed to start fetch", err)
		return
	}
	writeJSONResponse(w, newStatusResponse(h.Tracker.Snapshot()), http.StatusAccepted)
}

func (h *handlers) PauseFetchHandler(w http.ResponseWriter, r *http.Request) {
	h.Fetcher.Pause()
	writeJSONResponse(w, newStatusResponse(h.Tracker.Snapshot()), http.StatusAccepted)
}

func (h *handlers) FetchMoreHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.Fetcher.FetchMore(r.Context())
	if err != nil {
		slog.Error("Failed to fetch more", "error", err)
		writeError(w, http.StatusBadGateway, "SOURCE_ERROR", "Failed to fetch more messages", err)
		return
	}
	writeJSONResponse(w, res, http.StatusOK)
}

func (h *handlers) ClearCacheHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Cache.Clear(r.Context()); err != nil {
		slog.Error("Failed to clear cache", "error", err)
		writeError(w, http.StatusInternalServerError, "CACHE_ERROR", "Failed to clear cache", err)
		return
	}
	slog.Info("Cache cleared")
	writeJSONResponse(w, map[string]bool{"ok": true}, http.StatusOK)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path), nil)
}

// decodeActionRequest accepts a JSON body or a form post.
func decodeActionRequest(r *http.Request) (ActionRequest, error) {
	var req ActionRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return ActionRequest{}, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return ActionRequest{}, err
	}
	req.IDs = append(r.PostForm["ids"], r.PostForm["email_ids"]...)
	req.ActionType = r.PostForm.Get("actionType")
	if req.ActionType == "" {
		req.ActionType = r.PostForm.Get("action_type")
	}
	return req, nil
}

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")

	serializedBody, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal JSON", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(statusCode)

	if _, err := w.Write(serializedBody); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

type StatusResponse struct {
	Status        model.Status `json:"status"`
	Fetched       int          `json:"fetched"`
	Total         int          `json:"total"`
	Grouped       int          `json:"grouped"`
	LastFetchTime string       `json:"lastFetchTime"`
	Error         string       `json:"error,omitempty"`
}

func newStatusResponse(p model.FetchProgress) StatusResponse {
	resp := StatusResponse{
		Status:  p.Status(),
		Fetched: p.FetchedCount,
		Total:   p.TotalEstimate,
		Grouped: p.GroupCount,
	}
	if !p.LastFetch.IsZero() {
		resp.LastFetchTime = p.LastFetch.UTC().Format(time.RFC3339)
	}
	if resp.Status == model.StatusError {
		resp.Error = p.LastError
	}
	return resp
}

type GroupsResponse struct {
	Groups []model.DomainGroup `json:"groups"`
	Count  int                 `json:"count"`
}

type ActionRequest struct {
	IDs        []string `json:"ids"`
	ActionType string   `json:"actionType"`
}
