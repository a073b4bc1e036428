package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/auilabs/aui/internal/config"
	"github.com/auilabs/aui/internal/observability"
	"github.com/auilabs/aui/internal/progress"
	"github.com/auilabs/aui/internal/realtime"
)

type Server struct {
	cfg      config.Config
	conns    *realtime.ConnRegistry
	events   *realtime.EventRegistry
	tracker  *progress.Tracker
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, conns *realtime.ConnRegistry, events *realtime.EventRegistry, tracker *progress.Tracker, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		conns:   conns,
		events:  events,
		tracker: tracker,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot subscribe to a user's
				// channels if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Get("/ws/{channelID}", s.handleChannelWS)
	r.Get("/events/{channelID}", s.handleChannelEvents)

	r.Post("/v1/progress", s.handleCreateTask)
	r.Get("/v1/progress", s.handleListTasks)
	r.Get("/v1/progress/{taskID}", s.handleGetTask)
	r.Put("/v1/progress/{taskID}", s.handleUpdateTask)
	r.Post("/v1/progress/reap", s.handleReapTasks)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "aui",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
