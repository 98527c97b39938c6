// Package server exposes the launcher's HTTP surface: token issuance, session launch
// and job inspection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/chriscow/interview-agent/internal/metrics"
	"github.com/chriscow/interview-agent/pkg/interview"
	"github.com/chriscow/interview-agent/pkg/launch"
	"github.com/chriscow/interview-agent/pkg/rooms"
	"github.com/chriscow/interview-agent/pkg/token"
)

const writeWait = 10 * time.Second

// TokenIssuer mints room access tokens. *token.Issuer satisfies it.
type TokenIssuer interface {
	Issue(identity, room string) (string, error)
}

// RoomNamer picks an unused room name. *rooms.Generator satisfies it.
type RoomNamer interface {
	Generate(ctx context.Context) (string, error)
}

// Launcher starts and tracks agent workers. *launch.Pool satisfies it.
type Launcher interface {
	Submit(ctx context.Context, spec launch.Spec) (launch.Job, error)
	Get(id string) (launch.Job, error)
	Subscribe(id string) (<-chan launch.Job, func(), error)
}

// Deps lists what the server is built from. Metrics and Logger are optional.
type Deps struct {
	Tokens   TokenIssuer
	Rooms    RoomNamer
	Launcher Launcher
	Plan     interview.Plan

	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

type Server struct {
	tokens   TokenIssuer
	rooms    RoomNamer
	launcher Launcher
	plan     interview.Plan
	origins  []string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(d Deps) *Server {
	s := &Server{
		tokens:   d.Tokens,
		rooms:    d.Rooms,
		launcher: d.Launcher,
		plan:     d.Plan,
		origins:  d.AllowedOrigins,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			return s.allowOrigin(origin)
		},
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/getToken", s.handleGetToken)
	r.Post("/form", s.handleForm)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/jobs/{id}/events", s.handleJobEvents)
	return r
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = token.DefaultIdentity
	}
	room, ok := s.resolveRoom(w, r, q.Get("room"))
	if !ok {
		s.countToken("room_unavailable")
		return
	}

	jwt, err := s.tokens.Issue(name, room)
	if err != nil {
		s.countToken("error")
		if errors.Is(err, token.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("Issue token", slog.String("room", room), slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "token_failed", "could not sign token")
		return
	}
	s.countToken("ok")
	respondJSON(w, http.StatusOK, map[string]string{"token": jwt})
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	plan := s.plan.WithCompany(strings.TrimSpace(r.PostForm.Get("company")))
	if err := plan.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_plan", err.Error())
		return
	}
	room, ok := s.resolveRoom(w, r, r.PostForm.Get("room"))
	if !ok {
		return
	}

	job, err := s.launcher.Submit(r.Context(), launch.Spec{Room: room, Plan: plan})
	switch {
	case err == nil:
	case errors.Is(err, launch.ErrPoolFull):
		respondError(w, http.StatusServiceUnavailable, "pool_full", "too many interviews in progress, try again later")
		return
	default:
		s.logger.Error("Launch agent worker",
			slog.String("room", room),
			slog.String("candidate", r.PostForm.Get("name")),
			slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "launch_failed", "could not start the interviewer")
		return
	}

	s.logger.Info("Interview launched",
		slog.String("job", job.ID),
		slog.String("room", room),
		slog.String("candidate", r.PostForm.Get("name")),
		slog.String("company", plan.Company))

	target := url.URL{Path: "/interview", RawQuery: url.Values{"room": {room}, "job": {job.ID}}.Encode()}
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.launcher.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_job", "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleJobEvents streams job snapshots until the job is terminal or the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updates, unsubscribe, err := s.launcher.Subscribe(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_job", "job not found")
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// the client never sends; reading only detects the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(job); err != nil {
				return
			}
		}
	}
}

// resolveRoom returns requested, or a freshly generated name when it is empty. On
// failure the response has been written.
func (s *Server) resolveRoom(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	if room := strings.TrimSpace(requested); room != "" {
		return room, true
	}
	room, err := s.rooms.Generate(r.Context())
	if err != nil {
		s.logger.Error("Generate room name", slog.String("error", err.Error()))
		if errors.Is(err, rooms.ErrBackendUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "room_backend_unavailable", "room service is unavailable")
		} else {
			respondError(w, http.StatusInternalServerError, "room_generation_failed", err.Error())
		}
		return "", false
	}
	if s.metrics != nil {
		s.metrics.RoomsGenerated.Inc()
	}
	return room, true
}

func (s *Server) countToken(outcome string) {
	if s.metrics != nil {
		s.metrics.TokensIssued.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) allowOrigin(origin string) bool {
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// cors answers preflight requests and sets Access-Control headers for allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				reqHeaders := r.Header.Get("Access-Control-Request-Headers")
				if reqHeaders == "" {
					reqHeaders = "Content-Type"
				}
				h.Set("Access-Control-Allow-Headers", reqHeaders)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}
