// Package api exposes the haiku service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johncui/haiku/pkg/haiku"
	"github.com/johncui/haiku/pkg/model"
)

// SessionHeader carries the session key of a memory-aware request.
const SessionHeader = "X-Haiku-Session"

// Mode selects which route family is served.
type Mode string

const (
	ModeMemory    Mode = "memory"
	ModeStateless Mode = "stateless"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeMemory, ModeStateless:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q: must be \"memory\" or \"stateless\"", s)
	}
}

// Service is the part of haiku.Service the endpoints use.
type Service interface {
	Generate(ctx context.Context, subject string) (string, error)
	GenerateFor(ctx context.Context, sessionID, subject string) (string, error)
	Recall(ctx context.Context, sessionID string) (string, error)
	History(ctx context.Context, sessionID string) ([]model.Exchange, error)
}

var _ Service = (*haiku.Service)(nil)

// Options configures NewRouter.
type Options struct {
	Mode           Mode
	DefaultSession string
	Logger         *slog.Logger
}

type handler struct {
	svc            Service
	defaultSession string
	logger         *slog.Logger
}

// NewRouter builds the chi router for the given mode.
func NewRouter(svc Service, opt Options) http.Handler {
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if opt.DefaultSession == "" {
		opt.DefaultSession = haiku.DefaultSession
	}
	if opt.Mode == "" {
		opt.Mode = ModeMemory
	}
	h := &handler{svc: svc, defaultSession: opt.DefaultSession, logger: opt.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	switch opt.Mode {
	case ModeStateless:
		r.Get("/haiku", h.write)
	default:
		r.Route("/haiku", func(r chi.Router) {
			r.Get("/write", h.writeAndStore)
			r.Get("/remind", h.remind)
			r.Get("/history", h.history)
		})
	}
	return r
}

func (h *handler) write(w http.ResponseWriter, req *http.Request) {
	text, err := h.svc.Generate(req.Context(), subjectParam(req))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	writeText(w, text)
}

func (h *handler) writeAndStore(w http.ResponseWriter, req *http.Request) {
	text, err := h.svc.GenerateFor(req.Context(), h.sessionID(req), subjectParam(req))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	writeText(w, text)
}

func (h *handler) remind(w http.ResponseWriter, req *http.Request) {
	text, err := h.svc.Recall(req.Context(), h.sessionID(req))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	writeText(w, text)
}

func (h *handler) history(w http.ResponseWriter, req *http.Request) {
	exchanges, err := h.svc.History(req.Context(), h.sessionID(req))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	writeJSON(w, exchanges)
}

// subjectParam substitutes the default only when the parameter is absent.
func subjectParam(req *http.Request) string {
	q := req.URL.Query()
	if !q.Has("subject") {
		return haiku.DefaultSubject
	}
	return q.Get("subject")
}

func (h *handler) sessionID(req *http.Request) string {
	if v := strings.TrimSpace(req.Header.Get(SessionHeader)); v != "" {
		return v
	}
	if v := strings.TrimSpace(req.URL.Query().Get("session")); v != "" {
		return v
	}
	return h.defaultSession
}

func (h *handler) writeError(w http.ResponseWriter, req *http.Request, err error) {
	var perr *model.ProviderError
	switch {
	case errors.Is(err, model.ErrEmptySubject):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrSessionNotFound):
		http.Error(w, "no haiku in this session yet", http.StatusNotFound)
	case errors.As(err, &perr):
		h.logger.Error("provider call failed", "req_id", middleware.GetReqID(req.Context()), "err", err)
		http.Error(w, "haiku provider unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("request failed", "req_id", middleware.GetReqID(req.Context()), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
