package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unigo-labs/unigo-chat/internal/identity"
	"github.com/unigo-labs/unigo-chat/internal/onboarding"
	"github.com/unigo-labs/unigo-chat/internal/render"
	"github.com/unigo-labs/unigo-chat/internal/reveal"
	"github.com/unigo-labs/unigo-chat/internal/session"
)

// WidgetConfig is the client-facing configuration.
type WidgetConfig struct {
	QuestionSet   onboarding.QuestionSet
	Autostart     bool
	RevealEnabled bool
}

// WidgetHandler serves the chat widget API.
type WidgetHandler struct {
	sessions *session.Manager
	cfg      WidgetConfig
	logger   *slog.Logger
}

// NewWidgetHandler creates a widget handler.
func NewWidgetHandler(sessions *session.Manager, cfg WidgetConfig, logger *slog.Logger) *WidgetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WidgetHandler{sessions: sessions, cfg: cfg, logger: logger}
}

type submitRequest struct {
	Text string `json:"text"`
}

type loadRequest struct {
	OnConflict string `json:"on_conflict"`
}

// RegisterRoutes registers widget routes.
func (h *WidgetHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/widget", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Post("/session", h.Bootstrap)
		r.Group(func(r chi.Router) {
			r.Use(requireTab)
			r.Get("/state", h.GetState)
			r.Post("/messages", h.Submit)
			r.Post("/reset", h.Reset)
			r.Get("/conversations", h.ListConversations)
			r.Post("/conversations/{id}/load", h.LoadConversation)
			r.Post("/summarize", h.Summarize)
		})
	})
}

func requireTab(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity.TabIDFromContext(r.Context()) == "" {
			Error(w, http.StatusBadRequest, "tab id is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func keyFromContext(ctx context.Context) session.Key {
	return session.Key{
		Device: identity.DeviceIDFromContext(ctx),
		Tab:    identity.TabIDFromContext(ctx),
	}
}

// GetConfig returns the questionnaire and display settings.
func (h *WidgetHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"question_set":   h.cfg.QuestionSet.Name,
		"question_count": h.cfg.QuestionSet.Len(),
		"questions":      h.cfg.QuestionSet.Questions,
		"autostart":      h.cfg.Autostart,
		"reveal_enabled": h.cfg.RevealEnabled,
	})
}

// Bootstrap handles POST /api/widget/session: the page-load session build,
// streamed as frames. A tab without an ID gets one minted.
func (h *WidgetHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if identity.TabIDFromContext(ctx) == "" {
		ctx = identity.WithTabID(ctx, identity.NewTabID())
	}
	key := keyFromContext(ctx)
	w.Header().Set(identity.TabHeaderName, key.Tab)

	h.stream(w, r.WithContext(ctx), func(opCtx context.Context, view *render.StreamView) (any, error) {
		return h.sessions.Bootstrap(opCtx, key, view), nil
	})
}

// Submit handles POST /api/widget/messages.
func (h *WidgetHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key := keyFromContext(r.Context())
	slog.Info("Widget message", "tab", key.String(), "message_length", len(req.Text))

	h.stream(w, r, func(opCtx context.Context, view *render.StreamView) (any, error) {
		var snap session.Snapshot
		err := h.sessions.Do(opCtx, key, view, func(c *session.Controller) error {
			c.Submit(opCtx, req.Text, view)
			snap = c.Snapshot(opCtx)
			return nil
		})
		return snap, err
	})
}

// Reset handles POST /api/widget/reset.
func (h *WidgetHandler) Reset(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())
	h.stream(w, r, func(opCtx context.Context, view *render.StreamView) (any, error) {
		var snap session.Snapshot
		err := h.sessions.Do(opCtx, key, view, func(c *session.Controller) error {
			c.Reset(opCtx, view)
			snap = c.Snapshot(opCtx)
			return nil
		})
		return snap, err
	})
}

// GetState handles GET /api/widget/state.
func (h *WidgetHandler) GetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var snap session.Snapshot
	err := h.sessions.Do(ctx, keyFromContext(ctx), render.Discard{}, func(c *session.Controller) error {
		snap = c.Snapshot(ctx)
		return nil
	})
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read session")
		return
	}
	JSON(w, http.StatusOK, snap)
}

// ListConversations handles GET /api/widget/conversations.
func (h *WidgetHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out interface{}
	err := h.sessions.Do(ctx, keyFromContext(ctx), render.Discard{}, func(c *session.Controller) error {
		list, err := c.Conversations(ctx)
		out = map[string]interface{}{"conversations": list}
		return err
	})
	switch {
	case errors.Is(err, session.ErrGuest):
		Error(w, http.StatusForbidden, session.GuestConversationsMsg)
	case err != nil:
		h.logger.Error("Failed to list conversations", "error", err)
		Error(w, http.StatusBadGateway, "failed to list conversations")
	default:
		JSON(w, http.StatusOK, out)
	}
}

// LoadConversation handles POST /api/widget/conversations/{id}/load.
func (h *WidgetHandler) LoadConversation(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	onConflict, err := session.ParseConflict(req.OnConflict)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	opCtx := context.WithoutCancel(ctx)
	id := chi.URLParam(r, "id")
	var snap session.Snapshot
	err = h.sessions.Do(opCtx, keyFromContext(ctx), render.Discard{}, func(c *session.Controller) error {
		if err := c.LoadConversation(opCtx, id, onConflict, render.Discard{}); err != nil {
			return err
		}
		snap = c.Snapshot(opCtx)
		return nil
	})

	switch {
	case err == nil:
		JSON(w, http.StatusOK, snap)
	case errors.Is(err, session.ErrConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrLoadCancelled):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrInvalidConversation):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		Error(w, http.StatusBadGateway, "failed to load conversation")
	}
}

// Summarize handles POST /api/widget/summarize.
func (h *WidgetHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var html string
	err := h.sessions.Do(ctx, keyFromContext(ctx), render.Discard{}, func(c *session.Controller) error {
		var err error
		html, err = c.Summarize(ctx, render.Discard{})
		return err
	})
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"summary_html": html})
	case errors.Is(err, session.ErrNothingToSummarize):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Failed to summarize conversation", "error", err)
		Error(w, http.StatusBadGateway, "failed to summarize conversation")
	}
}

// stream runs op with a frame view over SSE and ends with a done frame
// carrying op's result. The operation outlives a disconnecting client so the
// session state stays consistent.
func (h *WidgetHandler) stream(w http.ResponseWriter, r *http.Request, op func(context.Context, *render.StreamView) (any, error)) {
	sse, err := render.NewSSEWriter(w)
	if err != nil {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.WriteHeader(http.StatusOK)

	view := render.NewStreamView(r.Context(), sse, reveal.NewPacer(h.cfg.RevealEnabled), h.logger)
	result, err := op(context.WithoutCancel(r.Context()), view)
	if err != nil {
		h.logger.Error("Widget operation failed", "path", r.URL.Path, "error", err)
		view.Emit(render.Frame{Type: render.FrameError, Error: "operation failed"})
		return
	}
	view.Emit(render.Frame{Type: render.FrameDone, Data: result})
}
