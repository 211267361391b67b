// Package todos exposes the record store over the /api/todos JSON surface and
// publishes a change event after every successful write.
package todos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tasklist/internal/adapters/events"
	"tasklist/internal/auth"
	"tasklist/internal/blob"
	"tasklist/internal/core"
	"tasklist/pkg/domain"
)

// Handler serves the task list for the principal attached to each request.
type Handler struct {
	Store    domain.RecordStore
	Broker   events.Broker
	Archiver *blob.Archiver
	Metrics  core.MetricsRecorder
	Logger   core.Logger
	Now      func() time.Time
	// AllowedOrigins lists browser origins other than the serving host that
	// may call the API. They must authenticate with a bearer token.
	AllowedOrigins []string
}

// NewHandler constructs a handler around store. Broker, Archiver and the
// observability hooks are optional.
func NewHandler(store domain.RecordStore) *Handler {
	return &Handler{Store: store}
}

// NewRouter mounts the handler behind gate. metrics, when non-nil, is served
// at /metrics.
func NewRouter(h *Handler, gate domain.SessionGate, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.originGuard)
		r.Use(auth.Middleware(gate))
		r.Use(requirePrincipal)
		r.Route("/api/todos", func(r chi.Router) {
			r.Get("/", h.list)
			r.Post("/", h.create)
			r.Patch("/", h.patch)
			r.Put("/", h.put)
			r.Delete("/", h.remove)
			r.Get("/events", h.stream)
			r.Get("/archive", h.archives)
			r.Post("/archive", h.archive)
		})
	})
	return r
}

// originGuard refuses cross-origin requests from origins outside
// AllowedOrigins. Permitted cross-origin requests lose their cookies, so the
// session cookie only ever authenticates same-origin callers.
func (h *Handler) originGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if events.SameOrigin(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !events.OriginAllowed(r, h.AllowedOrigins) {
			h.logger().Warn("cross-origin request refused", "origin", r.Header.Get("Origin"), "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		r = r.Clone(r.Context())
		r.Header.Del("Cookie")
		next.ServeHTTP(w, r)
	})
}

func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type todoRequest struct {
	ID        string  `json:"id"`
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	var records []domain.Record
	err := h.observe(r.Context(), "list", func(ctx context.Context) (err error) {
		records, err = h.Store.List(ctx, p)
		return err
	})
	if err != nil {
		h.fail(w, err, "Failed to fetch todos")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if req.Text == nil || strings.TrimSpace(*req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	var created domain.Record
	err := h.observe(r.Context(), "create", func(ctx context.Context) (err error) {
		created, err = h.Store.Create(ctx, p, *req.Text)
		return err
	})
	if err != nil {
		h.fail(w, err, "Failed to add todo")
		return
	}
	h.publish(r.Context(), p, domain.ActionCreate, created.ID)
	writeJSON(w, http.StatusOK, created)
}

// patch toggles completion; a text member is applied too when present.
func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}
	h.update(w, r, req)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}
	if req.Text == nil || strings.TrimSpace(*req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	h.update(w, r, req)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, req todoRequest) {
	p, _ := auth.PrincipalFrom(r.Context())
	fields := domain.Fields{Text: req.Text, Completed: req.Completed}
	var updated domain.Record
	err := h.observe(r.Context(), "update", func(ctx context.Context) (err error) {
		updated, err = h.Store.UpdateFields(ctx, p, req.ID, fields)
		return err
	})
	if err != nil {
		h.fail(w, err, "Failed to update todo")
		return
	}
	h.publish(r.Context(), p, domain.ActionUpdate, updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	err := h.observe(r.Context(), "delete", func(ctx context.Context) error {
		return h.Store.Delete(ctx, p, req.ID)
	})
	if err != nil {
		h.fail(w, err, "Failed to delete todo")
		return
	}
	h.publish(r.Context(), p, domain.ActionDelete, req.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Todo deleted successfully"})
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	if h.Broker == nil {
		writeError(w, http.StatusNotFound, "change events not configured")
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	if err := events.Serve(w, r, h.Broker, p.ID, h.logger(), h.AllowedOrigins...); err != nil {
		h.logger().Warn("change stream ended", "owner", p.ID, "error", err)
	}
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	if h.Archiver == nil {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	var info blob.Info
	err := h.observe(r.Context(), "archive", func(ctx context.Context) error {
		records, err := h.Store.List(ctx, p)
		if err != nil {
			return err
		}
		info, err = h.Archiver.Save(ctx, p.ID, records)
		return err
	})
	if err != nil {
		h.fail(w, err, "Failed to archive todos")
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) archives(w http.ResponseWriter, r *http.Request) {
	if h.Archiver == nil {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	infos, err := h.Archiver.List(r.Context(), p.ID)
	if err != nil {
		h.fail(w, err, "Failed to list archives")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

func (h *Handler) publish(ctx context.Context, p domain.Principal, action domain.Action, id string) {
	if h.Broker == nil {
		return
	}
	change := domain.Change{OwnerID: p.ID, Action: action, RecordID: id, At: h.now()}
	if err := h.Broker.Publish(ctx, change); err != nil {
		h.logger().Warn("publish change failed", "owner", p.ID, "record", id, "error", err)
	}
}

func (h *Handler) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if h.Metrics != nil {
		h.Metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
	return err
}

// fail maps err onto a status. Store failures get the generic message so
// driver detail stays in the log.
func (h *Handler) fail(w http.ResponseWriter, err error, generic string) {
	status := StatusFor(err)
	switch status {
	case http.StatusUnauthorized:
		writeError(w, status, "Unauthorized")
	case http.StatusBadRequest:
		writeError(w, status, err.Error())
	case http.StatusNotFound:
		writeError(w, status, "Todo not found")
	default:
		h.logger().Error(generic, "error", err)
		writeError(w, status, generic)
	}
}

// StatusFor maps the domain error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logger() core.Logger {
	if h.Logger == nil {
		return discard{}
	}
	return h.Logger
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

func decode(w http.ResponseWriter, r *http.Request) (todoRequest, bool) {
	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
