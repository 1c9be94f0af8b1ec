package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pomodorod/internal/eventbus"
	"pomodorod/internal/notifier"
	"pomodorod/internal/pomodoro"
	logx "pomodorod/pkg/logx"
)

// Timer is the controller surface the API drives.
type Timer interface {
	Start(ctx context.Context) (pomodoro.Snapshot, error)
	Pause(ctx context.Context) (pomodoro.Snapshot, error)
	Resume(ctx context.Context) (pomodoro.Snapshot, error)
	Reset(ctx context.Context) (pomodoro.Snapshot, error)
	Toggle(ctx context.Context) (pomodoro.Snapshot, error)
	Snapshot() pomodoro.Snapshot
}

type Settings interface {
	Durations(ctx context.Context) pomodoro.Durations
	Set(ctx context.Context, k pomodoro.DurationKey, d time.Duration) (time.Duration, error)
	Clear(ctx context.Context) error
}

type Deps struct {
	Timer    Timer
	Settings Settings
	// Bus feeds /v1/timer/events.
	Bus eventbus.Bus
	// Health reports readiness for /healthz; nil means always healthy.
	Health func() error

	Token string
	Pprof bool
	// Heartbeat is the SSE keep-alive comment interval (default 15s).
	Heartbeat time.Duration
}

// NewRouter builds the chi handler tree.
func NewRouter(d Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	h := &handlers{d: d, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLog(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(d.Token))

		r.Route("/v1/timer", func(r chi.Router) {
			r.Get("/", h.snapshot)
			r.Get("/events", h.events)
			r.Post("/{action}", h.action)
		})
		r.Route("/v1/settings", func(r chi.Router) {
			r.Get("/", h.settings)
			r.Delete("/", h.clearSettings)
			r.Put("/{key}", h.setSetting)
		})
		if d.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

type handlers struct {
	d   Deps
	log logx.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.d.Health != nil {
		if err := h.d.Health(); err != nil {
			respondError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.d.Timer.Snapshot(), http.StatusOK)
}

func (h *handlers) action(w http.ResponseWriter, r *http.Request) {
	var fn func(context.Context) (pomodoro.Snapshot, error)
	switch chi.URLParam(r, "action") {
	case "start":
		fn = h.d.Timer.Start
	case "pause":
		fn = h.d.Timer.Pause
	case "resume":
		fn = h.d.Timer.Resume
	case "reset":
		fn = h.d.Timer.Reset
	case "toggle":
		fn = h.d.Timer.Toggle
	default:
		respondError(w, "unknown action", http.StatusNotFound)
		return
	}
	snap, err := fn(r.Context())
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, pomodoro.ErrBadCommand) {
			status = http.StatusBadRequest
		}
		respondError(w, err.Error(), status)
		return
	}
	respondJSON(w, snap, http.StatusOK)
}

func durationsJSON(d pomodoro.Durations) map[string]int64 {
	out := make(map[string]int64, len(pomodoro.SettingsKeys))
	for _, k := range pomodoro.SettingsKeys {
		out[string(k)] = d.Get(k).Milliseconds()
	}
	return out
}

func (h *handlers) settings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, durationsJSON(h.d.Settings.Durations(r.Context())), http.StatusOK)
}

func (h *handlers) clearSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Settings.Clear(r.Context()); err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, durationsJSON(h.d.Settings.Durations(r.Context())), http.StatusOK)
}

// setSetting accepts {"ms": 1500000} or {"minutes": 25}; the stored value is
// clamped and echoed back.
func (h *handlers) setSetting(w http.ResponseWriter, r *http.Request) {
	k, err := pomodoro.ParseDurationKey(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	var req struct {
		Ms      *int64 `json:"ms"`
		Minutes *int64 `json:"minutes"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var d time.Duration
	switch {
	case req.Ms != nil && req.Minutes == nil:
		d = pomodoro.FromMillis(*req.Ms)
	case req.Minutes != nil && req.Ms == nil:
		d = pomodoro.FromMinutes(*req.Minutes)
	default:
		respondError(w, "exactly one of ms or minutes is required", http.StatusBadRequest)
		return
	}
	got, err := h.d.Settings.Set(r.Context(), k, d)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"key": string(k), "ms": got.Milliseconds()}, http.StatusOK)
}

// events streams timer events as server-sent events. The first event is the
// current snapshot. A refused alert delivery is streamed too, so clients
// learn that alerts stopped.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if h.d.Bus == nil {
		respondError(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	ch, unsub := h.d.Bus.SubscribePrefix(64, pomodoro.TopicPrefix, pomodoro.TopicSettings, notifier.EventPermissionDenied)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", h.d.Timer.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	hb := time.NewTicker(h.d.Heartbeat)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-hb.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, e.Type, e.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			ah := r.Header.Get("Authorization")
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondError(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("dur", time.Since(start)),
				logx.String("req_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
