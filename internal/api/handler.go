package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"agentdeck/internal/customize"
	"agentdeck/internal/eventbus"
	"agentdeck/internal/jobs"
	"agentdeck/internal/notifier"
	"agentdeck/internal/quiet"
	"agentdeck/internal/storage"
	logx "agentdeck/pkg/logx"
)

// Handler is the request/response boundary the presentation layer talks
// to. It owns no job state; every read re-derives through the job service.
type Handler struct {
	svc    *jobs.Service
	custom *customize.Service
	notify *notifier.Service
	store  storage.Store // nil when persistence is disabled
	bus    eventbus.Bus
	log    logx.Logger

	// defaults seeds from the config file and tracks every accepted PUT,
	// so reads reflect writes even when persistence is disabled.
	defaultsMu sync.RWMutex
	defaults   storage.Settings
}

func NewHandler(svc *jobs.Service, custom *customize.Service, notify *notifier.Service,
	store storage.Store, bus eventbus.Bus, log logx.Logger, defaults storage.Settings) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{
		svc:      svc,
		custom:   custom,
		notify:   notify,
		store:    store,
		bus:      bus,
		log:      log,
		defaults: defaults,
	}
}

type logsResponse struct {
	Content      string     `json:"content"`
	LastModified *time.Time `json:"last_modified"`
}

type customizationBody struct {
	DisplayName string `json:"display_name"`
}

// ---- Jobs ----

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// refreshJobs is semantically identical to listJobs; the separate route
// exists for caller intent (loading-state UX) only.
func (h *Handler) refreshJobs(w http.ResponseWriter, r *http.Request) {
	h.listJobs(w, r)
}

func (h *Handler) toggleJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res := h.svc.Toggle(r.Context(), id)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) runJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res := h.svc.Run(r.Context(), id)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) jobLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	lines := 0
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, errors.New("lines must be a non-negative integer"))
			return
		}
		lines = n
	}

	tail, err := h.svc.Logs(r.Context(), id, lines)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, logsResponse{Content: tail.Content, LastModified: tail.LastModified})
}

// windowVisible is the one-way visibility trigger: no payload, no result
// beyond acknowledgement. It only nudges the poller.
func (h *Handler) windowVisible(w http.ResponseWriter, _ *http.Request) {
	h.bus.Publish(eventbus.Event{Type: eventbus.TypeRefreshRequested})
	w.WriteHeader(http.StatusNoContent)
}

// ---- Settings ----

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.currentSettings(r))
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var s storage.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	win := quiet.Window{Enabled: s.FocusMode.Enabled, Start: s.FocusMode.Start, End: s.FocusMode.End}
	if err := win.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if h.store != nil {
		if err := h.store.PutSettings(r.Context(), s); err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	// Apply immediately; the next refresh uses the new patterns.
	h.svc.SetPatterns(s.Patterns)
	h.notify.SetWindow(win)

	// The accepted blob becomes the fallback, so a GET after a PUT
	// returns the written settings even without a store.
	h.defaultsMu.Lock()
	h.defaults = s
	h.defaultsMu.Unlock()

	h.writeJSON(w, http.StatusOK, s)
}

// currentSettings prefers the persisted blob and falls back to the config
// file defaults.
func (h *Handler) currentSettings(r *http.Request) storage.Settings {
	if h.store != nil {
		if s, ok, err := h.store.GetSettings(r.Context()); err == nil && ok {
			return s
		}
	}
	h.defaultsMu.RLock()
	defer h.defaultsMu.RUnlock()
	return h.defaults
}

// ---- Customizations ----

func (h *Handler) getCustomization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, ok, err := h.custom.Get(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrDisabled) {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusOK, customizationBody{})
		return
	}
	h.writeJSON(w, http.StatusOK, customizationBody{DisplayName: c.DisplayName})
}

func (h *Handler) putCustomization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body customizationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.custom.Set(r.Context(), id, body.DisplayName); err != nil {
		if errors.Is(err, storage.ErrDisabled) {
			h.writeError(w, http.StatusConflict, errors.New("persistence is disabled; customizations cannot be saved"))
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) deleteCustomization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.custom.Set(r.Context(), id, ""); err != nil && !errors.Is(err, storage.ErrDisabled) {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Misc ----

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("response encode failed", logx.Err(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, err error) {
	h.writeJSON(w, code, jobs.OpResult{Success: false, Message: err.Error()})
}
