package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/logger"
	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/prudhvinik1/lansync/internal/repositories"
	"github.com/prudhvinik1/lansync/internal/services"
	"go.uber.org/zap"
)

type collectionHandler struct {
	mirror Mirror
}

type collectionStatus struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Count   int    `json:"count"`
}

type recordsResponse struct {
	collectionStatus
	Source  string          `json:"source"`
	SavedAt *time.Time      `json:"saved_at,omitempty"`
	Records []models.Record `json:"records"`
}

func statusOf(name string, v livesync.View) collectionStatus {
	st := collectionStatus{
		Name:    name,
		State:   v.State.String(),
		Loading: v.Loading,
		Count:   len(v.Records),
	}
	if v.Err != nil {
		st.Error = v.Err.Error()
	}
	return st
}

// list handles GET /collections
func (h *collectionHandler) list(w http.ResponseWriter, r *http.Request) {
	names := h.mirror.Collections()
	out := make([]collectionStatus, 0, len(names))
	for _, name := range names {
		v, err := h.mirror.View(name)
		if err != nil {
			continue
		}
		out = append(out, statusOf(name, v))
	}
	writeJSON(w, http.StatusOK, out)
}

// status handles GET /collections/{name}
func (h *collectionHandler) status(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, err := h.mirror.View(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(name, v))
}

// records handles GET /collections/{name}/records. With ?source=snapshot
// the last persisted snapshot is served instead of the live view.
func (h *collectionHandler) records(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, err := h.mirror.View(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := recordsResponse{
		collectionStatus: statusOf(name, v),
		Source:           "live",
		Records:          v.Records,
	}
	if r.URL.Query().Get("source") == "snapshot" {
		snap, err := h.mirror.Snapshot(r.Context(), name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Source = "snapshot"
		resp.SavedAt = &snap.SavedAt
		resp.Records = snap.Records
		resp.Count = len(snap.Records)
	}
	if resp.Records == nil {
		resp.Records = []models.Record{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// record handles GET /collections/{name}/records/{id}
func (h *collectionHandler) record(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := h.mirror.Record(chi.URLParam(r, "name"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// journal handles GET /collections/{name}/journal?since=N&limit=M
func (h *collectionHandler) journal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseInt(q.Get("since"))
	if err != nil || since < 0 {
		writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
		return
	}
	limit, err := parseInt(q.Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	entries, err := h.mirror.Journal(r.Context(), chi.URLParam(r, "name"), since, int(limit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *collectionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownCollection):
		writeError(w, http.StatusNotFound, "unknown collection")
	case errors.Is(err, repositories.ErrNotFound):
		writeError(w, http.StatusNotFound, "no snapshot saved yet")
	case errors.Is(err, services.ErrJournalDisabled):
		writeError(w, http.StatusServiceUnavailable, "journal is not configured")
	default:
		logger.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
