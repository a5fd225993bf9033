// Package reservations exposes the schedule store over HTTP.
//
//	GET    /api/schedule?view=current|origin|previous|upcoming&limit=N
//	GET    /api/schedule/active
//	POST   /api/reservations          JSON list of requests
//	DELETE /api/reservations/{id}
//	DELETE /api/reservations?id=a&id=b
//	GET    /api/diagnostics?id=&op=&start=&end=&limit=
package reservations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/groundsched/core/schedule"
	"github.com/kilianp07/groundsched/core/timerange"
	"github.com/kilianp07/groundsched/infra/diaglog"
)

// Store is the part of schedule.Store served by the handler.
type Store interface {
	Append(ctx context.Context, ranges ...timerange.TimeRange) (schedule.Mutation, error)
	Remove(ctx context.Context, ids ...string) (schedule.Mutation, error)
	Schedule() []timerange.TimeRange
	Origin() []timerange.TimeRange
	Previous() []timerange.TimeRange
	Upcoming(now time.Time, limit int) []timerange.TimeRange
	Active(now time.Time) (timerange.TimeRange, bool)
	Version() uint64
}

// DiagnosticQuerier reads the diagnostic history.
type DiagnosticQuerier interface {
	Query(ctx context.Context, q diaglog.Query) ([]schedule.DiagnosticRecord, error)
}

// MutationResponse is returned by POST and DELETE.
type MutationResponse struct {
	schedule.Mutation
	Messages  []string `json:"messages"`
	Persisted bool     `json:"persisted"`
}

// ScheduleResponse is returned by GET /api/schedule.
type ScheduleResponse struct {
	Version uint64                `json:"version"`
	View    string                `json:"view"`
	Ranges  []timerange.TimeRange `json:"ranges"`
}

type handler struct {
	store Store
	diag  DiagnosticQuerier
	now   func() time.Time
}

// NewHandler returns the HTTP API. Requests must include an Authorization
// header with "Bearer <token>" when token is non-empty. diag may be nil.
func NewHandler(store Store, diag DiagnosticQuerier, token string) http.Handler {
	h := &handler{store: store, diag: diag, now: time.Now}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/schedule", h.getSchedule)
	mux.HandleFunc("GET /api/schedule/active", h.getActive)
	mux.HandleFunc("POST /api/reservations", h.postReservations)
	mux.HandleFunc("DELETE /api/reservations/{id}", h.deleteReservation)
	mux.HandleFunc("DELETE /api/reservations", h.deleteReservations)
	mux.HandleFunc("GET /api/diagnostics", h.getDiagnostics)
	return requireToken(token, mux)
}

func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view := r.URL.Query().Get("view")
	var ranges []timerange.TimeRange
	switch view {
	case "", "current":
		view = "current"
		ranges = h.store.Schedule()
	case "origin":
		ranges = h.store.Origin()
	case "previous":
		ranges = h.store.Previous()
	case "upcoming":
		ranges = h.store.Upcoming(h.now(), limit)
	default:
		http.Error(w, "unknown view "+view, http.StatusBadRequest)
		return
	}
	if limit > 0 && len(ranges) > limit {
		ranges = ranges[:limit]
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Version: h.store.Version(), View: view, Ranges: ranges})
}

func (h *handler) getActive(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.store.Active(h.now())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rng)
}

func (h *handler) postReservations(w http.ResponseWriter, r *http.Request) {
	reqs, err := schedule.DecodeRequests(http.MaxBytesReader(w, r.Body, 1<<20), "json")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ranges, err := schedule.RequestsToRanges(reqs, schedule.NewID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := h.store.Append(r.Context(), ranges...)
	h.writeMutation(w, m, err, http.StatusCreated)
}

func (h *handler) deleteReservation(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.Remove(r.Context(), r.PathValue("id"))
	h.writeMutation(w, m, err, http.StatusOK)
}

// deleteReservations removes every id query value in one mutation.
func (h *handler) deleteReservations(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.Remove(r.Context(), r.URL.Query()["id"]...)
	h.writeMutation(w, m, err, http.StatusOK)
}

// writeMutation maps store errors to status codes. A persistence failure
// still reports the applied mutation.
func (h *handler) writeMutation(w http.ResponseWriter, m schedule.Mutation, err error, okStatus int) {
	switch {
	case err == nil:
	case errors.Is(err, schedule.ErrPersistence):
		writeJSON(w, okStatus, newMutationResponse(m, false))
		return
	case errors.Is(err, schedule.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, schedule.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, okStatus, newMutationResponse(m, true))
}

func newMutationResponse(m schedule.Mutation, persisted bool) MutationResponse {
	rec := schedule.NewDiagnosticRecord(m)
	return MutationResponse{Mutation: m, Messages: rec.Messages, Persisted: persisted}
}

func (h *handler) getDiagnostics(w http.ResponseWriter, r *http.Request) {
	if h.diag == nil {
		http.Error(w, "diagnostics disabled", http.StatusNotFound)
		return
	}
	q := diaglog.Query{
		ID:        r.URL.Query().Get("id"),
		Operation: schedule.Operation(r.URL.Query().Get("op")),
	}
	var err error
	if q.Start, err = timeParam(r, "start"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.End, err = timeParam(r, "end"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := h.diag.Query(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []schedule.DiagnosticRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
