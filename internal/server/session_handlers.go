package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/alphabeta/internal/domain"
	"github.com/aristath/alphabeta/internal/flow"
	"github.com/aristath/alphabeta/internal/gateway"
	"github.com/aristath/alphabeta/internal/modules/dashboard"
	"github.com/aristath/alphabeta/internal/modules/regression"
	"github.com/aristath/alphabeta/internal/modules/returns"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	defaultRollingWindow = 60
	maxBodyBytes         = 1 << 16
)

// SessionHandlers serves the dashboard session endpoints.
type SessionHandlers struct {
	manager *dashboard.Manager
	log     zerolog.Logger
}

// NewSessionHandlers creates the session endpoint handlers.
func NewSessionHandlers(manager *dashboard.Manager, log zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{
		manager: manager,
		log:     log.With().Str("component", "session_handlers").Logger(),
	}
}

// SessionResponse is the body of every state-changing session request.
type SessionResponse struct {
	Session dashboard.Snapshot `json:"session"`
	Report  *flow.Report       `json:"report,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// HandleCreate handles POST /api/sessions
func (h *SessionHandlers) HandleCreate(w http.ResponseWriter, _ *http.Request) {
	s, err := h.manager.Create()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create session")
		writeError(w, h.log, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusCreated, SessionResponse{Session: s.Snapshot()})
}

// HandleGet handles GET /api/sessions/{id}
func (h *SessionHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.log, http.StatusOK, SessionResponse{Session: s.Snapshot()})
}

// HandleDelete handles DELETE /api/sessions/{id}
func (h *SessionHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetInputs handles PUT /api/sessions/{id}/inputs
func (h *SessionHandlers) HandleSetInputs(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var in dashboard.Inputs
	if !decodeBody(w, r, h.log, &in) {
		return
	}

	report, err := s.SetInputs(r.Context(), in)
	if err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusOK, SessionResponse{Session: s.Snapshot(), Report: &report})
}

// HandleSetPlotRange handles PUT /api/sessions/{id}/plot-range
func (h *SessionHandlers) HandleSetPlotRange(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var pr domain.DateRange
	if !decodeBody(w, r, h.log, &pr) {
		return
	}

	report, err := s.SetPlotRange(r.Context(), pr)
	if err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return
	}
	h.writeReport(w, s, report, false)
}

// HandleQuery handles POST /api/sessions/{id}/query
func (h *SessionHandlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	report := s.Query(r.Context())
	if report.Err != nil {
		h.log.Warn().
			Err(report.Err).
			Str("session", s.ID()).
			Str("stage", report.Failed).
			Msg("Query cycle failed")
	}
	// A failed plot keeps the query itself successful.
	h.writeReport(w, s, report, true)
}

// writeReport writes the snapshot after a propagation, with the status
// derived from the failed stage.
func (h *SessionHandlers) writeReport(w http.ResponseWriter, s *dashboard.Session, report flow.Report, plotSoft bool) {
	resp := SessionResponse{Session: s.Snapshot(), Report: &report}
	status := http.StatusOK
	if report.Err != nil {
		resp.Error = report.Err.Error()
		if !plotSoft || report.Failed != dashboard.StagePlot {
			status = statusFor(report.Err)
		}
	}
	writeJSON(w, h.log, status, resp)
}

// HandleHistory handles GET /api/sessions/{id}/history
func (h *SessionHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	history, err := s.History()
	if err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusOK, history)
}

// HandleReturns handles GET /api/sessions/{id}/returns
func (h *SessionHandlers) HandleReturns(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	table, err := s.Returns()
	if err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, h.log, http.StatusOK, table)
	case "msgpack":
		data, err := msgpack.Marshal(table.Wire())
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to encode return table")
			writeError(w, h.log, http.StatusInternalServerError, "failed to encode return table")
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			h.log.Error().Err(err).Msg("Failed to write msgpack response")
		}
	default:
		writeError(w, h.log, http.StatusBadRequest, "unsupported format")
	}
}

// HandlePlot handles GET /api/sessions/{id}/plot
func (h *SessionHandlers) HandlePlot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	fig, err := s.Figure()
	if err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusOK, fig)
}

// HandleRolling handles GET /api/sessions/{id}/rolling?window=N
func (h *SessionHandlers) HandleRolling(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	window := defaultRollingWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			writeError(w, h.log, http.StatusBadRequest, "window must be an integer of at least 2")
			return
		}
		window = n
	}

	points, err := s.Rolling(window)
	if err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"window": window,
		"points": points,
	})
}

func (h *SessionHandlers) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, statusFor(err), err.Error())
		return nil, false
	}
	return s, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var fetchErr *gateway.FetchError
	var schemaErr *returns.SchemaError

	switch {
	case errors.Is(err, dashboard.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNotReady), errors.Is(err, dashboard.ErrNoHistory):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, returns.ErrDataIntegrity), errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, regression.ErrColumnNotFound), errors.Is(err, regression.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, log zerolog.Logger, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, log, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	writeJSON(w, log, status, map[string]string{"error": message})
}
