package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hackgods/salon-appointment-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps domain errors onto HTTP responses. Anything it
// does not recognise is logged and reported as a bare 500.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *appointment.ValidationError
	if errors.As(err, &verr) {
		fields := make([]FieldErrorResponse, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, FieldErrorResponse{Field: f.Field, Message: f.Message})
		}
		code := "validation_failed"
		if errors.Is(err, appointment.ErrCrossSalon) {
			code = "cross_salon"
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: code, Details: verr.Error(), Fields: fields})
		return
	}

	var cerr *appointment.ConflictError
	if errors.As(err, &cerr) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "appointment_conflict",
			Details:   "staff member is not available for the requested time",
			Conflicts: h.present.conflicts(cerr.Conflicts, showsCustomers(ActorFrom(r.Context()))),
		})
		return
	}

	switch {
	case errors.Is(err, appointment.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	case errors.Is(err, appointment.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", "")
	case errors.Is(err, appointment.ErrStaffBusy):
		writeError(w, http.StatusConflict, "staff_busy", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// parseID reads a positive int64 path or query value.
func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseQueryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
