package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError sends an error response of the given kind.
func respondError(w http.ResponseWriter, status int, kind attendance.Kind, message string) {
	respondJSON(w, status, errorResponse{Error: string(kind), Message: message})
}

// statusForKind maps an error kind onto its HTTP status.
func statusForKind(kind attendance.Kind) int {
	switch kind {
	case attendance.KindInput, attendance.KindNoFaceInProbe, attendance.KindDimensionMismatch:
		return http.StatusBadRequest
	case attendance.KindNoReferenceData, attendance.KindNoOpenSession:
		return http.StatusNotFound
	case attendance.KindVerificationFailed:
		return http.StatusUnauthorized
	case attendance.KindStoreUnavailable, attendance.KindTimeout:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondServiceError writes err as a typed error response. Internal causes
// are logged, never sent to the client.
func respondServiceError(w http.ResponseWriter, op, employee string, err error) {
	e, ok := attendance.AsError(err)
	if !ok {
		log.Printf("%s for %q failed: %v", op, sanitizeForLog(employee), err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}

	status := statusForKind(e.Kind)
	if e.Err != nil || status >= http.StatusInternalServerError {
		log.Printf("%s for %q failed: %v", op, sanitizeForLog(employee), err)
	}
	if e.Kind.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	respondError(w, status, e.Kind, e.Message)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
