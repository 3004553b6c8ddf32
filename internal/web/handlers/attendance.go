package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceService is the part of attendance.Service the handlers use.
type AttendanceService interface {
	HandleAttendanceRequest(ctx context.Context, req attendance.Request) (attendance.Result, error)
	ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error)
	Status(ctx context.Context, employeeKey string) (attendance.Status, error)
	RemoveAttendance(ctx context.Context, employeeKey string) (int64, error)
}

// AttendanceHandler handles attendance endpoints.
type AttendanceHandler struct {
	service AttendanceService
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(svc AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// RecordResponse is returned for an accepted check-in or check-out.
type RecordResponse struct {
	Success   bool                      `json:"success"`
	Action    string                    `json:"action"`
	Employee  string                    `json:"employee"`
	Timestamp string                    `json:"timestamp"`
	Record    database.AttendanceRecord `json:"record"`
	Distance  float64                   `json:"distance"`
	Message   string                    `json:"message"`
}

// ListResponse wraps an attendance listing.
type ListResponse struct {
	Success bool                        `json:"success"`
	Data    []database.AttendanceRecord `json:"data"`
}

// StatusResponse describes an employee's sessions for the current UTC day.
type StatusResponse struct {
	Employee    string                      `json:"employee"`
	Day         string                      `json:"day"`
	State       string                      `json:"state"`
	OpenRecords []database.AttendanceRecord `json:"open_records"`
}

// DeleteResponse reports how many records were removed.
type DeleteResponse struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}

// employeeParam returns the employee form or query value, accepting
// "username" as an alias.
func employeeParam(get func(string) string) string {
	if v := get("employee"); v != "" {
		return v
	}
	return get("username")
}

// readImage reads the "image" file of a parsed multipart form.
func readImage(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// actionLabel capitalizes an action for user-facing messages.
func actionLabel(a attendance.Action) string {
	s := a.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// Record handles POST /attendance: verifies the uploaded face and records a
// check-in or check-out.
func (h *AttendanceHandler) Record(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, attendance.KindInput, "image too large")
			return
		}
		respondError(w, http.StatusBadRequest, attendance.KindInput, "failed to parse multipart form")
		return
	}

	actionValue := r.FormValue("action")
	employee := employeeParam(r.FormValue)
	image, err := readImage(r)
	if actionValue == "" || employee == "" || err != nil || len(image) == 0 {
		respondError(w, http.StatusBadRequest, attendance.KindInput, "missing action, employee or image")
		return
	}

	action, err := attendance.ParseAction(actionValue)
	if err != nil {
		respondServiceError(w, "attendance", employee, err)
		return
	}

	res, err := h.service.HandleAttendanceRequest(r.Context(), attendance.Request{
		Action:      action,
		EmployeeKey: employee,
		Image:       image,
	})
	if err != nil {
		respondServiceError(w, "attendance "+action.String(), employee, err)
		return
	}

	respondJSON(w, http.StatusOK, RecordResponse{
		Success:   true,
		Action:    res.Action.String(),
		Employee:  res.EmployeeKey,
		Timestamp: res.Timestamp.UTC().Format(time.RFC3339),
		Record:    res.Record,
		Distance:  res.Verdict.MinDistance,
		Message:   actionLabel(res.Action) + " successful for " + res.EmployeeKey,
	})
}

// List handles GET /attendance with an optional employee filter.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	employee := employeeParam(r.URL.Query().Get)
	recs, err := h.service.ListRecords(r.Context(), employee)
	if err != nil {
		respondServiceError(w, "list attendance", employee, err)
		return
	}
	if recs == nil {
		recs = []database.AttendanceRecord{}
	}
	respondJSON(w, http.StatusOK, ListResponse{Success: true, Data: recs})
}

// employeeFromPath returns the unescaped {key} URL parameter.
func employeeFromPath(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "key"))
}

// Status handles GET /employees/{key}/status.
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	employee, err := employeeFromPath(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, attendance.KindInput, "invalid employee")
		return
	}

	st, err := h.service.Status(r.Context(), employee)
	if err != nil {
		respondServiceError(w, "status", employee, err)
		return
	}
	open := st.OpenRecords
	if open == nil {
		open = []database.AttendanceRecord{}
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Employee:    st.EmployeeKey,
		Day:         st.Day.Start.Format(time.DateOnly),
		State:       string(st.State),
		OpenRecords: open,
	})
}

// Remove handles DELETE /employees/{key}/attendance.
func (h *AttendanceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	employee, err := employeeFromPath(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, attendance.KindInput, "invalid employee")
		return
	}

	n, err := h.service.RemoveAttendance(r.Context(), employee)
	if err != nil {
		respondServiceError(w, "remove attendance", employee, err)
		return
	}
	respondJSON(w, http.StatusOK, DeleteResponse{Success: true, Deleted: n})
}
