package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// fakeService records which employee each call received.
type fakeService struct {
	lastEmployee string
}

func (f *fakeService) HandleAttendanceRequest(ctx context.Context, req attendance.Request) (attendance.Result, error) {
	f.lastEmployee = req.EmployeeKey
	return attendance.Result{}, &attendance.Error{Kind: attendance.KindNoOpenSession, Message: "no check-in record found for today"}
}

func (f *fakeService) ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error) {
	f.lastEmployee = employeeKey
	return nil, nil
}

func (f *fakeService) Status(ctx context.Context, employeeKey string) (attendance.Status, error) {
	f.lastEmployee = employeeKey
	return attendance.Status{EmployeeKey: employeeKey, State: attendance.NoSession}, nil
}

func (f *fakeService) RemoveAttendance(ctx context.Context, employeeKey string) (int64, error) {
	f.lastEmployee = employeeKey
	return 3, nil
}

func newTestServer() (*Server, *fakeService) {
	cfg := config.Defaults()
	svc := &fakeService{}
	return NewServer(cfg, svc), svc
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		status   int
		employee string
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/attendance?employee=alice", http.StatusOK, "alice"},
		{http.MethodGet, "/api/v1/employees/alice%20smith/status", http.StatusOK, "alice smith"},
		{http.MethodDelete, "/api/v1/employees/bob/attendance", http.StatusOK, "bob"},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound, ""},
		{http.MethodPut, "/api/v1/attendance", http.StatusMethodNotAllowed, ""},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			s, svc := newTestServer()
			rr := httptest.NewRecorder()
			s.Router().ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))

			if rr.Code != tc.status {
				t.Errorf("expected status %d, got %d\nBody: %s", tc.status, rr.Code, rr.Body.String())
			}
			if svc.lastEmployee != tc.employee {
				t.Errorf("expected employee %q, got %q", tc.employee, svc.lastEmployee)
			}
		})
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on API responses")
	}
}

func TestNewServer_Addr(t *testing.T) {
	cfg := config.Defaults()
	cfg.Web.Host = "127.0.0.1"
	cfg.Web.Port = 9099
	s := NewServer(cfg, &fakeService{})

	if s.httpServer.Addr != "127.0.0.1:9099" {
		t.Errorf("expected addr 127.0.0.1:9099, got %s", s.httpServer.Addr)
	}
}
