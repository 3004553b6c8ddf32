package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.service)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Attendance
		r.Post("/attendance", attendanceHandler.Record)
		r.Get("/attendance", attendanceHandler.List)

		// Employees
		r.Get("/employees/{key}/status", attendanceHandler.Status)
		r.Delete("/employees/{key}/attendance", attendanceHandler.Remove)
	})
}
