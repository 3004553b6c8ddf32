package database

import (
	"time"
)

// StoredReference represents an enrolled reference embedding stored in the database
type StoredReference struct {
	ID          int64
	EmployeeKey string
	Embedding   []float32
	Model       string
	Dim         int
	Source      string // reference image name the embedding was extracted from
	CreatedAt   time.Time
}

// AttendanceRecord is one check-in/check-out cycle of an employee.
// CheckOut is nil while the record is open.
type AttendanceRecord struct {
	ID          string     `json:"id"`
	EmployeeKey string     `json:"employee"`
	CheckIn     time.Time  `json:"check_in"`
	CheckOut    *time.Time `json:"check_out"`
}

// IsOpen reports whether the record has no check-out yet.
func (r AttendanceRecord) IsOpen() bool {
	return r.CheckOut == nil
}

// DayWindow is the half-open UTC interval [Start, End) of one calendar day.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// DayWindowFor returns the UTC calendar day containing t.
func DayWindowFor(t time.Time) DayWindow {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return DayWindow{Start: start, End: start.Add(24 * time.Hour)}
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
