package database

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotOpen is returned when closing a record that is missing or already closed.
var ErrRecordNotOpen = errors.New("attendance record is not open")

// ErrSerializationFailure is returned when the backend aborted a unit of work
// because of a concurrent conflicting one. The caller may retry.
var ErrSerializationFailure = errors.New("serialization failure")

// ReferenceReader provides read-only access to enrolled reference embeddings
type ReferenceReader interface {
	// GetReferences returns all references of an employee ordered by ID.
	// Returns an empty slice when the employee has none.
	GetReferences(ctx context.Context, employeeKey string) ([]StoredReference, error)
	// ListEmployees returns the distinct employee keys that have references
	ListEmployees(ctx context.Context) ([]string, error)
}

// ReferenceWriter provides write access to reference embeddings
type ReferenceWriter interface {
	ReferenceReader

	// AddReference stores a reference embedding and returns its ID
	AddReference(ctx context.Context, ref StoredReference) (int64, error)

	// DeleteReferencesByEmployee removes all references of an employee
	DeleteReferencesByEmployee(ctx context.Context, employeeKey string) (int64, error)
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// ListRecords returns records ordered by check-in descending (ID descending on ties).
	// An empty employeeKey returns the records of all employees.
	ListRecords(ctx context.Context, employeeKey string) ([]AttendanceRecord, error)

	// OpenRecords returns the employee's records without check-out whose
	// check-in falls inside window, ordered by check-in descending.
	OpenRecords(ctx context.Context, employeeKey string, window DayWindow) ([]AttendanceRecord, error)
}

// AttendanceWriter provides write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// InsertRecord persists a new record
	InsertRecord(ctx context.Context, rec AttendanceRecord) error

	// CloseRecord sets the check-out of an open record.
	// Returns ErrRecordNotOpen if the record does not exist or is already closed.
	CloseRecord(ctx context.Context, id string, checkOut time.Time) error

	// DeleteRecordsByEmployee removes all records of an employee
	DeleteRecordsByEmployee(ctx context.Context, employeeKey string) (int64, error)
}

// AttendanceStore is an AttendanceWriter that can run a serialized unit of work
// for one employee.
type AttendanceStore interface {
	AttendanceWriter

	// WithEmployeeLock runs fn with a writer bound to a unit of work that is
	// serialized against every other WithEmployeeLock call for the same key.
	// The work is committed if fn returns nil and rolled back otherwise.
	WithEmployeeLock(ctx context.Context, employeeKey string, fn func(w AttendanceWriter) error) error
}
