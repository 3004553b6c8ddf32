// Package sqlite implements the reference and attendance stores on a single
// SQLite file for single-node installs.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store provides both repositories over one SQLite database.
// The pool holds a single connection, so every unit of work is serialized.
type Store struct {
	db *sql.DB
	q  querier
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Open creates or opens a SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("SQLite database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetReferences retrieves all references of an employee in enrollment order.
func (s *Store) GetReferences(ctx context.Context, employeeKey string) ([]database.StoredReference, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, employee_key, embedding_json, model, dim, source, created_at
		FROM face_references WHERE employee_key = ? ORDER BY id`, employeeKey)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	refs := []database.StoredReference{}
	for rows.Next() {
		var ref database.StoredReference
		var data string
		var created int64
		if err := rows.Scan(&ref.ID, &ref.EmployeeKey, &data, &ref.Model, &ref.Dim, &ref.Source, &created); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &ref.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding of reference %d: %w", ref.ID, err)
		}
		ref.CreatedAt = time.Unix(created, 0).UTC()
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, nil
}

// ListEmployees returns the distinct employee keys with at least one reference.
func (s *Store) ListEmployees(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT DISTINCT employee_key FROM face_references ORDER BY employee_key")
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// AddReference stores a reference embedding and returns its ID.
func (s *Store) AddReference(ctx context.Context, ref database.StoredReference) (int64, error) {
	data, err := json.Marshal(ref.Embedding)
	if err != nil {
		return 0, fmt.Errorf("marshal embedding: %w", err)
	}
	created := ref.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO face_references (employee_key, embedding_json, model, dim, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ref.EmployeeKey, string(data), ref.Model, len(ref.Embedding), ref.Source, created.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	return result.LastInsertId()
}

// DeleteReferencesByEmployee removes all references of an employee.
func (s *Store) DeleteReferencesByEmployee(ctx context.Context, employeeKey string) (int64, error) {
	result, err := s.q.ExecContext(ctx, "DELETE FROM face_references WHERE employee_key = ?", employeeKey)
	if err != nil {
		return 0, fmt.Errorf("delete references: %w", err)
	}
	return result.RowsAffected()
}

// ListRecords returns records ordered by check-in descending; all employees
// when employeeKey is empty.
func (s *Store) ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error) {
	return s.queryRecords(ctx, "list records", `
		SELECT id, employee_key, check_in, check_out FROM attendance_records
		WHERE ? = '' OR employee_key = ?
		ORDER BY check_in DESC, id DESC`, employeeKey, employeeKey)
}

// OpenRecords returns the employee's open records with check-in inside window.
func (s *Store) OpenRecords(ctx context.Context, employeeKey string, window database.DayWindow) ([]database.AttendanceRecord, error) {
	return s.queryRecords(ctx, "open records", `
		SELECT id, employee_key, check_in, check_out FROM attendance_records
		WHERE employee_key = ? AND check_out IS NULL AND check_in >= ? AND check_in < ?
		ORDER BY check_in DESC, id DESC`, employeeKey, window.Start.Unix(), window.End.Unix())
}

func (s *Store) queryRecords(ctx context.Context, op, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var recs []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		var checkIn int64
		var checkOut sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.EmployeeKey, &checkIn, &checkOut); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		rec.CheckIn = time.Unix(checkIn, 0).UTC()
		if checkOut.Valid {
			out := time.Unix(checkOut.Int64, 0).UTC()
			rec.CheckOut = &out
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return recs, nil
}

// InsertRecord persists a new record.
func (s *Store) InsertRecord(ctx context.Context, rec database.AttendanceRecord) error {
	var checkOut sql.NullInt64
	if rec.CheckOut != nil {
		checkOut = sql.NullInt64{Int64: rec.CheckOut.Unix(), Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO attendance_records (id, employee_key, check_in, check_out) VALUES (?, ?, ?, ?)",
		rec.ID, rec.EmployeeKey, rec.CheckIn.Unix(), checkOut)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// CloseRecord sets the check-out of a record that is still open.
func (s *Store) CloseRecord(ctx context.Context, id string, checkOut time.Time) error {
	result, err := s.q.ExecContext(ctx,
		"UPDATE attendance_records SET check_out = ? WHERE id = ? AND check_out IS NULL", checkOut.Unix(), id)
	if err != nil {
		return fmt.Errorf("close record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrRecordNotOpen
	}
	return nil
}

// DeleteRecordsByEmployee removes all records of an employee.
func (s *Store) DeleteRecordsByEmployee(ctx context.Context, employeeKey string) (int64, error) {
	result, err := s.q.ExecContext(ctx, "DELETE FROM attendance_records WHERE employee_key = ?", employeeKey)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return result.RowsAffected()
}

// WithEmployeeLock runs fn in a transaction. The single pooled connection
// serializes it against every other unit of work.
func (s *Store) WithEmployeeLock(ctx context.Context, employeeKey string, fn func(w database.AttendanceWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var (
	_ database.ReferenceWriter = (*Store)(nil)
	_ database.AttendanceStore = (*Store)(nil)
)
