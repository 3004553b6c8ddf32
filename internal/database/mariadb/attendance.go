package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides MariaDB-backed attendance record storage.
type AttendanceRepository struct {
	pool *Pool
	q    querier
}

// NewAttendanceRepository creates a new MariaDB attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool, q: pool.db}
}

// ListRecords returns records ordered by check-in descending; all employees
// when employeeKey is empty.
func (r *AttendanceRepository) ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error) {
	return r.queryRecords(ctx, "list records", `
		SELECT id, employee_key, check_in, check_out
		FROM attendance_records
		WHERE ? = '' OR employee_key = ?
		ORDER BY check_in DESC, id DESC
	`, employeeKey, employeeKey)
}

// OpenRecords returns the employee's open records with check-in inside window.
func (r *AttendanceRepository) OpenRecords(
	ctx context.Context, employeeKey string, window database.DayWindow,
) ([]database.AttendanceRecord, error) {
	return r.queryRecords(ctx, "open records", `
		SELECT id, employee_key, check_in, check_out
		FROM attendance_records
		WHERE employee_key = ? AND check_out IS NULL AND check_in >= ? AND check_in < ?
		ORDER BY check_in DESC, id DESC
	`, employeeKey, window.Start.UTC(), window.End.UTC())
}

func (r *AttendanceRepository) queryRecords(ctx context.Context, op, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var recs []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		var checkOut sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.EmployeeKey, &rec.CheckIn, &checkOut); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		rec.CheckIn = rec.CheckIn.UTC()
		if checkOut.Valid {
			out := checkOut.Time.UTC()
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
func (r *AttendanceRepository) InsertRecord(ctx context.Context, rec database.AttendanceRecord) error {
	var checkOut sql.NullTime
	if rec.CheckOut != nil {
		checkOut = sql.NullTime{Time: rec.CheckOut.UTC(), Valid: true}
	}
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO attendance_records (id, employee_key, check_in, check_out) VALUES (?, ?, ?, ?)",
		rec.ID, rec.EmployeeKey, rec.CheckIn.UTC(), checkOut)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// CloseRecord sets the check-out of a record that is still open.
func (r *AttendanceRepository) CloseRecord(ctx context.Context, id string, checkOut time.Time) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE attendance_records SET check_out = ? WHERE id = ? AND check_out IS NULL",
		checkOut.UTC(), id)
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
func (r *AttendanceRepository) DeleteRecordsByEmployee(ctx context.Context, employeeKey string) (int64, error) {
	result, err := r.q.ExecContext(ctx, "DELETE FROM attendance_records WHERE employee_key = ?", employeeKey)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

// WithEmployeeLock runs fn in a SERIALIZABLE transaction that first locks
// the employee's row in employee_locks with SELECT ... FOR UPDATE.
func (r *AttendanceRepository) WithEmployeeLock(
	ctx context.Context, employeeKey string, fn func(w database.AttendanceWriter) error,
) error {
	// The lock row must exist, committed, before any transaction locks it.
	if _, err := r.pool.db.ExecContext(ctx,
		"INSERT IGNORE INTO employee_locks (employee_key) VALUES (?)", employeeKey); err != nil {
		return classifyError(fmt.Errorf("create employee lock: %w", err))
	}

	tx, err := r.pool.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var locked string
	if err := tx.QueryRowContext(ctx,
		"SELECT employee_key FROM employee_locks WHERE employee_key = ? FOR UPDATE", employeeKey,
	).Scan(&locked); err != nil {
		return classifyError(fmt.Errorf("acquire employee lock: %w", err))
	}

	if err := fn(&AttendanceRepository{pool: r.pool, q: tx}); err != nil {
		return classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

var _ database.AttendanceStore = (*AttendanceRepository)(nil)
