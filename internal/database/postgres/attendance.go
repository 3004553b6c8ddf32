package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance record storage.
type AttendanceRepository struct {
	pool *Pool
	q    querier
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool, q: pool.db}
}

// ListRecords returns records ordered by check-in descending; all employees
// when employeeKey is empty.
func (r *AttendanceRepository) ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error) {
	query := `
		SELECT id, employee_key, check_in, check_out
		FROM attendance_records
		WHERE $1::text = '' OR employee_key = $1
		ORDER BY check_in DESC, id DESC
	`
	return r.queryRecords(ctx, "list records", query, employeeKey)
}

// OpenRecords returns the employee's open records with check-in inside window.
func (r *AttendanceRepository) OpenRecords(
	ctx context.Context, employeeKey string, window database.DayWindow,
) ([]database.AttendanceRecord, error) {
	query := `
		SELECT id, employee_key, check_in, check_out
		FROM attendance_records
		WHERE employee_key = $1 AND check_out IS NULL AND check_in >= $2 AND check_in < $3
		ORDER BY check_in DESC, id DESC
	`
	return r.queryRecords(ctx, "open records", query, employeeKey, window.Start, window.End)
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
	query := `
		INSERT INTO attendance_records (id, employee_key, check_in, check_out)
		VALUES ($1, $2, $3, $4)
	`

	var checkOut sql.NullTime
	if rec.CheckOut != nil {
		checkOut = sql.NullTime{Time: rec.CheckOut.UTC(), Valid: true}
	}
	if _, err := r.q.ExecContext(ctx, query, rec.ID, rec.EmployeeKey, rec.CheckIn.UTC(), checkOut); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// CloseRecord sets the check-out of a record that is still open.
func (r *AttendanceRepository) CloseRecord(ctx context.Context, id string, checkOut time.Time) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE attendance_records SET check_out = $2 WHERE id = $1 AND check_out IS NULL",
		id, checkOut.UTC())
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
	result, err := r.q.ExecContext(ctx, "DELETE FROM attendance_records WHERE employee_key = $1", employeeKey)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

// WithEmployeeLock runs fn in a SERIALIZABLE transaction while holding a
// session advisory lock on the employee key. The lock is taken before the
// transaction starts so its snapshot includes the previous holder's commit.
func (r *AttendanceRepository) WithEmployeeLock(
	ctx context.Context, employeeKey string, fn func(w database.AttendanceWriter) error,
) error {
	conn, err := r.pool.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", employeeKey); err != nil {
		return fmt.Errorf("acquire employee lock: %w", err)
	}
	defer unlockEmployee(conn, employeeKey)

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classifyError(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&AttendanceRepository{pool: r.pool, q: tx}); err != nil {
		return classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// unlockEmployee releases the advisory lock. A connection that fails to
// unlock is discarded so the lock dies with its session.
func unlockEmployee(conn *sql.Conn, employeeKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", employeeKey); err != nil {
		log.Printf("Warning: failed to release advisory lock for %q: %v", employeeKey, err)
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

var _ database.AttendanceStore = (*AttendanceRepository)(nil)
