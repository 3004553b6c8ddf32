// Package attendance implements the attendance ledger state machine and the
// service that gates it behind face verification.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/employee"
)

// Action is a ledger transition requested by an employee.
type Action int

const (
	CheckIn Action = iota + 1
	CheckOut
)

// ParseAction parses the wire name of an action ("checkin" or "checkout").
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checkin":
		return CheckIn, nil
	case "checkout":
		return CheckOut, nil
	}
	return 0, newError(KindInput, "parse action", "invalid action", fmt.Errorf("unknown action %q", s))
}

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case CheckIn:
		return "checkin"
	case CheckOut:
		return "checkout"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// SessionState is the per-employee, per-day state of the ledger.
type SessionState string

const (
	NoSession   SessionState = "no_session"
	OpenSession SessionState = "open_session"
)

// Status describes an employee's open sessions for one UTC day.
type Status struct {
	EmployeeKey string
	Day         database.DayWindow
	State       SessionState
	OpenRecords []database.AttendanceRecord // latest first
}

// Ledger records check-in and check-out events. It is the only writer of
// check-out timestamps.
type Ledger struct {
	store database.AttendanceStore
	locks *keyLock
	newID func() string
}

// NewLedger creates a ledger backed by store.
func NewLedger(store database.AttendanceStore) *Ledger {
	return &Ledger{
		store: store,
		locks: newKeyLock(),
		newID: uuid.NewString,
	}
}

// canonicalTime returns t in UTC truncated to whole seconds.
func canonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func normalizedKey(op, key string) (string, error) {
	k := employee.NormalizeKey(key)
	if k == "" {
		return "", newError(KindInput, op, "employee is required", nil)
	}
	return k, nil
}

// mutate runs fn as a serialized unit of work for one employee.
func (l *Ledger) mutate(ctx context.Context, op, key string, fn func(w database.AttendanceWriter) error) error {
	unlock := l.locks.Lock(key)
	defer unlock()

	if err := l.store.WithEmployeeLock(ctx, key, fn); err != nil {
		return classifyStoreError(op, err)
	}
	return nil
}

// CheckIn always opens a new record at now, even if others are still open.
func (l *Ledger) CheckIn(ctx context.Context, employeeKey string, now time.Time) (database.AttendanceRecord, error) {
	const op = "check in"
	key, err := normalizedKey(op, employeeKey)
	if err != nil {
		return database.AttendanceRecord{}, err
	}

	rec := database.AttendanceRecord{
		ID:          l.newID(),
		EmployeeKey: key,
		CheckIn:     canonicalTime(now),
	}
	err = l.mutate(ctx, op, key, func(w database.AttendanceWriter) error {
		return w.InsertRecord(ctx, rec)
	})
	if err != nil {
		return database.AttendanceRecord{}, err
	}
	return rec, nil
}

// CheckOut closes the most recent open record whose check-in falls on the
// UTC day of now. Fails with KindNoOpenSession if there is none.
func (l *Ledger) CheckOut(ctx context.Context, employeeKey string, now time.Time) (database.AttendanceRecord, error) {
	const op = "check out"
	key, err := normalizedKey(op, employeeKey)
	if err != nil {
		return database.AttendanceRecord{}, err
	}
	now = canonicalTime(now)

	var closed database.AttendanceRecord
	err = l.mutate(ctx, op, key, func(w database.AttendanceWriter) error {
		open, err := w.OpenRecords(ctx, key, database.DayWindowFor(now))
		if err != nil {
			return err
		}
		latest, ok := latestOpen(open)
		if !ok {
			return newError(KindNoOpenSession, op, DefaultMessage(KindNoOpenSession), nil)
		}
		if !now.After(latest.CheckIn) {
			return newError(KindInput, op, "check-out must be later than check-in", nil)
		}

		if err := w.CloseRecord(ctx, latest.ID, now); err != nil {
			if errors.Is(err, database.ErrRecordNotOpen) {
				return newError(KindNoOpenSession, op, DefaultMessage(KindNoOpenSession), err)
			}
			return err
		}
		latest.CheckOut = &now
		closed = latest
		return nil
	})
	if err != nil {
		return database.AttendanceRecord{}, err
	}
	return closed, nil
}

// latestOpen picks the open record with the latest check-in, breaking ties by
// the greater ID.
func latestOpen(recs []database.AttendanceRecord) (database.AttendanceRecord, bool) {
	var best database.AttendanceRecord
	found := false
	for _, rec := range recs {
		if !rec.IsOpen() {
			continue
		}
		if !found || rec.CheckIn.After(best.CheckIn) || (rec.CheckIn.Equal(best.CheckIn) && rec.ID > best.ID) {
			best = rec
			found = true
		}
	}
	return best, found
}

// ListRecords returns the records of one employee, or of everyone when
// employeeKey is empty, latest check-in first.
func (l *Ledger) ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error) {
	recs, err := l.store.ListRecords(ctx, employee.NormalizeKey(employeeKey))
	if err != nil {
		return nil, classifyStoreError("list records", err)
	}
	return recs, nil
}

// Status reports the open sessions of an employee on the UTC day of now.
func (l *Ledger) Status(ctx context.Context, employeeKey string, now time.Time) (Status, error) {
	const op = "status"
	key, err := normalizedKey(op, employeeKey)
	if err != nil {
		return Status{}, err
	}
	window := database.DayWindowFor(now)
	open, err := l.store.OpenRecords(ctx, key, window)
	if err != nil {
		return Status{}, classifyStoreError(op, err)
	}

	st := Status{EmployeeKey: key, Day: window, State: NoSession, OpenRecords: open}
	if len(open) > 0 {
		st.State = OpenSession
	}
	return st, nil
}

// RemoveEmployee deletes every attendance record of an employee.
func (l *Ledger) RemoveEmployee(ctx context.Context, employeeKey string) (int64, error) {
	const op = "remove employee"
	key, err := normalizedKey(op, employeeKey)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = l.mutate(ctx, op, key, func(w database.AttendanceWriter) error {
		n, err := w.DeleteRecordsByEmployee(ctx, key)
		deleted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// classifyStoreError maps backend failures onto error kinds. Errors that
// already carry a kind pass through unchanged.
func classifyStoreError(op string, err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	switch {
	case isTimeout(err):
		return newError(KindTimeout, op, DefaultMessage(KindTimeout), err)
	case errors.Is(err, database.ErrSerializationFailure):
		return newError(KindStoreUnavailable, op, "concurrent update, please retry", err)
	}
	return newError(KindStoreUnavailable, op, DefaultMessage(KindStoreUnavailable), err)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
