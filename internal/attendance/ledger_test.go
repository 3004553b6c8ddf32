package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, second, 0, time.UTC)
}

func sequentialIDs(l *Ledger) {
	n := 0
	l.newID = func() string {
		n++
		return fmt.Sprintf("rec-%03d", n)
	}
}

func newTestLedger(t *testing.T) (*Ledger, *mock.MockAttendanceStore) {
	t.Helper()
	store := mock.NewMockAttendanceStore()
	l := NewLedger(store)
	sequentialIDs(l)
	return l, store
}

func closedAt(t time.Time) *time.Time {
	return &t
}

func TestLedger_CheckInAlwaysCreatesNewRecord(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	first, err := l.CheckIn(ctx, "alice", at(9, 0, 0))
	require.NoError(t, err)
	second, err := l.CheckIn(ctx, "alice", at(9, 5, 0))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.IsOpen())
	assert.True(t, second.IsOpen())
	assert.Equal(t, 2, store.Count())

	st, err := l.Status(ctx, "alice", at(10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, OpenSession, st.State)
	assert.Len(t, st.OpenRecords, 2)
}

func TestLedger_CheckInCanonicalTimestamp(t *testing.T) {
	l, _ := newTestLedger(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)).Add(750 * time.Millisecond)

	rec, err := l.CheckIn(context.Background(), " alice ", now)
	require.NoError(t, err)

	assert.Equal(t, "alice", rec.EmployeeKey)
	assert.Equal(t, time.UTC, rec.CheckIn.Location())
	assert.True(t, rec.CheckIn.Equal(at(9, 0, 0)), "got %v", rec.CheckIn)
}

func TestLedger_CheckInRequiresEmployee(t *testing.T) {
	l, store := newTestLedger(t)

	_, err := l.CheckIn(context.Background(), "   ", at(9, 0, 0))
	assert.Equal(t, KindInput, KindOf(err))
	assert.Equal(t, 0, store.Count())
}

func TestLedger_CheckOutWithoutOpenRecord(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.CheckOut(context.Background(), "alice", at(17, 0, 0))
	require.Error(t, err)
	assert.Equal(t, KindNoOpenSession, KindOf(err))
}

func TestLedger_CheckOutClosesSingleRecord(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	in, err := l.CheckIn(ctx, "alice", at(9, 0, 0))
	require.NoError(t, err)
	out, err := l.CheckOut(ctx, "alice", at(17, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	require.NotNil(t, out.CheckOut)
	assert.True(t, out.CheckOut.After(out.CheckIn))

	stored, ok := store.Get(in.ID)
	require.True(t, ok)
	require.NotNil(t, stored.CheckOut)
	assert.True(t, stored.CheckOut.Equal(at(17, 0, 0)))

	_, err = l.CheckOut(ctx, "alice", at(18, 0, 0))
	assert.Equal(t, KindNoOpenSession, KindOf(err))
}

func TestLedger_CheckOutClosesLatestOfMany(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	early, err := l.CheckIn(ctx, "alice", at(8, 0, 0))
	require.NoError(t, err)
	late, err := l.CheckIn(ctx, "alice", at(12, 0, 0))
	require.NoError(t, err)
	middle, err := l.CheckIn(ctx, "alice", at(10, 0, 0))
	require.NoError(t, err)

	out, err := l.CheckOut(ctx, "alice", at(17, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, late.ID, out.ID)

	for _, id := range []string{early.ID, middle.ID} {
		rec, _ := store.Get(id)
		assert.True(t, rec.IsOpen(), "record %s should still be open", id)
	}
}

func TestLedger_CheckOutTieBreaksOnGreaterID(t *testing.T) {
	l, store := newTestLedger(t)
	store.AddRecord(database.AttendanceRecord{ID: "a", EmployeeKey: "alice", CheckIn: at(9, 0, 0)})
	store.AddRecord(database.AttendanceRecord{ID: "b", EmployeeKey: "alice", CheckIn: at(9, 0, 0)})

	out, err := l.CheckOut(context.Background(), "alice", at(17, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "b", out.ID)
}

func TestLedger_CheckOutIgnoresOtherDays(t *testing.T) {
	l, store := newTestLedger(t)
	yesterday := at(9, 0, 0).Add(-24 * time.Hour)
	tomorrow := at(9, 0, 0).Add(24 * time.Hour)
	store.AddRecord(database.AttendanceRecord{ID: "y", EmployeeKey: "alice", CheckIn: yesterday})
	store.AddRecord(database.AttendanceRecord{ID: "t", EmployeeKey: "alice", CheckIn: tomorrow})
	store.AddRecord(database.AttendanceRecord{
		ID: "c", EmployeeKey: "alice", CheckIn: at(8, 0, 0), CheckOut: closedAt(at(9, 0, 0)),
	})

	_, err := l.CheckOut(context.Background(), "alice", at(17, 0, 0))
	assert.Equal(t, KindNoOpenSession, KindOf(err))

	for _, id := range []string{"y", "t"} {
		rec, _ := store.Get(id)
		assert.True(t, rec.IsOpen())
	}
}

func TestLedger_CheckOutAtMidnightBelongsToNextDay(t *testing.T) {
	l, store := newTestLedger(t)
	store.AddRecord(database.AttendanceRecord{ID: "late", EmployeeKey: "alice", CheckIn: at(22, 0, 0)})

	_, err := l.CheckOut(context.Background(), "alice", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, KindNoOpenSession, KindOf(err))

	out, err := l.CheckOut(context.Background(), "alice", at(23, 59, 59))
	require.NoError(t, err)
	assert.Equal(t, "late", out.ID)
}

func TestLedger_CheckOutOnlyOwnEmployee(t *testing.T) {
	l, store := newTestLedger(t)
	store.AddRecord(database.AttendanceRecord{ID: "bob", EmployeeKey: "bob", CheckIn: at(9, 0, 0)})

	_, err := l.CheckOut(context.Background(), "alice", at(17, 0, 0))
	assert.Equal(t, KindNoOpenSession, KindOf(err))

	rec, _ := store.Get("bob")
	assert.True(t, rec.IsOpen())
}

func TestLedger_CheckOutSameSecondRejected(t *testing.T) {
	l, store := newTestLedger(t)
	in, err := l.CheckIn(context.Background(), "alice", at(9, 0, 0))
	require.NoError(t, err)

	_, err = l.CheckOut(context.Background(), "alice", at(9, 0, 0).Add(400*time.Millisecond))
	assert.Equal(t, KindInput, KindOf(err))

	rec, _ := store.Get(in.ID)
	assert.True(t, rec.IsOpen())
}

func TestLedger_CheckOutLostRace(t *testing.T) {
	l, store := newTestLedger(t)
	store.AddRecord(database.AttendanceRecord{ID: "r1", EmployeeKey: "alice", CheckIn: at(9, 0, 0)})
	store.BeforeClose = func(id string) {
		rec, _ := store.Get(id)
		rec.CheckOut = closedAt(at(16, 0, 0))
		store.AddRecord(rec)
	}

	_, err := l.CheckOut(context.Background(), "alice", at(17, 0, 0))
	assert.Equal(t, KindNoOpenSession, KindOf(err))
	assert.True(t, errors.Is(err, database.ErrRecordNotOpen))
}

func TestLedger_ConcurrentCheckOut(t *testing.T) {
	store := mock.NewMockAttendanceStore()
	store.AddRecord(database.AttendanceRecord{ID: "r1", EmployeeKey: "alice", CheckIn: at(9, 0, 0)})

	// Separate ledgers share the store the way separate processes share a database.
	ledgers := []*Ledger{NewLedger(store), NewLedger(store), NewLedger(store), NewLedger(store)}

	var wg sync.WaitGroup
	errs := make([]error, len(ledgers))
	for i, l := range ledgers {
		wg.Add(1)
		go func(i int, l *Ledger) {
			defer wg.Done()
			_, errs[i] = l.CheckOut(context.Background(), "alice", at(17, 0, i))
		}(i, l)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, KindNoOpenSession, KindOf(err))
	}
	assert.Equal(t, 1, succeeded)

	rec, _ := store.Get("r1")
	assert.False(t, rec.IsOpen())
}

func TestLedger_ConcurrentCheckInsAndCheckOuts(t *testing.T) {
	l, store := newTestLedger(t)
	var seq atomic.Int64
	l.newID = func() string { return fmt.Sprintf("rec-%d", seq.Add(1)) }

	const workers = 20
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("emp-%d", i%4)
			if _, err := l.CheckIn(context.Background(), key, at(9, 0, i)); err != nil {
				t.Errorf("check in: %v", err)
				return
			}
			if _, err := l.CheckOut(context.Background(), key, at(17, 0, i)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Every check-in is followed by a check-out of the same employee, so every
	// check-out finds at least its own record open.
	assert.Equal(t, workers, ok)
	recs, err := store.ListRecords(context.Background(), "")
	require.NoError(t, err)
	for _, rec := range recs {
		assert.False(t, rec.IsOpen(), "record %s still open", rec.ID)
	}
	assert.Equal(t, 0, l.locks.size())
}

func TestLedger_ListRecordsOrdered(t *testing.T) {
	l, store := newTestLedger(t)
	store.AddRecord(database.AttendanceRecord{ID: "1", EmployeeKey: "alice", CheckIn: at(8, 0, 0)})
	store.AddRecord(database.AttendanceRecord{ID: "2", EmployeeKey: "bob", CheckIn: at(10, 0, 0)})
	store.AddRecord(database.AttendanceRecord{ID: "3", EmployeeKey: "alice", CheckIn: at(12, 0, 0)})

	all, err := l.ListRecords(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"3", "2", "1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	alice, err := l.ListRecords(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "3", alice[0].ID)
}

func TestLedger_StatusNoSession(t *testing.T) {
	l, _ := newTestLedger(t)

	st, err := l.Status(context.Background(), "alice", at(12, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, NoSession, st.State)
	assert.Empty(t, st.OpenRecords)
	assert.True(t, st.Day.Start.Equal(at(0, 0, 0)))
}

func TestLedger_RemoveEmployee(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CheckIn(ctx, "alice", at(9, 0, 0))
	_, _ = l.CheckIn(ctx, "alice", at(10, 0, 0))
	_, _ = l.CheckIn(ctx, "bob", at(9, 0, 0))

	n, err := l.RemoveEmployee(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, store.Count())
}

func TestLedger_StoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		inject func(s *mock.MockAttendanceStore)
		want   Kind
	}{
		{"open query fails", func(s *mock.MockAttendanceStore) { s.OpenError = errors.New("connection refused") }, KindStoreUnavailable},
		{"update fails", func(s *mock.MockAttendanceStore) { s.CloseError = errors.New("broken pipe") }, KindStoreUnavailable},
		{
			"serialization failure",
			func(s *mock.MockAttendanceStore) {
				s.CloseError = fmt.Errorf("update: %w", database.ErrSerializationFailure)
			},
			KindStoreUnavailable,
		},
		{"deadline", func(s *mock.MockAttendanceStore) { s.LockError = context.DeadlineExceeded }, KindTimeout},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, store := newTestLedger(t)
			store.AddRecord(database.AttendanceRecord{ID: "r1", EmployeeKey: "alice", CheckIn: at(9, 0, 0)})
			tc.inject(store)

			_, err := l.CheckOut(context.Background(), "alice", at(17, 0, 0))
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))
			assert.True(t, tc.want.Retryable())

			e, _ := AsError(err)
			assert.NotContains(t, e.Message, "connection refused")
		})
	}
}

func TestLedger_ExpiredContext(t *testing.T) {
	l, store := newTestLedger(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := l.CheckIn(ctx, "alice", at(9, 0, 0))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, 0, store.Count())
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"checkin", CheckIn, false},
		{"CheckOut", CheckOut, false},
		{" checkout ", CheckOut, false},
		{"lunch", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAction(tc.in)
			if tc.wantErr {
				assert.Equal(t, KindInput, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Action {
	t.Helper()
	a, err := ParseAction(s)
	require.NoError(t, err)
	return a
}

func TestKeyLock(t *testing.T) {
	k := newKeyLock()

	unlock := k.Lock("alice")
	assert.Equal(t, 1, k.size())

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("alice")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock should block while the key is held")
	case <-time.After(20 * time.Millisecond):
	}

	other := k.Lock("bob")
	assert.Equal(t, 2, k.size())
	other()

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, time.Millisecond)
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := newError(KindStoreUnavailable, "check out", DefaultMessage(KindStoreUnavailable), cause)

	assert.Equal(t, "check out: store_unavailable: storage temporarily unavailable, please retry: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, KindInput.Retryable())
	assert.Equal(t, Kind(""), KindOf(cause))
}
