// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockReferenceStore is a mock implementation of database.ReferenceWriter
type MockReferenceStore struct {
	mu     sync.RWMutex
	refs   map[string][]database.StoredReference
	nextID int64

	// Error injection
	GetReferencesError error
	ListEmployeesError error
	AddReferenceError  error
	DeleteError        error
}

// NewMockReferenceStore creates a new mock reference store
func NewMockReferenceStore() *MockReferenceStore {
	return &MockReferenceStore{
		refs: make(map[string][]database.StoredReference),
	}
}

// AddVectors adds reference embeddings for an employee
func (m *MockReferenceStore) AddVectors(employeeKey string, vectors ...[]float32) {
	for _, v := range vectors {
		m.AddReference(context.Background(), database.StoredReference{
			EmployeeKey: employeeKey,
			Embedding:   v,
			Dim:         len(v),
		})
	}
}

// GetReferences returns the references of an employee
func (m *MockReferenceStore) GetReferences(ctx context.Context, employeeKey string) ([]database.StoredReference, error) {
	if m.GetReferencesError != nil {
		return nil, m.GetReferencesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredReference, len(m.refs[employeeKey]))
	copy(out, m.refs[employeeKey])
	return out, nil
}

// ListEmployees returns the keys that have references
func (m *MockReferenceStore) ListEmployees(ctx context.Context) ([]string, error) {
	if m.ListEmployeesError != nil {
		return nil, m.ListEmployeesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.refs))
	for k := range m.refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// AddReference stores a reference
func (m *MockReferenceStore) AddReference(ctx context.Context, ref database.StoredReference) (int64, error) {
	if m.AddReferenceError != nil {
		return 0, m.AddReferenceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ref.ID = m.nextID
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	m.refs[ref.EmployeeKey] = append(m.refs[ref.EmployeeKey], ref)
	return ref.ID, nil
}

// DeleteReferencesByEmployee removes all references of an employee
func (m *MockReferenceStore) DeleteReferencesByEmployee(ctx context.Context, employeeKey string) (int64, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.refs[employeeKey]))
	delete(m.refs, employeeKey)
	return n, nil
}

// MockAttendanceStore is an in-memory implementation of database.AttendanceStore
type MockAttendanceStore struct {
	mu      sync.RWMutex
	lockMu  sync.Mutex
	records map[string]database.AttendanceRecord

	// Error injection
	ListError   error
	OpenError   error
	InsertError error
	CloseError  error
	DeleteError error
	LockError   error

	// BeforeClose, if set, runs before CloseRecord takes effect.
	BeforeClose func(id string)
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		records: make(map[string]database.AttendanceRecord),
	}
}

// AddRecord seeds a record directly, bypassing the ledger
func (m *MockAttendanceStore) AddRecord(rec database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
}

// Get returns a record by ID
func (m *MockAttendanceStore) Get(id string) (database.AttendanceRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

// Count returns the number of stored records
func (m *MockAttendanceStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func sortRecords(recs []database.AttendanceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CheckIn.Equal(recs[j].CheckIn) {
			return recs[i].CheckIn.After(recs[j].CheckIn)
		}
		return recs[i].ID > recs[j].ID
	})
}

// ListRecords returns records ordered by check-in descending
func (m *MockAttendanceStore) ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, rec := range m.records {
		if employeeKey == "" || rec.EmployeeKey == employeeKey {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// OpenRecords returns open records of the employee inside window
func (m *MockAttendanceStore) OpenRecords(
	ctx context.Context, employeeKey string, window database.DayWindow,
) ([]database.AttendanceRecord, error) {
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, rec := range m.records {
		if rec.EmployeeKey == employeeKey && rec.IsOpen() && window.Contains(rec.CheckIn) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// InsertRecord stores a new record
func (m *MockAttendanceStore) InsertRecord(ctx context.Context, rec database.AttendanceRecord) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

// CloseRecord sets the check-out of an open record
func (m *MockAttendanceStore) CloseRecord(ctx context.Context, id string, checkOut time.Time) error {
	if m.CloseError != nil {
		return m.CloseError
	}
	if m.BeforeClose != nil {
		m.BeforeClose(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || !rec.IsOpen() {
		return database.ErrRecordNotOpen
	}
	out := checkOut
	rec.CheckOut = &out
	m.records[id] = rec
	return nil
}

// DeleteRecordsByEmployee removes all records of an employee
func (m *MockAttendanceStore) DeleteRecordsByEmployee(ctx context.Context, employeeKey string) (int64, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if rec.EmployeeKey == employeeKey {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// WithEmployeeLock serializes fn against every other unit of work on the store.
// The mock does not roll back partial writes.
func (m *MockAttendanceStore) WithEmployeeLock(
	ctx context.Context, employeeKey string, fn func(w database.AttendanceWriter) error,
) error {
	if m.LockError != nil {
		return m.LockError
	}
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(m)
}

// Verify interface compliance
var (
	_ database.ReferenceWriter = (*MockReferenceStore)(nil)
	_ database.AttendanceStore = (*MockAttendanceStore)(nil)
)
