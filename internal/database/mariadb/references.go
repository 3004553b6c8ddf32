package mariadb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// ReferenceRepository stores enrolled embeddings as JSON lists
// ([e1, e2, ..., eN]) in a MEDIUMBLOB column.
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a new MariaDB reference repository.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// GetReferences retrieves all references of an employee in enrollment order.
func (r *ReferenceRepository) GetReferences(ctx context.Context, employeeKey string) ([]database.StoredReference, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, employee_key, embedding_json, model, dim, source, created_at
		FROM face_references
		WHERE employee_key = ?
		ORDER BY id
	`, employeeKey)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	refs := []database.StoredReference{}
	for rows.Next() {
		var ref database.StoredReference
		var data []byte
		if err := rows.Scan(&ref.ID, &ref.EmployeeKey, &data, &ref.Model, &ref.Dim, &ref.Source, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		if err := json.Unmarshal(data, &ref.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding of reference %d: %w", ref.ID, err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, nil
}

// ListEmployees returns the distinct employee keys with at least one reference.
func (r *ReferenceRepository) ListEmployees(ctx context.Context) ([]string, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT DISTINCT employee_key FROM face_references ORDER BY employee_key")
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return keys, nil
}

// AddReference stores a reference embedding and returns its ID.
func (r *ReferenceRepository) AddReference(ctx context.Context, ref database.StoredReference) (int64, error) {
	data, err := json.Marshal(ref.Embedding)
	if err != nil {
		return 0, fmt.Errorf("marshal embedding: %w", err)
	}

	result, err := r.pool.db.ExecContext(ctx,
		`INSERT INTO face_references (employee_key, embedding_json, model, dim, source) VALUES (?, ?, ?, ?, ?)`,
		ref.EmployeeKey, data, ref.Model, len(ref.Embedding), ref.Source)
	if err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting insert id: %w", err)
	}
	return id, nil
}

// DeleteReferencesByEmployee removes all references of an employee.
func (r *ReferenceRepository) DeleteReferencesByEmployee(ctx context.Context, employeeKey string) (int64, error) {
	result, err := r.pool.db.ExecContext(ctx, "DELETE FROM face_references WHERE employee_key = ?", employeeKey)
	if err != nil {
		return 0, fmt.Errorf("delete references: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

var _ database.ReferenceWriter = (*ReferenceRepository)(nil)
