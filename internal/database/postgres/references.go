package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// ReferenceRepository provides PostgreSQL-backed storage of enrolled face embeddings.
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a new PostgreSQL reference repository.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// GetReferences retrieves all references of an employee in enrollment order.
func (r *ReferenceRepository) GetReferences(ctx context.Context, employeeKey string) ([]database.StoredReference, error) {
	query := `
		SELECT id, employee_key, embedding, model, dim, source, created_at
		FROM face_references
		WHERE employee_key = $1
		ORDER BY id
	`

	rows, err := r.pool.db.QueryContext(ctx, query, employeeKey)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	refs := []database.StoredReference{}
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
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
	query := `
		INSERT INTO face_references (employee_key, embedding, model, dim, source)
		VALUES ($1, $2::vector, $3, $4, $5)
		RETURNING id
	`

	var id int64
	vec := pgvector.NewVector(ref.Embedding)
	if err := r.pool.db.QueryRowContext(ctx, query, ref.EmployeeKey, vec, ref.Model, len(ref.Embedding), ref.Source).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert reference: %w", err)
	}
	return id, nil
}

// DeleteReferencesByEmployee removes all references of an employee.
func (r *ReferenceRepository) DeleteReferencesByEmployee(ctx context.Context, employeeKey string) (int64, error) {
	result, err := r.pool.db.ExecContext(ctx, "DELETE FROM face_references WHERE employee_key = $1", employeeKey)
	if err != nil {
		return 0, fmt.Errorf("delete references: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

func scanReference(scanner interface{ Scan(...any) error }) (database.StoredReference, error) {
	var ref database.StoredReference
	var vec pgvector.Vector
	var model, source sql.NullString

	if err := scanner.Scan(&ref.ID, &ref.EmployeeKey, &vec, &model, &ref.Dim, &source, &ref.CreatedAt); err != nil {
		return ref, fmt.Errorf("scan reference: %w", err)
	}
	ref.Embedding = vec.Slice()
	ref.Model = model.String
	ref.Source = source.String
	ref.CreatedAt = ref.CreatedAt.UTC()
	return ref, nil
}

var _ database.ReferenceWriter = (*ReferenceRepository)(nil)
