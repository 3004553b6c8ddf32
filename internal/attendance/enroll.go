package attendance

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/employee"
)

// ReferenceImage is one enrollment photo.
type ReferenceImage struct {
	Name string
	Data []byte
}

// SkippedImage is a reference image that produced no embedding.
type SkippedImage struct {
	Name   string
	Reason string
}

// EnrollResult summarizes an enrollment run.
type EnrollResult struct {
	EmployeeKey string
	Stored      []int64
	Skipped     []SkippedImage
}

// Enroller extracts embeddings from reference images and stores them.
type Enroller struct {
	embedder Embedder
	refs     database.ReferenceWriter
	model    string
	dim      int
}

// NewEnroller creates an enroller. dim > 0 rejects embeddings of another size.
func NewEnroller(emb Embedder, refs database.ReferenceWriter, model string, dim int) *Enroller {
	return &Enroller{embedder: emb, refs: refs, model: model, dim: dim}
}

// Enroll stores one reference per image with a detectable face. Images
// without a face or that cannot be decoded are skipped; enrollment fails if
// none remain. progress, if set, is called once per processed image.
func (e *Enroller) Enroll(ctx context.Context, employeeKey string, images []ReferenceImage, progress func()) (EnrollResult, error) {
	const op = "enroll"
	key := employee.NormalizeKey(employeeKey)
	if key == "" {
		return EnrollResult{}, newError(KindInput, op, "employee is required", nil)
	}
	if len(images) == 0 {
		return EnrollResult{}, newError(KindInput, op, "at least one reference image is required", nil)
	}

	res := EnrollResult{EmployeeKey: key}
	for _, img := range images {
		id, skip, err := e.enrollOne(ctx, key, img)
		if progress != nil {
			progress()
		}
		if err != nil {
			return res, err
		}
		if skip != "" {
			res.Skipped = append(res.Skipped, SkippedImage{Name: img.Name, Reason: skip})
			continue
		}
		res.Stored = append(res.Stored, id)
	}

	if len(res.Stored) == 0 {
		return res, newError(KindNoFaceInProbe, op, "no face found in any reference image", nil)
	}
	return res, nil
}

func (e *Enroller) enrollOne(ctx context.Context, key string, img ReferenceImage) (int64, string, error) {
	const op = "enroll"
	vec, err := e.embedder.Embed(ctx, img.Data)
	switch {
	case errors.Is(err, embedder.ErrNoFaceFound):
		return 0, "no face detected", nil
	case errors.Is(err, embedder.ErrUnreadableImage):
		return 0, "unreadable image", nil
	case err != nil:
		return 0, "", classifyEmbedError(op, err)
	}
	if e.dim > 0 && len(vec) != e.dim {
		return 0, "", newError(KindDimensionMismatch, op, DefaultMessage(KindDimensionMismatch), nil)
	}

	id, err := e.refs.AddReference(ctx, database.StoredReference{
		EmployeeKey: key,
		Embedding:   vec,
		Model:       e.model,
		Dim:         len(vec),
		Source:      img.Name,
	})
	if err != nil {
		return 0, "", classifyStoreError(op, err)
	}
	return id, "", nil
}
