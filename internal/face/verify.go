package face

import (
	"errors"
	"fmt"
	"math"
)

// EuclideanDistance computes the L2 distance between two vectors of equal length.
func EuclideanDistance(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Verifier applies a fixed tolerance and expected dimension.
type Verifier struct {
	tolerance float64
	dim       int
}

// NewVerifier creates a verifier. A dim of 0 accepts any non-empty probe length.
func NewVerifier(tolerance float64, dim int) (*Verifier, error) {
	if math.IsNaN(tolerance) || tolerance < 0 {
		return nil, fmt.Errorf("invalid tolerance %v", tolerance)
	}
	if dim < 0 {
		return nil, errors.New("dimension must not be negative")
	}
	return &Verifier{tolerance: tolerance, dim: dim}, nil
}

// Tolerance returns the configured match tolerance.
func (v *Verifier) Tolerance() float64 {
	return v.tolerance
}

// Dim returns the expected embedding dimension, 0 if unconstrained.
func (v *Verifier) Dim() int {
	return v.dim
}

// Verify checks probe against refs with the verifier's tolerance.
func (v *Verifier) Verify(probe Vector, refs ReferenceSet) (Verdict, error) {
	if len(refs.Vectors) == 0 {
		return Verdict{Outcome: OutcomeNoReferenceData, MatchedIndex: -1, Tolerance: v.tolerance}, nil
	}
	if v.dim > 0 && len(probe) != v.dim {
		return Verdict{}, fmt.Errorf("%w: probe has %d values, want %d", ErrDimensionMismatch, len(probe), v.dim)
	}
	return verify(probe, refs, v.tolerance)
}

// Verify checks probe against refs using the given tolerance.
// Distance equal to tolerance is a match.
func Verify(probe Vector, refs ReferenceSet, tolerance float64) (Verdict, error) {
	if len(refs.Vectors) == 0 {
		return Verdict{Outcome: OutcomeNoReferenceData, MatchedIndex: -1, Tolerance: tolerance}, nil
	}
	return verify(probe, refs, tolerance)
}

func verify(probe Vector, refs ReferenceSet, tolerance float64) (Verdict, error) {
	if len(probe) == 0 {
		return Verdict{}, fmt.Errorf("%w: empty probe", ErrDimensionMismatch)
	}

	minDistance := math.Inf(1)
	matched := -1
	for i, ref := range refs.Vectors {
		d, err := EuclideanDistance(probe, ref)
		if err != nil {
			return Verdict{}, fmt.Errorf("reference %d: %w", i, err)
		}
		if d < minDistance {
			minDistance = d
			matched = i
		}
	}

	verdict := Verdict{
		Outcome:      OutcomeRejected,
		MinDistance:  minDistance,
		MatchedIndex: matched,
		Tolerance:    tolerance,
	}
	if minDistance <= tolerance {
		verdict.Outcome = OutcomeAccepted
	}
	return verdict, nil
}
