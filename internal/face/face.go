// Package face holds the embedding types and the verification decision used to
// match a freshly captured face against an employee's enrolled references.
package face

import (
	"errors"
	"fmt"
)

// DefaultTolerance is the maximum Euclidean distance accepted as a match.
const DefaultTolerance = 0.45

// ErrDimensionMismatch is returned when a vector does not have the expected length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Vector is a face embedding produced by the external model.
type Vector []float32

// ReferenceSet is the collection of enrolled embeddings for one employee.
type ReferenceSet struct {
	EmployeeKey string
	Vectors     []Vector
}

// Len returns the number of reference vectors.
func (rs ReferenceSet) Len() int {
	return len(rs.Vectors)
}

// Outcome tags the variant of a Verdict.
type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeRejected
	OutcomeNoReferenceData
	OutcomeNoFaceInProbe
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeNoReferenceData:
		return "no_reference_data"
	case OutcomeNoFaceInProbe:
		return "no_face_in_probe"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Verdict is the result of verifying a probe against a reference set.
// MinDistance and MatchedIndex are only meaningful for Accepted and Rejected.
type Verdict struct {
	Outcome      Outcome
	MinDistance  float64
	MatchedIndex int
	Tolerance    float64
}

// Accepted reports whether the verdict grants the action.
func (v Verdict) Accepted() bool {
	return v.Outcome == OutcomeAccepted
}

// NoFaceVerdict is the verdict for a probe image in which no face was detected.
func NoFaceVerdict() Verdict {
	return Verdict{Outcome: OutcomeNoFaceInProbe, MatchedIndex: -1}
}
