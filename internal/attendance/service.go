package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/employee"
	"github.com/kozaktomas/face-attendance/internal/face"
)

// DefaultTimeout bounds one attendance request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Embedder extracts a face embedding from an image.
type Embedder interface {
	Embed(ctx context.Context, image []byte) (face.Vector, error)
}

// Request is one attendance attempt.
type Request struct {
	Action      Action
	EmployeeKey string
	Image       []byte
}

// Result confirms an accepted attendance request.
type Result struct {
	Action      Action
	EmployeeKey string
	Timestamp   time.Time
	Record      database.AttendanceRecord
	Verdict     face.Verdict
}

// Service verifies the requester's face and, only when accepted, records the
// attendance event in the ledger.
type Service struct {
	embedder Embedder
	refs     database.ReferenceReader
	verifier *face.Verifier
	ledger   *Ledger
	clock    func() time.Time
	timeout  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now as the source of event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService creates an attendance service.
func NewService(emb Embedder, refs database.ReferenceReader, verifier *face.Verifier, ledger *Ledger, opts ...Option) *Service {
	s := &Service{
		embedder: emb,
		refs:     refs,
		verifier: verifier,
		ledger:   ledger,
		clock:    time.Now,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// HandleAttendanceRequest embeds the probe, verifies it against the employee's
// references and dispatches to the ledger. The ledger is never touched unless
// the verdict is accepted.
func (s *Service) HandleAttendanceRequest(ctx context.Context, req Request) (Result, error) {
	const op = "attendance"
	if req.Action != CheckIn && req.Action != CheckOut {
		return Result{}, newError(KindInput, op, "invalid action", nil)
	}
	key := employee.NormalizeKey(req.EmployeeKey)
	if key == "" {
		return Result{}, newError(KindInput, op, "employee is required", nil)
	}
	if len(req.Image) == 0 {
		return Result{}, newError(KindInput, op, "image is required", nil)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	verdict, err := s.verify(ctx, op, key, req.Image)
	if err != nil {
		return Result{}, err
	}

	switch verdict.Outcome {
	case face.OutcomeAccepted:
	case face.OutcomeNoFaceInProbe:
		return Result{}, newError(KindNoFaceInProbe, op, DefaultMessage(KindNoFaceInProbe), nil)
	case face.OutcomeNoReferenceData:
		return Result{}, newError(KindNoReferenceData, op, DefaultMessage(KindNoReferenceData), nil)
	case face.OutcomeRejected:
		return Result{}, newError(KindVerificationFailed, op, DefaultMessage(KindVerificationFailed), nil)
	default:
		return Result{}, newError(KindVerificationFailed, op, DefaultMessage(KindVerificationFailed),
			fmt.Errorf("unexpected verdict %s", verdict.Outcome))
	}

	now := s.clock()
	res := Result{Action: req.Action, EmployeeKey: key, Verdict: verdict}
	switch req.Action {
	case CheckIn:
		rec, err := s.ledger.CheckIn(ctx, key, now)
		if err != nil {
			return Result{}, err
		}
		res.Record = rec
		res.Timestamp = rec.CheckIn
	case CheckOut:
		rec, err := s.ledger.CheckOut(ctx, key, now)
		if err != nil {
			return Result{}, err
		}
		res.Record = rec
		res.Timestamp = *rec.CheckOut
	}
	return res, nil
}

// VerifyOnly returns the verdict for a probe image without touching the
// ledger. NoFaceInProbe and NoReferenceData are reported as verdicts.
func (s *Service) VerifyOnly(ctx context.Context, employeeKey string, image []byte) (face.Verdict, error) {
	const op = "verify"
	key := employee.NormalizeKey(employeeKey)
	if key == "" {
		return face.Verdict{}, newError(KindInput, op, "employee is required", nil)
	}
	if len(image) == 0 {
		return face.Verdict{}, newError(KindInput, op, "image is required", nil)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.verify(ctx, op, key, image)
}

func (s *Service) verify(ctx context.Context, op, key string, image []byte) (face.Verdict, error) {
	probe, err := s.embedder.Embed(ctx, image)
	if err != nil {
		if errors.Is(err, embedder.ErrNoFaceFound) {
			return face.NoFaceVerdict(), nil
		}
		return face.Verdict{}, classifyEmbedError(op, err)
	}

	refs, err := s.loadReferenceSet(ctx, key)
	if err != nil {
		return face.Verdict{}, classifyStoreError(op, err)
	}

	verdict, err := s.verifier.Verify(probe, refs)
	if err != nil {
		if errors.Is(err, face.ErrDimensionMismatch) {
			return face.Verdict{}, newError(KindDimensionMismatch, op, DefaultMessage(KindDimensionMismatch), err)
		}
		return face.Verdict{}, newError(KindInput, op, DefaultMessage(KindInput), err)
	}
	return verdict, nil
}

func (s *Service) loadReferenceSet(ctx context.Context, key string) (face.ReferenceSet, error) {
	stored, err := s.refs.GetReferences(ctx, key)
	if err != nil {
		return face.ReferenceSet{}, err
	}
	set := face.ReferenceSet{EmployeeKey: key, Vectors: make([]face.Vector, 0, len(stored))}
	for _, ref := range stored {
		set.Vectors = append(set.Vectors, face.Vector(ref.Embedding))
	}
	return set, nil
}

func classifyEmbedError(op string, err error) error {
	switch {
	case errors.Is(err, embedder.ErrUnreadableImage):
		return newError(KindInput, op, "unreadable image", err)
	case errors.Is(err, face.ErrDimensionMismatch):
		return newError(KindDimensionMismatch, op, DefaultMessage(KindDimensionMismatch), err)
	case isTimeout(err):
		return newError(KindTimeout, op, DefaultMessage(KindTimeout), err)
	}
	return newError(KindStoreUnavailable, op, "face embedding service unavailable, please retry", err)
}

// ListRecords returns attendance records, latest first.
func (s *Service) ListRecords(ctx context.Context, employeeKey string) ([]database.AttendanceRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.ledger.ListRecords(ctx, employeeKey)
}

// Status reports today's open sessions of an employee.
func (s *Service) Status(ctx context.Context, employeeKey string) (Status, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.ledger.Status(ctx, employeeKey, s.clock())
}

// RemoveAttendance deletes all attendance records of an employee.
func (s *Service) RemoveAttendance(ctx context.Context, employeeKey string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.ledger.RemoveEmployee(ctx, employeeKey)
}
