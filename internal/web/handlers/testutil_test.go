package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/face"
)

const testDim = 128

// axis returns a testDim vector with x at index 0.
func axis(x float32) face.Vector {
	v := make(face.Vector, testDim)
	v[0] = x
	return v
}

// stubEmbedder maps image bytes to embeddings. Unknown images have no face.
type stubEmbedder map[string]face.Vector

func (s stubEmbedder) Embed(ctx context.Context, image []byte) (face.Vector, error) {
	if string(image) == "garbage" {
		return nil, embedder.ErrUnreadableImage
	}
	v, ok := s[string(image)]
	if !ok {
		return nil, embedder.ErrNoFaceFound
	}
	return v, nil
}

// testEnv wires a real attendance service over in-memory stores.
type testEnv struct {
	refs    *mock.MockReferenceStore
	records *mock.MockAttendanceStore
	now     time.Time
	handler *AttendanceHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		refs:    mock.NewMockReferenceStore(),
		records: mock.NewMockAttendanceStore(),
		now:     time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	env.refs.AddVectors("alice", axis(0.2), axis(0.5))

	emb := stubEmbedder{
		"alice.jpg":   axis(0.0),
		"mallory.jpg": axis(1.0),
	}
	verifier, err := face.NewVerifier(face.DefaultTolerance, testDim)
	if err != nil {
		t.Fatalf("NewVerifier() failed: %v", err)
	}
	svc := attendance.NewService(emb, env.refs, verifier, attendance.NewLedger(env.records),
		attendance.WithClock(func() time.Time { return env.now }))
	env.handler = NewAttendanceHandler(svc)
	return env
}

// multipartRequest builds a POST /api/v1/attendance request. An empty image
// omits the file part.
func multipartRequest(t *testing.T, fields map[string]string, image string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if image != "" {
		fw, err := mw.CreateFormFile("image", "probe.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		fw.Write([]byte(image))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertErrorKind checks that the response is a failed call of the expected kind
func assertErrorKind(t *testing.T, recorder *httptest.ResponseRecorder, expected attendance.Kind) {
	t.Helper()
	var result errorResponse
	parseJSONResponse(t, recorder, &result)
	if result.Success {
		t.Error("expected success false")
	}
	if result.Error != string(expected) {
		t.Errorf("expected error '%s', got '%s'", expected, result.Error)
	}
	if result.Message == "" {
		t.Error("expected a non-empty message")
	}
}
