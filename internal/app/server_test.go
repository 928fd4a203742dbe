package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/config"
	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/core/ingestion_engine"
	"github.com/markdave123-py/Pagewise/internal/core/jobstore"
	"github.com/markdave123-py/Pagewise/internal/models"
)

type stubIngestor struct {
	jobs *jobstore.MemoryStore
	got  *ingestion_engine.Upload
}

func (s stubIngestor) Submit(_ context.Context, up ingestion_engine.Upload) (string, error) {
	if s.got != nil {
		*s.got = up
	}
	return "job-1", nil
}

func (s stubIngestor) Extract([]byte, string, []int) (*ingestion_engine.Extraction, error) {
	return &ingestion_engine.Extraction{}, nil
}

func (s stubIngestor) Status() (int, int) { return 0, 10 }

func (s stubIngestor) JobStore() core.JobStore { return s.jobs }

type stubSweeper struct{}

func (stubSweeper) Sweep(context.Context, time.Duration) ([]ingestion_engine.ReconcileResult, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{Port: "0", CorsOrigins: []string{"https://app.example"}, JWTSecret: "s", MaxFileSize: 1 << 20, ReconcileAfter: time.Hour}
}

func newTestServer(t *testing.T) (*Server, *jobstore.MemoryStore) {
	t.Helper()
	jobs := jobstore.NewMemoryStore(jobstore.DefaultTTLPolicy())
	return NewServer(testConfig(), zap.NewNop(), stubIngestor{jobs: jobs}, stubSweeper{}), jobs
}

func bearer(t *testing.T, secret, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRoutes(t *testing.T) {
	srv, jobs := newTestServer(t)
	require.NoError(t, jobs.Set(context.Background(), &models.Job{ID: "abc", Status: models.JobProcessing, Stage: models.StageReading}))

	cases := []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/job/abc", http.StatusOK},
		{http.MethodGet, "/job/nope", http.StatusNotFound},
		{http.MethodGet, "/admin/reconcile", http.StatusUnauthorized},
		{http.MethodGet, "/extract/async", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestReconcileRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reconcile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/reconcile", nil)
	req.Header.Set("Authorization", bearer(t, "s", "ops-1"))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadOwnerComesFromTokenOnly(t *testing.T) {
	var got ingestion_engine.Upload
	jobs := jobstore.NewMemoryStore(jobstore.DefaultTTLPolicy())
	srv := NewServer(testConfig(), zap.NewNop(), stubIngestor{jobs: jobs, got: &got}, stubSweeper{})

	post := func(auth string) int {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("user_id", "victim-42"))
		fw, err := mw.CreateFormFile("file", "a.pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.7 body"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/extract/async", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusAccepted, post(""))
	assert.Empty(t, got.OwnerID)

	require.Equal(t, http.StatusAccepted, post(bearer(t, "s", "u-1")))
	assert.Equal(t, "u-1", got.OwnerID)
}

func TestUploadRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/extract/async", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "pagewise", out["service"])
	assert.EqualValues(t, 10, out["slots_available"])
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/extract/async", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.CorsOrigins = []string{"*"}
	srv := NewServer(cfg, zap.NewNop(), stubIngestor{jobs: jobstore.NewMemoryStore(jobstore.DefaultTTLPolicy())}, stubSweeper{})

	req := httptest.NewRequest(http.MethodOptions, "/extract/async", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
