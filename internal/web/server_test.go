package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/core"
	_ "github.com/JonMunkholm/reconcile/internal/core/tables"
	"github.com/JonMunkholm/reconcile/internal/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerCSV = "企业名称,统一社会信用代码,顾问会计\n" +
	"Acme Co,91310000MA1K4ABC1X,王芳\n" +
	"Beta Ltd,91310000MA1K4ABC2Y,\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: time.Second, Timeout: time.Minute},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *memstore.Store) {
	t.Helper()
	store := memstore.New(memstore.Unique("sys_customer", "unified_social_credit_code"))
	limiter := core.NewBatchLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	engine := core.NewEngine(store, core.Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limiter: limiter,
	})
	return NewServer(engine, limiter, cfg), store
}

func multipartBody(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postImport(t *testing.T, s *Server, entity, fileName, content string, fields map[string]string) (*httptest.ResponseRecorder, core.BatchResult) {
	t.Helper()
	body, contentType := multipartBody(t, fileName, content, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/import/"+entity, body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var res core.BatchResult
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	return rec, res
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListEntities(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []core.EntityInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}
	assert.Contains(t, keys, "customer")
	assert.Contains(t, keys, "social_insurance")
}

func TestGetEntity(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities/customer", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"table":"sys_customer"`)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"ENT001"`)
}

func TestImport(t *testing.T) {
	s, store := newTestServer(t, testConfig())

	rec, res := postImport(t, s, "customer", "customers.csv", customerCSV, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.CreatedCount)
	assert.Equal(t, 2, store.Count("sys_customer"))

	// Re-importing reports every row as an existing customer.
	rec, res = postImport(t, s, "customer", "customers.csv", customerCSV, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Equal(t, 0, res.ExitCode())
}

func TestImport_BatchFailures(t *testing.T) {
	tests := []struct {
		name       string
		entity     string
		fileName   string
		content    string
		fields     map[string]string
		wantStatus int
		wantType   core.ErrorType
	}{
		{"unknown entity", "nope", "a.csv", customerCSV, nil, http.StatusNotFound, core.ErrTypeUnknownEntity},
		{"unsupported format", "customer", "a.pdf", "x", nil, http.StatusUnsupportedMediaType, core.ErrTypeUnsupportedFormat},
		{"missing columns", "customer", "a.csv", "备注信息\nhello\n", nil, http.StatusUnprocessableEntity, core.ErrTypeMissingColumns},
		{"bad encoding", "customer", "a.csv", customerCSV, map[string]string{"encoding": "ebcdic"}, http.StatusBadRequest, core.ErrTypeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, testConfig())

			rec, res := postImport(t, s, tt.entity, tt.fileName, tt.content, tt.fields)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantType, res.ErrorType)
			assert.False(t, res.Success)
		})
	}
}

func TestImport_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec, _ := postImport(t, s, "customer", "", "", map[string]string{"overwrite": "true"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"FILE004"`)

	rec, _ = postImport(t, s, "customer", "a.csv", customerCSV, map[string]string{"createIfMissing": "perhaps"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "createIfMissing")
}

func TestImport_CreateIfMissingField(t *testing.T) {
	s, store := newTestServer(t, testConfig())

	rec, res := postImport(t, s, "customer", "a.csv", customerCSV, map[string]string{"createIfMissing": "false"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, res.CreatedCount)
	assert.Equal(t, 0, store.Count("sys_customer"))
	assert.Equal(t, 1, res.ExitCode())
}

func TestImport_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 64
	s, _ := newTestServer(t, cfg)

	rec, _ := postImport(t, s, "customer", "a.csv", customerCSV+customerCSV, nil)
	assert.GreaterOrEqual(t, rec.Code, 400)
	assert.Less(t, rec.Code, 500)
}

func TestImportStatus(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status core.BatchLimiterStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 2, status.MaxConcurrent)
	assert.Equal(t, 0, status.Active)
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s, _ := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	rl := &rateLimiter{visitors: map[string]*visitor{}, rate: 2, window: time.Minute, now: func() time.Time { return now }}

	assert.True(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("1.2.3.4"))
	assert.False(t, rl.allow("1.2.3.4"))
	assert.True(t, rl.allow("5.6.7.8"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("1.2.3.4"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		errType core.ErrorType
		want    int
	}{
		{"", http.StatusOK},
		{core.ErrTypeFileNotFound, http.StatusNotFound},
		{core.ErrTypePeriodMismatch, http.StatusUnprocessableEntity},
		{core.ErrTypeImportInProgress, http.StatusConflict},
		{core.ErrTypeDatabase, http.StatusServiceUnavailable},
		{core.ErrTypeProcessing, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		got := statusFor(&core.BatchResult{ErrorType: tt.errType})
		assert.Equal(t, tt.want, got, "error type %q", tt.errType)
	}
}
