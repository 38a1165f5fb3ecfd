package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/reconcile"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) Preview(ctx context.Context, data []byte, opts reconcile.PreviewOptions) (*model.PreviewResult, error) {
	args := m.Called(ctx, data, opts)
	res, _ := args.Get(0).(*model.PreviewResult)
	return res, args.Error(1)
}

func (m *mockSyncer) Apply(ctx context.Context, data []byte, opts reconcile.ApplyOptions) (*model.ApplyResult, error) {
	args := m.Called(ctx, data, opts)
	res, _ := args.Get(0).(*model.ApplyResult)
	return res, args.Error(1)
}

func (m *mockSyncer) Runs(ctx context.Context, limit int) ([]model.SyncRun, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]model.SyncRun)
	return runs, args.Error(1)
}

func multipartBody(t *testing.T, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if file != nil {
		fw, err := mw.CreateFormFile("file", "tracker.xlsx")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, NewRouter(&mockSyncer{}, Options{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPreview(t *testing.T) {
	s := &mockSyncer{}
	res := &model.PreviewResult{Summary: model.PreviewSummary{TotalRows: 2, NewCMNumbers: 1}, Changes: []model.MatterChange{}}
	s.On("Preview", mock.Anything, []byte("xlsx-bytes"), reconcile.PreviewOptions{Validate: true}).Return(res, nil)

	body, ct := multipartBody(t, []byte("xlsx-bytes"), map[string]string{"validate": "true"})
	req := httptest.NewRequest(http.MethodPost, "/api/billing/preview", body)
	req.Header.Set("Content-Type", ct)

	rec := do(t, NewRouter(s, Options{}), req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.PreviewResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Summary.TotalRows)
	assert.Equal(t, 1, got.Summary.NewCMNumbers)
	s.AssertExpectations(t)
}

func TestPreview_ValidateDefaultFromOptions(t *testing.T) {
	s := &mockSyncer{}
	s.On("Preview", mock.Anything, mock.Anything, reconcile.PreviewOptions{Validate: true}).Return(&model.PreviewResult{}, nil)

	body, ct := multipartBody(t, []byte("x"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/billing/preview", body)
	req.Header.Set("Content-Type", ct)

	rec := do(t, NewRouter(s, Options{Validate: true}), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	s.AssertExpectations(t)
}

func TestApply_DryRun(t *testing.T) {
	s := &mockSyncer{}
	want := reconcile.ApplyOptions{DryRun: true, UploadedBy: "ops@firm.test", SourceFile: "tracker.xlsx"}
	s.On("Apply", mock.Anything, []byte("xlsx"), want).Return(&model.ApplyResult{DryRun: true}, nil)

	body, ct := multipartBody(t, []byte("xlsx"), map[string]string{"dryRun": "true"})
	req := httptest.NewRequest(http.MethodPost, "/api/billing/apply", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User", "ops@firm.test")

	rec := do(t, NewRouter(s, Options{}), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dry_run":true`)
	s.AssertExpectations(t)
}

func TestApply_MissingFile(t *testing.T) {
	s := &mockSyncer{}
	body, ct := multipartBody(t, nil, map[string]string{"dryRun": "false"})
	req := httptest.NewRequest(http.MethodPost, "/api/billing/apply", body)
	req.Header.Set("Content-Type", ct)

	rec := do(t, NewRouter(s, Options{}), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No file uploaded"}`, rec.Body.String())
	s.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything)
}

func TestPreview_NotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/billing/preview", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	rec := do(t, NewRouter(&mockSyncer{}, Options{}), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApply_TooLarge(t *testing.T) {
	body, ct := multipartBody(t, bytes.Repeat([]byte("x"), 4096), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/billing/apply", body)
	req.Header.Set("Content-Type", ct)

	rec := do(t, NewRouter(&mockSyncer{}, Options{MaxUploadBytes: 1024}), req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestApply_EngineError(t *testing.T) {
	s := &mockSyncer{}
	s.On("Apply", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("workbook: not an xlsx archive"))

	body, ct := multipartBody(t, []byte("junk"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/billing/apply", body)
	req.Header.Set("Content-Type", ct)

	rec := do(t, NewRouter(s, Options{}), req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"workbook: not an xlsx archive"}`, rec.Body.String())
}

func TestRuns(t *testing.T) {
	s := &mockSyncer{}
	s.On("Runs", mock.Anything, 5).Return([]model.SyncRun{{ID: "run-1", Status: "complete"}}, nil)
	s.On("Runs", mock.Anything, 0).Return(nil, nil)

	rec := do(t, NewRouter(s, Options{}), httptest.NewRequest(http.MethodGet, "/api/billing/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"run-1"`)

	rec = do(t, NewRouter(s, Options{}), httptest.NewRequest(http.MethodGet, "/api/billing/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/billing/apply", nil)
	req.Header.Set("Origin", "https://tracker.firm.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := do(t, NewRouter(&mockSyncer{}, Options{CORSOrigins: []string{"https://tracker.firm.test"}}), req)
	assert.Equal(t, "https://tracker.firm.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
