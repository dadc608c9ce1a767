package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fieldglass/needlefinder/internal/config"
	"github.com/fieldglass/needlefinder/internal/model"
	"github.com/fieldglass/needlefinder/internal/pipeline"
	"github.com/fieldglass/needlefinder/internal/schema"
	"github.com/fieldglass/needlefinder/internal/store"
	"github.com/fieldglass/needlefinder/pkg/anthropic"
)

type mockCompletionClient struct {
	mock.Mock
}

func (m *mockCompletionClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func completionResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 40, OutputTokens: 8},
	}
}

func serveTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func serveTestRouter(t *testing.T, st store.Store, ai anthropic.Client) http.Handler {
	t.Helper()
	reg, err := schema.LoadRegistry("")
	require.NoError(t, err)
	serveCfg := &config.Config{
		Anthropic: config.AnthropicConfig{
			Model:       "claude-sonnet-4-5-20250929",
			MaxTokens:   4096,
			TimeoutSecs: 5,
		},
		Extraction: config.ExtractionConfig{MaxConcurrent: 4, ChunkTokens: 32000},
		Filter:     config.FilterConfig{MinPopulatedFraction: 0.5},
	}
	return newRouter(reg, st, pipeline.New(serveCfg, st, ai))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestServeHealth(t *testing.T) {
	r := serveTestRouter(t, serveTestStore(t), &mockCompletionClient{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestServeSchemas(t *testing.T) {
	r := serveTestRouter(t, serveTestStore(t), &mockCompletionClient{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schemas", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var schemas []schema.Schema
	decodeBody(t, rec, &schemas)
	require.Len(t, schemas, 1)
	assert.Equal(t, "TechCompany", schemas[0].Name)
	assert.NotEmpty(t, schemas[0].Fields)
}

func TestServeExtract(t *testing.T) {
	st := serveTestStore(t)
	ai := &mockCompletionClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(completionResponse(`[{"name":"Acme Corp","product":"robots","founded_year":1998,"headquarters":"Portland"}]`), nil)
	r := serveTestRouter(t, st, ai)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/extract",
		strings.NewReader(`{"schema":"TechCompany","text":"Acme Corp builds robots in Portland, since 1998."}`))
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	decodeBody(t, rec, &run)
	assert.Equal(t, model.RunStatusWritten, run.Status)
	assert.Equal(t, "http", run.Input)
	require.NotNil(t, run.Result)
	require.Len(t, run.Result.Needles, 1)
	assert.Empty(t, run.Result.OutputPaths)

	// The run is persisted and retrievable by ID.
	stored, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusWritten, stored.Status)
}

func TestServeExtractRejectsBadRequests(t *testing.T) {
	r := serveTestRouter(t, serveTestStore(t), &mockCompletionClient{})

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed json", `{"schema":`, "invalid request body"},
		{"missing text", `{"schema":"TechCompany"}`, "text is required"},
		{"unknown schema", `{"schema":"NoSuch","text":"hay"}`, "NoSuch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(tt.body))
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			decodeBody(t, rec, &body)
			assert.Contains(t, body["error"], tt.wantErr)
		})
	}
}

func TestServeListRunsFilters(t *testing.T) {
	st := serveTestStore(t)
	ctx := context.Background()

	done, err := st.CreateRun(ctx, "TechCompany", "data/haystack.txt")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, done.ID, &model.RunResult{SchemaName: "TechCompany"}))

	broken, err := st.CreateRun(ctx, "TechCompany", "data/haystack.txt")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, broken.ID, assert.AnError))

	r := serveTestRouter(t, st, &mockCompletionClient{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	decodeBody(t, rec, &runs)
	assert.Len(t, runs, 2)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?status=written", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	runs = nil
	decodeBody(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, done.ID, runs[0].ID)
}

func TestServeListRunsEmptyIsArray(t *testing.T) {
	r := serveTestRouter(t, serveTestStore(t), &mockCompletionClient{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestServeGetRun(t *testing.T) {
	st := serveTestStore(t)
	run, err := st.CreateRun(context.Background(), "TechCompany", "inline")
	require.NoError(t, err)

	r := serveTestRouter(t, st, &mockCompletionClient{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Run
	decodeBody(t, rec, &got)
	assert.Equal(t, run.ID, got.ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/no-such-run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
