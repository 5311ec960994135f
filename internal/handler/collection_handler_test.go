package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/brandpulse/internal/model"
)

var errPersistFailed = errors.New("db down")

// --- モック定義 ---

// mockCollectionService はCollectionServiceInterfaceのテスト用モック。
type mockCollectionService struct {
	runNowFunc     func(ctx context.Context, tenantID string) (*model.CollectionJob, error)
	jobHistoryFunc func(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error)
	getJobFunc     func(ctx context.Context, tenantID, jobID string) (*model.CollectionJob, error)
}

func (m *mockCollectionService) RunNow(ctx context.Context, tenantID string) (*model.CollectionJob, error) {
	if m.runNowFunc != nil {
		return m.runNowFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockCollectionService) JobHistory(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error) {
	if m.jobHistoryFunc != nil {
		return m.jobHistoryFunc(ctx, tenantID, limit)
	}
	return nil, nil
}

func (m *mockCollectionService) GetJob(ctx context.Context, tenantID, jobID string) (*model.CollectionJob, error) {
	if m.getJobFunc != nil {
		return m.getJobFunc(ctx, tenantID, jobID)
	}
	return nil, nil
}

func completedJob(id string) *model.CollectionJob {
	completedAt := time.Date(2026, 2, 1, 12, 5, 0, 0, time.UTC)
	return &model.CollectionJob{
		ID:                id,
		TenantID:          "tenant-1",
		Status:            model.JobStatusCompleted,
		StartedAt:         time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		CompletedAt:       &completedAt,
		TotalKeywords:     2,
		ProcessedKeywords: 2,
		TotalArticles:     10,
		TotalSocialPosts:  4,
	}
}

// TestRunCollection_Success は手動実行の成功が201で返ることを検証する。
func TestRunCollection_Success(t *testing.T) {
	svc := &mockCollectionService{
		runNowFunc: func(ctx context.Context, tenantID string) (*model.CollectionJob, error) {
			return completedJob("job-1"), nil
		},
	}
	h := NewCollectionHandler(svc)

	rec := httptest.NewRecorder()
	h.RunCollection(rec, tenantRequest(http.MethodPost, "/api/collections/run", ""))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.ID != "job-1" || resp.Status != "completed" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.TotalArticles != 10 || resp.TotalSocialPosts != 4 {
		t.Errorf("counts = %d/%d, want 10/4", resp.TotalArticles, resp.TotalSocialPosts)
	}
	if resp.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
}

// TestRunCollection_AlreadyRunning は実行中ジョブとの競合が409で返ることを検証する。
func TestRunCollection_AlreadyRunning(t *testing.T) {
	svc := &mockCollectionService{
		runNowFunc: func(ctx context.Context, tenantID string) (*model.CollectionJob, error) {
			return nil, model.NewJobAlreadyRunningError(tenantID)
		},
	}
	h := NewCollectionHandler(svc)

	rec := httptest.NewRecorder()
	h.RunCollection(rec, tenantRequest(http.MethodPost, "/api/collections/run", ""))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

// TestRunCollection_NoKeywords はキーワード未登録が422で返ることを検証する。
func TestRunCollection_NoKeywords(t *testing.T) {
	svc := &mockCollectionService{
		runNowFunc: func(ctx context.Context, tenantID string) (*model.CollectionJob, error) {
			return nil, model.NewNoKeywordsError()
		},
	}
	h := NewCollectionHandler(svc)

	rec := httptest.NewRecorder()
	h.RunCollection(rec, tenantRequest(http.MethodPost, "/api/collections/run", ""))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

// TestRunCollection_FailedJobReturnsTerminalState はジョブ作成後の失敗が
// エラーではなくfailedステータスのジョブとして返ることを検証する。
func TestRunCollection_FailedJobReturnsTerminalState(t *testing.T) {
	svc := &mockCollectionService{
		runNowFunc: func(ctx context.Context, tenantID string) (*model.CollectionJob, error) {
			completedAt := time.Now().UTC()
			job := &model.CollectionJob{
				ID:           "job-2",
				TenantID:     tenantID,
				Status:       model.JobStatusFailed,
				StartedAt:    time.Now().UTC(),
				CompletedAt:  &completedAt,
				ErrorMessage: "収集結果の永続化に失敗",
			}
			return job, errPersistFailed
		},
	}
	h := NewCollectionHandler(svc)

	rec := httptest.NewRecorder()
	h.RunCollection(rec, tenantRequest(http.MethodPost, "/api/collections/run", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Status != "failed" || resp.ErrorMessage == "" {
		t.Errorf("resp = %+v, want failed with error message", resp)
	}
}

// TestListCollections はジョブ履歴の取得とlimitクエリの扱いを検証する。
func TestListCollections(t *testing.T) {
	var gotLimit int
	svc := &mockCollectionService{
		jobHistoryFunc: func(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error) {
			gotLimit = limit
			return []*model.CollectionJob{completedJob("job-1"), completedJob("job-2")}, nil
		},
	}
	h := NewCollectionHandler(svc)

	rec := httptest.NewRecorder()
	h.ListCollections(rec, tenantRequest(http.MethodGet, "/api/collections?limit=10", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}

	var resp struct {
		Jobs []jobResponse `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(resp.Jobs))
	}
}

// TestListCollections_LimitBounds は不正なlimitがデフォルト値へ丸められることを検証する。
func TestListCollections_LimitBounds(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
	}{
		{name: "未指定はデフォルト50", query: "", wantLimit: 50},
		{name: "0はデフォルトへ", query: "?limit=0", wantLimit: 50},
		{name: "負数はデフォルトへ", query: "?limit=-5", wantLimit: 50},
		{name: "上限超過はデフォルトへ", query: "?limit=500", wantLimit: 50},
		{name: "数値以外はデフォルトへ", query: "?limit=abc", wantLimit: 50},
		{name: "上限200は許容", query: "?limit=200", wantLimit: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			svc := &mockCollectionService{
				jobHistoryFunc: func(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error) {
					gotLimit = limit
					return nil, nil
				},
			}
			h := NewCollectionHandler(svc)

			rec := httptest.NewRecorder()
			h.ListCollections(rec, tenantRequest(http.MethodGet, "/api/collections"+tt.query, ""))

			if gotLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", gotLimit, tt.wantLimit)
			}
		})
	}
}

// TestGetCollection_NotFound は存在しないジョブIDが404で返ることを検証する。
func TestGetCollection_NotFound(t *testing.T) {
	svc := &mockCollectionService{
		getJobFunc: func(ctx context.Context, tenantID, jobID string) (*model.CollectionJob, error) {
			return nil, model.NewJobNotFoundError(jobID)
		},
	}
	h := NewCollectionHandler(svc)

	req := tenantRequest(http.MethodGet, "/api/collections/missing", "")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.GetCollection(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
