package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/model"
)

// CollectionServiceInterface は収集ハンドラーが必要とするサービスインターフェース。
type CollectionServiceInterface interface {
	// RunNow は収集パイプラインを即時実行する。
	RunNow(ctx context.Context, tenantID string) (*model.CollectionJob, error)
	// JobHistory はジョブ履歴を新しい順に返す。
	JobHistory(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error)
	// GetJob は指定IDのジョブを返す。
	GetJob(ctx context.Context, tenantID, jobID string) (*model.CollectionJob, error)
}

// CollectionHandler は収集ジョブのHTTPハンドラー。
type CollectionHandler struct {
	service CollectionServiceInterface
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(service CollectionServiceInterface) *CollectionHandler {
	return &CollectionHandler{service: service}
}

// jobResponse は収集ジョブのAPIレスポンス。
type jobResponse struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	StartedAt         string  `json:"started_at"`
	CompletedAt       *string `json:"completed_at"`
	TotalKeywords     int     `json:"total_keywords"`
	ProcessedKeywords int     `json:"processed_keywords"`
	TotalArticles     int     `json:"total_articles"`
	TotalSocialPosts  int     `json:"total_social_posts"`
	ErrorMessage      string  `json:"error_message,omitempty"`
}

func toJobResponse(job *model.CollectionJob) jobResponse {
	resp := jobResponse{
		ID:                job.ID,
		Status:            string(job.Status),
		StartedAt:         job.StartedAt.UTC().Format(time.RFC3339),
		TotalKeywords:     job.TotalKeywords,
		ProcessedKeywords: job.ProcessedKeywords,
		TotalArticles:     job.TotalArticles,
		TotalSocialPosts:  job.TotalSocialPosts,
		ErrorMessage:      job.ErrorMessage,
	}
	if job.CompletedAt != nil {
		completed := job.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

// RunCollection は収集を即時実行する。
// POST /api/collections/run
func (h *CollectionHandler) RunCollection(w http.ResponseWriter, r *http.Request) {
	tenantID, err := middleware.TenantIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	job, err := h.service.RunNow(r.Context(), tenantID)
	if err != nil {
		// ジョブ行が作られた後の失敗はジョブの終端状態ごと返す
		if job != nil {
			writeJSON(w, http.StatusOK, toJobResponse(job))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

// ListCollections はジョブ履歴を取得する。
// GET /api/collections?limit=N
func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	tenantID, err := middleware.TenantIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	jobs, err := h.service.JobHistory(r.Context(), tenantID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]jobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = toJobResponse(job)
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": responses})
}

// GetCollection はジョブ詳細を取得する。
// GET /api/collections/{id}
func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	tenantID, err := middleware.TenantIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	jobID := chi.URLParam(r, "id")

	job, err := h.service.GetJob(r.Context(), tenantID, jobID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}
