package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/model"
)

// ScheduleServiceInterface はスケジュールハンドラーが必要とするサービスインターフェース。
type ScheduleServiceInterface interface {
	// GetSettings はテナントの設定を返す。存在しない場合はデフォルト値で遅延作成する。
	GetSettings(ctx context.Context, tenantID string) (*model.ScheduleSettings, error)
	// UpdateSettings は設定を検証・更新し、タイマーを再登録する。
	UpdateSettings(ctx context.Context, tenantID string, enabled bool, intervalHours int, timezone string) (*model.ScheduleSettings, error)
}

// ScheduleHandler はスケジュール設定のHTTPハンドラー。
type ScheduleHandler struct {
	service ScheduleServiceInterface
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(service ScheduleServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// updateScheduleRequest はスケジュール更新リクエストのボディ。
type updateScheduleRequest struct {
	Enabled       bool   `json:"enabled"`
	IntervalHours int    `json:"interval_hours"`
	Timezone      string `json:"timezone"`
}

// scheduleResponse はスケジュール設定のAPIレスポンス。
type scheduleResponse struct {
	TenantID      string `json:"tenant_id"`
	Enabled       bool   `json:"enabled"`
	IntervalHours int    `json:"interval_hours"`
	Timezone      string `json:"timezone"`
	UpdatedAt     string `json:"updated_at"`
}

func toScheduleResponse(s *model.ScheduleSettings) scheduleResponse {
	return scheduleResponse{
		TenantID:      s.TenantID,
		Enabled:       s.Enabled,
		IntervalHours: s.IntervalHours,
		Timezone:      s.Timezone,
		UpdatedAt:     s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// GetSchedule はスケジュール設定を取得する。
// GET /api/schedule
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := middleware.TenantIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	settings, err := h.service.GetSettings(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(settings))
}

// UpdateSchedule はスケジュール設定を更新する。
// PUT /api/schedule
func (h *ScheduleHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := middleware.TenantIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), tenantID, req.Enabled, req.IntervalHours, req.Timezone)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(settings))
}
