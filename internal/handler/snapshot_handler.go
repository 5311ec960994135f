package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/brandpulse/internal/middleware"
	"github.com/hitoshi/brandpulse/internal/model"
)

// SnapshotReader はスナップショットハンドラーが必要とする読み取りインターフェース。
type SnapshotReader interface {
	// Get はテナントのスナップショットを取得する。存在しない場合はnilを返す。
	Get(ctx context.Context, tenantID string) (*model.Snapshot, error)
}

// SnapshotHandler はダッシュボード用スナップショットのHTTPハンドラー。
type SnapshotHandler struct {
	reader SnapshotReader
}

// NewSnapshotHandler はSnapshotHandlerを生成する。
func NewSnapshotHandler(reader SnapshotReader) *SnapshotHandler {
	return &SnapshotHandler{reader: reader}
}

// snapshotItemResponse はスナップショット内の1件のAPIレスポンス。
type snapshotItemResponse struct {
	ExternalID     string             `json:"external_id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	URL            string             `json:"url"`
	PublishedAt    string             `json:"published_at"`
	SourceName     string             `json:"source_name"`
	SourceLogo     string             `json:"source_logo,omitempty"`
	Image          string             `json:"image,omitempty"`
	SentimentScore int                `json:"sentiment_score"`
	SentimentLabel string             `json:"sentiment_label"`
	Engagement     map[string]float64 `json:"engagement"`
	Categories     []string           `json:"categories"`
	Topics         []string           `json:"topics"`
}

// snapshotKeywordResponse は1キーワード分のスナップショットAPIレスポンス。
type snapshotKeywordResponse struct {
	Keyword string                 `json:"keyword"`
	News    []snapshotItemResponse `json:"news"`
	Social  []snapshotItemResponse `json:"social"`
}

// snapshotResponse はスナップショット全体のAPIレスポンス。
type snapshotResponse struct {
	TenantID    string                    `json:"tenant_id"`
	Results     []snapshotKeywordResponse `json:"results"`
	CollectedAt string                    `json:"collected_at,omitempty"`
}

func toSnapshotItemResponse(item model.SourceItem) snapshotItemResponse {
	return snapshotItemResponse{
		ExternalID:     item.ExternalID,
		Title:          item.Title,
		Description:    item.Description,
		URL:            item.URL,
		PublishedAt:    item.PublishedAt.UTC().Format(time.RFC3339),
		SourceName:     item.SourceName,
		SourceLogo:     item.SourceLogo,
		Image:          item.Image,
		SentimentScore: item.SentimentScore,
		SentimentLabel: string(item.SentimentLabel),
		Engagement:     item.Engagement,
		Categories:     item.Categories,
		Topics:         item.Topics,
	}
}

// GetSnapshot はテナントの最新取得結果を返す。
// 未収集のテナントには空のスナップショットを返す。
// GET /api/snapshot
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID, err := middleware.TenantIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	snapshot, err := h.reader.Get(r.Context(), tenantID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := snapshotResponse{
		TenantID: tenantID,
		Results:  []snapshotKeywordResponse{},
	}
	if snapshot != nil {
		resp.CollectedAt = snapshot.CollectedAt.UTC().Format(time.RFC3339)
		for _, result := range snapshot.Results {
			kw := snapshotKeywordResponse{
				Keyword: result.Keyword,
				News:    make([]snapshotItemResponse, len(result.News)),
				Social:  make([]snapshotItemResponse, len(result.Social)),
			}
			for i, item := range result.News {
				kw.News[i] = toSnapshotItemResponse(item)
			}
			for i, item := range result.Social {
				kw.Social[i] = toSnapshotItemResponse(item)
			}
			resp.Results = append(resp.Results, kw)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
