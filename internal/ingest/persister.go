// Package ingest は収集結果の永続化とジョブの終端化を提供する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/repository"
)

// IngestMetrics はインジェスターが記録するメトリクスのインターフェース。
type IngestMetrics interface {
	RecordInserted(kind string, count int)
	RecordSkipped(kind string, count int)
}

// noopMetrics はメトリクス未設定時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordInserted(string, int) {}
func (noopMetrics) RecordSkipped(string, int)  {}

// Persister は収集結果セットを履歴ストレージへ書き込み、ジョブを終端化する。
//
// 永続化ポリシー:
//   - レコード挿入は1件ずつ行い、個別の失敗はログに記録してスキップする
//     （バッチもジョブも中断しない）
//   - totalArticles / totalSocialPosts は挿入に成功した件数のみを数える
//   - processedKeywords は処理されたキーワード数（成功・部分成功を問わず全件）
//   - テナントのスナップショットは最新の結果セットで全体上書きされる
type Persister struct {
	jobRepo      repository.CollectionJobRepository
	histRepo     repository.HistoricalRepository
	snapRepo     repository.SnapshotRepository
	logger       *slog.Logger
	metrics      IngestMetrics
	storeTimeout time.Duration
}

// NewPersister はPersisterの新しいインスタンスを生成する。
func NewPersister(
	jobRepo repository.CollectionJobRepository,
	histRepo repository.HistoricalRepository,
	snapRepo repository.SnapshotRepository,
	logger *slog.Logger,
	metrics IngestMetrics,
	storeTimeout time.Duration,
) *Persister {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Persister{
		jobRepo:      jobRepo,
		histRepo:     histRepo,
		snapRepo:     snapRepo,
		logger:       logger,
		metrics:      metrics,
		storeTimeout: storeTimeout,
	}
}

// Persist は収集結果を履歴ストレージへ書き込み、ジョブをcompletedに終端化する。
// jobはrunning状態で作成済みであること。全レコードの挿入を試行した後、
// カウントを確定してFinalizeを1回だけ呼ぶ。
func (p *Persister) Persist(ctx context.Context, job *model.CollectionJob, results []model.KeywordResult) error {
	start := time.Now()
	collectedAt := time.Now()

	var articles, socialPosts, skipped int

	for _, result := range results {
		for _, item := range result.News {
			if p.insertOne(ctx, job, result.Keyword, model.RecordKindNews, item, collectedAt) {
				articles++
			} else {
				skipped++
			}
		}
		for _, item := range result.Social {
			if p.insertOne(ctx, job, result.Keyword, model.RecordKindSocial, item, collectedAt) {
				socialPosts++
			} else {
				skipped++
			}
		}
	}

	// スナップショットは最新結果で全体上書き（マージしない）。
	// 失敗しても履歴は保存済みのため、ジョブは失敗にしない。
	snapCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	err := p.snapRepo.Overwrite(snapCtx, &model.Snapshot{
		TenantID:    job.TenantID,
		Results:     results,
		CollectedAt: collectedAt,
	})
	cancel()
	if err != nil {
		p.logger.Error("スナップショットの上書きに失敗しました",
			slog.String("tenant_id", job.TenantID),
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &now
	job.ProcessedKeywords = len(results)
	job.TotalArticles = articles
	job.TotalSocialPosts = socialPosts

	finalizeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	if err := p.jobRepo.Finalize(finalizeCtx, job); err != nil {
		return fmt.Errorf("%w: %s", model.NewPersistenceError("ジョブの終端化に失敗しました"), err.Error())
	}

	duration := time.Since(start)
	p.logger.Info("収集結果の永続化が完了しました",
		slog.String("tenant_id", job.TenantID),
		slog.String("job_id", job.ID),
		slog.Int("keywords", len(results)),
		slog.Int("articles", articles),
		slog.Int("social_posts", socialPosts),
		slog.Int("skipped", skipped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// insertOne は1件の履歴レコードを挿入する。成功時はtrueを返す。
// 挿入失敗はログに記録してスキップし、バッチを継続する。
func (p *Persister) insertOne(
	ctx context.Context,
	job *model.CollectionJob,
	keyword string,
	kind model.RecordKind,
	item model.SourceItem,
	collectedAt time.Time,
) bool {
	record := buildRecord(job, keyword, kind, item, collectedAt)

	insertCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	if err := p.histRepo.Insert(insertCtx, record); err != nil {
		p.metrics.RecordSkipped(string(kind), 1)
		p.logger.Error("履歴レコードの挿入に失敗しました（スキップして継続します）",
			slog.String("tenant_id", job.TenantID),
			slog.String("job_id", job.ID),
			slog.String("keyword", keyword),
			slog.String("kind", string(kind)),
			slog.String("external_id", item.ExternalID),
			slog.String("error", err.Error()),
		)
		return false
	}

	p.metrics.RecordInserted(string(kind), 1)
	return true
}

// buildRecord は正規化済みSourceItemから書き込み用のHistoricalRecordを構築する。
func buildRecord(
	job *model.CollectionJob,
	keyword string,
	kind model.RecordKind,
	item model.SourceItem,
	collectedAt time.Time,
) *model.HistoricalRecord {
	return &model.HistoricalRecord{
		ID:              uuid.NewString(),
		TenantID:        job.TenantID,
		Keyword:         keyword,
		CollectionJobID: job.ID,
		Kind:            kind,
		ExternalID:      item.ExternalID,
		Title:           item.Title,
		Description:     item.Description,
		URL:             item.URL,
		PublishedAt:     item.PublishedAt,
		SourceName:      item.SourceName,
		SourceLogo:      item.SourceLogo,
		Image:           item.Image,
		SentimentScore:  item.SentimentScore,
		SentimentLabel:  item.SentimentLabel,
		Engagement:      item.Engagement,
		Categories:      item.Categories,
		Topics:          item.Topics,
		RawPayload:      item.RawPayload,
		CollectedAt:     collectedAt,
	}
}
