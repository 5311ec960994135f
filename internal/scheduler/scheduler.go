// Package scheduler はテナントごとの定期収集と手動実行を制御する。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/brandpulse/internal/collector"
	"github.com/hitoshi/brandpulse/internal/ingest"
	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/repository"
)

// JobMetrics はジョブ実行のメトリクス記録インターフェース。
type JobMetrics interface {
	RecordJobCompleted()
	RecordJobFailed()
	ObserveJobDuration(d time.Duration)
}

// noopMetrics はメトリクス未設定時のno-op実装。
type noopMetrics struct{}

func (noopMetrics) RecordJobCompleted()              {}
func (noopMetrics) RecordJobFailed()                 {}
func (noopMetrics) ObserveJobDuration(time.Duration) {}

// tenantTimer は1テナント分の定期実行タイマーを表す。
type tenantTimer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service はテナントごとの収集パイプラインを統括する。
//
// 不変条件: 同一テナントで同時に実行されるパイプラインは高々1つ。
// プロセス内ガード（runningマップ）とDBの部分一意インデックスの二重で強制する。
type Service struct {
	scheduleRepo repository.ScheduleSettingsRepository
	keywordRepo  repository.KeywordRepository
	jobRepo      repository.CollectionJobRepository
	collector    *collector.Collector
	persister    *ingest.Persister
	logger       *slog.Logger
	metrics      JobMetrics
	reapAfter    time.Duration
	now          func() time.Time

	// baseCtx はタイマーループの親コンテキスト。Startで設定される。
	// リクエスト起点の再スケジュールでリクエストの寿命にタイマーが
	// 引きずられないようにする。
	baseCtx context.Context

	mu      sync.Mutex
	timers  map[string]*tenantTimer
	running map[string]bool
	started bool
}

// NewService はスケジューラサービスを作成する。
// reapAfterが0以下の場合は6時間を使用する。
func NewService(
	scheduleRepo repository.ScheduleSettingsRepository,
	keywordRepo repository.KeywordRepository,
	jobRepo repository.CollectionJobRepository,
	col *collector.Collector,
	persister *ingest.Persister,
	logger *slog.Logger,
	metrics JobMetrics,
	reapAfter time.Duration,
) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if reapAfter <= 0 {
		reapAfter = 6 * time.Hour
	}
	return &Service{
		scheduleRepo: scheduleRepo,
		keywordRepo:  keywordRepo,
		jobRepo:      jobRepo,
		collector:    col,
		persister:    persister,
		logger:       logger,
		metrics:      metrics,
		reapAfter:    reapAfter,
		now:          time.Now,
		baseCtx:      context.Background(),
		timers:       make(map[string]*tenantTimer),
		running:      make(map[string]bool),
	}
}

// Start は起動時の残留ジョブ回収を行い、有効な全テナントのタイマーを登録する。
// 2回目以降の呼び出しはno-op。
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()

	// プロセスクラッシュでrunningのまま残ったジョブをfailedへ回収する
	reaped, err := s.jobRepo.ReapStale(ctx, s.now().Add(-s.reapAfter))
	if err != nil {
		return fmt.Errorf("残留ジョブの回収に失敗: %w", err)
	}
	if reaped > 0 {
		s.logger.Warn("残留ジョブを回収しました",
			slog.Int("reaped", reaped),
			slog.Duration("older_than", s.reapAfter))
	}

	settingsList, err := s.scheduleRepo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("スケジュール設定の読み取りに失敗: %w", err)
	}

	for _, settings := range settingsList {
		s.ScheduleTenant(settings)
	}

	s.logger.Info("スケジューラを起動しました",
		slog.Int("tenants", len(settingsList)))
	return nil
}

// ScheduleTenant はテナントのタイマーを登録する。既存タイマーは置き換える。
// settings.Enabledがfalseの場合はタイマーを解除するのみ。
// タイマーの親コンテキストはStartで渡されたものを使うため、
// リクエスト処理中の呼び出しでもタイマーはリクエストより長生きする。
//
// トリガーはintervalHoursの固定間隔。タイムゾーンは次回実行時刻の
// 表示（ログとAPI応答）をテナントのローカル時刻に合わせるために使い、
// 発火間隔そのものには影響しない。
func (s *Service) ScheduleTenant(settings *model.ScheduleSettings) {
	s.CancelTenant(settings.TenantID)

	if !settings.Enabled {
		s.logger.Info("スケジュールを無効化しました",
			slog.String("tenant_id", settings.TenantID))
		return
	}

	interval := time.Duration(settings.IntervalHours) * time.Hour

	// バリデーションは設定更新の境界で済んでいる。ここでの解決失敗はUTCへ退避
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		s.logger.Warn("タイムゾーンを解決できないためUTCを使用します",
			slog.String("tenant_id", settings.TenantID),
			slog.String("timezone", settings.Timezone))
		loc = time.UTC
	}

	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	timerCtx, cancel := context.WithCancel(base)
	timer := &tenantTimer{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.timers[settings.TenantID] = timer
	s.mu.Unlock()

	go s.runLoop(timerCtx, timer, settings.TenantID, interval, loc)

	s.logger.Info("スケジュールを登録しました",
		slog.String("tenant_id", settings.TenantID),
		slog.Int("interval_hours", settings.IntervalHours),
		slog.String("timezone", settings.Timezone),
		slog.String("next_run", s.now().In(loc).Add(interval).Format(time.RFC3339)))
}

// CancelTenant はテナントのタイマーを解除する。
// 実行中のパイプラインには割り込まず、次回以降の起動のみ止める。
// 実行はループから切り離されているため、実行中でも即座に返る。
func (s *Service) CancelTenant(tenantID string) {
	s.mu.Lock()
	timer, ok := s.timers[tenantID]
	if ok {
		delete(s.timers, tenantID)
	}
	s.mu.Unlock()

	if ok {
		timer.cancel()
		<-timer.done
	}
}

// Stop は全テナントのタイマーを解除する。
func (s *Service) Stop() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[string]*tenantTimer)
	s.started = false
	s.mu.Unlock()

	for _, timer := range timers {
		timer.cancel()
		<-timer.done
	}
	s.logger.Info("スケジューラを停止しました")
}

// runLoop はテナント1つ分の定期実行ループ。
// タイマーのキャンセルはループの終了のみを意味する。起動済みの実行は
// タイマーから切り離されたコンテキストで走り、解除や設定差し替えに
// 割り込まれずに完走する。
func (s *Service) runLoop(ctx context.Context, timer *tenantTimer, tenantID string, interval time.Duration, loc *time.Location) {
	defer close(timer.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx := context.WithoutCancel(ctx)
			go func() {
				if _, err := s.RunNow(runCtx, tenantID); err != nil {
					// 実行中のジョブとの競合は想定内。次のtickで再試行される
					s.logger.Warn("定期収集をスキップしました",
						slog.String("tenant_id", tenantID),
						slog.String("error", err.Error()))
				}
			}()
			s.logger.Info("次回の収集時刻",
				slog.String("tenant_id", tenantID),
				slog.String("next_run", s.now().In(loc).Add(interval).Format(time.RFC3339)))
		}
	}
}

// RunNow はテナントの収集パイプラインを即時実行する。
// 定期タイマーと手動実行の両方から呼ばれる共通の入口。
//
//   - キーワード未登録の場合はジョブ行を作らずNO_KEYWORDSを返す
//   - 同一テナントのジョブが実行中の場合はJOB_ALREADY_RUNNINGを返す
//   - 実行開始後の失敗はジョブをfailedに終端化して返す
func (s *Service) RunNow(ctx context.Context, tenantID string) (*model.CollectionJob, error) {
	// プロセス内ガード: DBへ到達する前に並行実行を弾く
	s.mu.Lock()
	if s.running[tenantID] {
		s.mu.Unlock()
		return nil, model.NewJobAlreadyRunningError(tenantID)
	}
	s.running[tenantID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, tenantID)
		s.mu.Unlock()
	}()

	keywords, err := s.keywordRepo.ListByTenantID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("キーワードの読み取りに失敗: %w", err)
	}
	if len(keywords) == 0 {
		// ジョブ行を作成する前に拒否する
		return nil, model.NewNoKeywordsError()
	}

	job := &model.CollectionJob{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Status:        model.JobStatusRunning,
		StartedAt:     s.now().UTC(),
		TotalKeywords: len(keywords),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrRunningJobExists) {
			return nil, model.NewJobAlreadyRunningError(tenantID)
		}
		return nil, fmt.Errorf("収集ジョブの作成に失敗: %w", err)
	}

	s.logger.Info("収集を開始します",
		slog.String("tenant_id", tenantID),
		slog.String("job_id", job.ID),
		slog.Int("total_keywords", job.TotalKeywords))

	if err := s.execute(ctx, job, keywords); err != nil {
		return job, err
	}
	return job, nil
}

// execute はパイプライン本体を実行する。panicを含む全ての失敗経路で
// ジョブをfailedへ終端化し、runningのまま取り残さない。
func (s *Service) execute(ctx context.Context, job *model.CollectionJob, keywords []*model.Keyword) (err error) {
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("収集パイプラインでpanicが発生: %v", r)
			s.finalizeFailed(job, err)
		}
		s.metrics.ObserveJobDuration(s.now().Sub(start))
	}()

	terms := make([]string, len(keywords))
	for i, kw := range keywords {
		terms[i] = kw.Value
	}

	results := s.collector.Collect(ctx, terms)

	if err := s.persister.Persist(ctx, job, results); err != nil {
		s.finalizeFailed(job, err)
		return fmt.Errorf("収集結果の永続化に失敗: %w", err)
	}

	s.metrics.RecordJobCompleted()
	return nil
}

// finalizeFailed はジョブをfailedへ終端化する。Finalize自体の失敗は
// ログに残すのみで、残留ジョブは起動時のReapStaleが回収する。
func (s *Service) finalizeFailed(job *model.CollectionJob, cause error) {
	s.metrics.RecordJobFailed()

	completedAt := s.now().UTC()
	job.Status = model.JobStatusFailed
	job.CompletedAt = &completedAt
	job.ErrorMessage = cause.Error()

	// 元のctxがキャンセル済みでも終端化できるよう独立したコンテキストを使う
	finalizeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.jobRepo.Finalize(finalizeCtx, job); err != nil {
		s.logger.Error("失敗ジョブの終端化に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}

// JobHistory はテナントのジョブ履歴を新しい順に返す。
func (s *Service) JobHistory(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	jobs, err := s.jobRepo.ListByTenantID(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("ジョブ履歴の読み取りに失敗: %w", err)
	}
	return jobs, nil
}

// GetJob は指定IDのジョブを返す。テナントの所有確認も行う。
func (s *Service) GetJob(ctx context.Context, tenantID, jobID string) (*model.CollectionJob, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの読み取りに失敗: %w", err)
	}
	if job == nil || job.TenantID != tenantID {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return job, nil
}
