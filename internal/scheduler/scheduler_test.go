package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/brandpulse/internal/collector"
	"github.com/hitoshi/brandpulse/internal/ingest"
	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/repository"
	"github.com/hitoshi/brandpulse/internal/source"
)

// --- モック定義 ---

// mockScheduleRepo はScheduleSettingsRepositoryのテスト用モック。
type mockScheduleRepo struct {
	getOrCreateFunc func(ctx context.Context, tenantID string) (*model.ScheduleSettings, error)
	updateFunc      func(ctx context.Context, settings *model.ScheduleSettings) error
	listEnabledFunc func(ctx context.Context) ([]*model.ScheduleSettings, error)
}

func (m *mockScheduleRepo) GetOrCreate(ctx context.Context, tenantID string) (*model.ScheduleSettings, error) {
	if m.getOrCreateFunc != nil {
		return m.getOrCreateFunc(ctx, tenantID)
	}
	return model.DefaultScheduleSettings(tenantID), nil
}

func (m *mockScheduleRepo) Update(ctx context.Context, settings *model.ScheduleSettings) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, settings)
	}
	return nil
}

func (m *mockScheduleRepo) ListEnabled(ctx context.Context) ([]*model.ScheduleSettings, error) {
	if m.listEnabledFunc != nil {
		return m.listEnabledFunc(ctx)
	}
	return nil, nil
}

// mockKeywordRepo はKeywordRepositoryのテスト用モック。
type mockKeywordRepo struct {
	listFunc func(ctx context.Context, tenantID string) ([]*model.Keyword, error)
}

func (m *mockKeywordRepo) ListByTenantID(ctx context.Context, tenantID string) ([]*model.Keyword, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID)
	}
	return nil, nil
}

// mockJobRepo はCollectionJobRepositoryのテスト用モック。
type mockJobRepo struct {
	mu            sync.Mutex
	created       []*model.CollectionJob
	finalized     []*model.CollectionJob
	createFunc    func(ctx context.Context, job *model.CollectionJob) error
	finalizeFunc  func(ctx context.Context, job *model.CollectionJob) error
	findByIDFunc  func(ctx context.Context, id string) (*model.CollectionJob, error)
	listFunc      func(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error)
	reapStaleFunc func(ctx context.Context, olderThan time.Time) (int, error)
}

func (m *mockJobRepo) Create(ctx context.Context, job *model.CollectionJob) error {
	m.mu.Lock()
	m.created = append(m.created, job)
	m.mu.Unlock()
	if m.createFunc != nil {
		return m.createFunc(ctx, job)
	}
	return nil
}

func (m *mockJobRepo) Finalize(ctx context.Context, job *model.CollectionJob) error {
	m.mu.Lock()
	m.finalized = append(m.finalized, job)
	m.mu.Unlock()
	if m.finalizeFunc != nil {
		return m.finalizeFunc(ctx, job)
	}
	return nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, id string) (*model.CollectionJob, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockJobRepo) ListByTenantID(ctx context.Context, tenantID string, limit int) ([]*model.CollectionJob, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID, limit)
	}
	return nil, nil
}

func (m *mockJobRepo) ReapStale(ctx context.Context, olderThan time.Time) (int, error) {
	if m.reapStaleFunc != nil {
		return m.reapStaleFunc(ctx, olderThan)
	}
	return 0, nil
}

// mockHistoricalRepo はHistoricalRepositoryのテスト用モック。
type mockHistoricalRepo struct {
	mu         sync.Mutex
	inserted   []*model.HistoricalRecord
	insertFunc func(ctx context.Context, record *model.HistoricalRecord) error
}

func (m *mockHistoricalRepo) Insert(ctx context.Context, record *model.HistoricalRecord) error {
	m.mu.Lock()
	m.inserted = append(m.inserted, record)
	m.mu.Unlock()
	if m.insertFunc != nil {
		return m.insertFunc(ctx, record)
	}
	return nil
}

func (m *mockHistoricalRepo) ListRecentByTenant(ctx context.Context, tenantID string, kind model.RecordKind, limit int) ([]model.HistoricalRecord, error) {
	return nil, nil
}

// mockSnapshotRepo はSnapshotRepositoryのテスト用モック。
type mockSnapshotRepo struct {
	overwriteFunc func(ctx context.Context, snapshot *model.Snapshot) error
}

func (m *mockSnapshotRepo) Overwrite(ctx context.Context, snapshot *model.Snapshot) error {
	if m.overwriteFunc != nil {
		return m.overwriteFunc(ctx, snapshot)
	}
	return nil
}

func (m *mockSnapshotRepo) Get(ctx context.Context, tenantID string) (*model.Snapshot, error) {
	return nil, nil
}

// mockAdapter はsource.Adapterのテスト用モック。
type mockAdapter struct {
	name       string
	kind       model.RecordKind
	searchFunc func(ctx context.Context, keyword string) ([]model.SourceItem, error)
}

func (m *mockAdapter) Name() string           { return m.name }
func (m *mockAdapter) Kind() model.RecordKind { return m.kind }

func (m *mockAdapter) Search(ctx context.Context, keyword string) ([]model.SourceItem, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, keyword)
	}
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func teslaKeywords() []*model.Keyword {
	return []*model.Keyword{
		{ID: "kw-1", TenantID: "tenant-1", Value: "tesla", Kind: model.KeywordKindBrand},
	}
}

// newTestService はテスト用の依存関係一式でServiceを組み立てる。
func newTestService(
	scheduleRepo *mockScheduleRepo,
	keywordRepo *mockKeywordRepo,
	jobRepo *mockJobRepo,
	histRepo *mockHistoricalRepo,
	adapters []source.Adapter,
) *Service {
	logger := testLogger()
	col := collector.NewCollector(adapters, logger, nil, time.Second, 4)
	persister := ingest.NewPersister(jobRepo, histRepo, &mockSnapshotRepo{}, logger, nil, time.Second)
	return NewService(scheduleRepo, keywordRepo, jobRepo, col, persister, logger, nil, time.Hour)
}

// TestRunNow_EndToEnd は収集から永続化・終端化までの一連の流れを検証する。
// 1キーワード、ニュース5件（ポジティブ2・ニュートラル2・ネガティブ1）、ソーシャル0件。
func TestRunNow_EndToEnd(t *testing.T) {
	sentiments := []model.SentimentLabel{
		model.SentimentPositive, model.SentimentPositive,
		model.SentimentNeutral, model.SentimentNeutral,
		model.SentimentNegative,
	}
	news := &mockAdapter{
		name: "newsapi",
		kind: model.RecordKindNews,
		searchFunc: func(ctx context.Context, keyword string) ([]model.SourceItem, error) {
			items := make([]model.SourceItem, len(sentiments))
			for i, label := range sentiments {
				items[i] = model.SourceItem{
					ExternalID:     keyword + "-n" + string(rune('1'+i)),
					Title:          "article",
					SentimentLabel: label,
				}
			}
			return items, nil
		},
	}
	social := &mockAdapter{name: "twitter", kind: model.RecordKindSocial}

	keywordRepo := &mockKeywordRepo{
		listFunc: func(ctx context.Context, tenantID string) ([]*model.Keyword, error) {
			return teslaKeywords(), nil
		},
	}
	jobRepo := &mockJobRepo{}
	histRepo := &mockHistoricalRepo{}

	s := newTestService(&mockScheduleRepo{}, keywordRepo, jobRepo, histRepo,
		[]source.Adapter{news, social})

	job, err := s.RunNow(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	if len(jobRepo.finalized) != 1 {
		t.Fatalf("finalized = %d, want 1", len(jobRepo.finalized))
	}
	final := jobRepo.finalized[0]
	if final.Status != model.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", final.Status)
	}
	if job.TotalKeywords != 1 || final.ProcessedKeywords != 1 {
		t.Errorf("keywords = %d/%d, want 1/1", job.TotalKeywords, final.ProcessedKeywords)
	}
	if final.TotalArticles != 5 {
		t.Errorf("TotalArticles = %d, want 5", final.TotalArticles)
	}
	if final.TotalSocialPosts != 0 {
		t.Errorf("TotalSocialPosts = %d, want 0", final.TotalSocialPosts)
	}
	if len(histRepo.inserted) != 5 {
		t.Errorf("inserted = %d, want 5", len(histRepo.inserted))
	}
}

// TestRunNow_NoKeywords はキーワード未登録時にジョブ行を作らず
// NO_KEYWORDSが返ることを検証する。
func TestRunNow_NoKeywords(t *testing.T) {
	jobRepo := &mockJobRepo{}
	s := newTestService(&mockScheduleRepo{}, &mockKeywordRepo{}, jobRepo,
		&mockHistoricalRepo{}, nil)

	_, err := s.RunNow(context.Background(), "tenant-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoKeywords {
		t.Errorf("expected NO_KEYWORDS error, got %v", err)
	}
	if len(jobRepo.created) != 0 {
		t.Errorf("job row should not be created, got %d", len(jobRepo.created))
	}
}

// TestRunNow_RejectsWhenJobExistsInDB はDBの一意制約違反が
// JOB_ALREADY_RUNNINGへ変換されることを検証する。
func TestRunNow_RejectsWhenJobExistsInDB(t *testing.T) {
	keywordRepo := &mockKeywordRepo{
		listFunc: func(ctx context.Context, tenantID string) ([]*model.Keyword, error) {
			return teslaKeywords(), nil
		},
	}
	jobRepo := &mockJobRepo{
		createFunc: func(ctx context.Context, job *model.CollectionJob) error {
			return repository.ErrRunningJobExists
		},
	}

	s := newTestService(&mockScheduleRepo{}, keywordRepo, jobRepo, &mockHistoricalRepo{}, nil)

	_, err := s.RunNow(context.Background(), "tenant-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeJobAlreadyRunning {
		t.Errorf("expected JOB_ALREADY_RUNNING error, got %v", err)
	}
}

// TestRunNow_RejectsConcurrentRun は同一テナントの並行実行が
// プロセス内ガードで拒否されることを検証する。
func TestRunNow_RejectsConcurrentRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startedOnce sync.Once

	slow := &mockAdapter{
		name: "newsapi",
		kind: model.RecordKindNews,
		searchFunc: func(ctx context.Context, keyword string) ([]model.SourceItem, error) {
			startedOnce.Do(func() { close(started) })
			<-release
			return nil, nil
		},
	}
	keywordRepo := &mockKeywordRepo{
		listFunc: func(ctx context.Context, tenantID string) ([]*model.Keyword, error) {
			return teslaKeywords(), nil
		},
	}

	s := newTestService(&mockScheduleRepo{}, keywordRepo, &mockJobRepo{},
		&mockHistoricalRepo{}, []source.Adapter{slow})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "tenant-1")
		done <- err
	}()

	<-started

	// 1本目が実行中のうちに2本目を投げる
	_, err := s.RunNow(context.Background(), "tenant-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeJobAlreadyRunning {
		t.Errorf("expected JOB_ALREADY_RUNNING error, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first run should succeed, got %v", err)
	}

	// 1本目の完了後は再実行できる
	if _, err := s.RunNow(context.Background(), "tenant-1"); err != nil {
		t.Errorf("run after completion should succeed, got %v", err)
	}
}

// TestRunNow_PersistFailureFinalizesFailed は永続化失敗時にジョブが
// failedへ終端化されることを検証する。
func TestRunNow_PersistFailureFinalizesFailed(t *testing.T) {
	news := &mockAdapter{
		name: "newsapi",
		kind: model.RecordKindNews,
		searchFunc: func(ctx context.Context, keyword string) ([]model.SourceItem, error) {
			return []model.SourceItem{{ExternalID: "n1"}}, nil
		},
	}
	keywordRepo := &mockKeywordRepo{
		listFunc: func(ctx context.Context, tenantID string) ([]*model.Keyword, error) {
			return teslaKeywords(), nil
		},
	}

	finalizeCalls := 0
	jobRepo := &mockJobRepo{
		finalizeFunc: func(ctx context.Context, job *model.CollectionJob) error {
			finalizeCalls++
			// Persister内の最初のFinalize（completed）だけ失敗させる
			if finalizeCalls == 1 {
				return errors.New("db down")
			}
			return nil
		},
	}

	s := newTestService(&mockScheduleRepo{}, keywordRepo, jobRepo,
		&mockHistoricalRepo{}, []source.Adapter{news})

	job, err := s.RunNow(context.Background(), "tenant-1")
	if err == nil {
		t.Fatal("expected error from failed persist")
	}
	if job == nil || job.Status != model.JobStatusFailed {
		t.Errorf("job should be finalized as failed, got %+v", job)
	}
	if job.ErrorMessage == "" {
		t.Error("ErrorMessage should be recorded")
	}
}

// TestStart_ReapsStaleJobs は起動時に残留ジョブが回収され、
// 2回目のStartがno-opであることを検証する。
func TestStart_ReapsStaleJobs(t *testing.T) {
	reapCalls := 0
	jobRepo := &mockJobRepo{
		reapStaleFunc: func(ctx context.Context, olderThan time.Time) (int, error) {
			reapCalls++
			return 2, nil
		},
	}

	s := newTestService(&mockScheduleRepo{}, &mockKeywordRepo{}, jobRepo,
		&mockHistoricalRepo{}, nil)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	if reapCalls != 1 {
		t.Errorf("reapCalls = %d, want 1 (second Start must be no-op)", reapCalls)
	}
}

// TestStart_SchedulesEnabledTenants は有効な全テナントのタイマーが
// 登録されることを検証する。
func TestStart_SchedulesEnabledTenants(t *testing.T) {
	scheduleRepo := &mockScheduleRepo{
		listEnabledFunc: func(ctx context.Context) ([]*model.ScheduleSettings, error) {
			return []*model.ScheduleSettings{
				model.DefaultScheduleSettings("tenant-1"),
				model.DefaultScheduleSettings("tenant-2"),
			}, nil
		},
	}

	s := newTestService(scheduleRepo, &mockKeywordRepo{}, &mockJobRepo{},
		&mockHistoricalRepo{}, nil)
	defer s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.mu.Lock()
	count := len(s.timers)
	s.mu.Unlock()
	if count != 2 {
		t.Errorf("timers = %d, want 2", count)
	}
}

// TestScheduleTenant_DisabledCancelsTimer は無効化された設定で
// タイマーが解除されることを検証する。
func TestScheduleTenant_DisabledCancelsTimer(t *testing.T) {
	s := newTestService(&mockScheduleRepo{}, &mockKeywordRepo{}, &mockJobRepo{},
		&mockHistoricalRepo{}, nil)
	defer s.Stop()

	enabled := model.DefaultScheduleSettings("tenant-1")
	s.ScheduleTenant(enabled)

	disabled := model.DefaultScheduleSettings("tenant-1")
	disabled.Enabled = false
	s.ScheduleTenant(disabled)

	s.mu.Lock()
	_, exists := s.timers["tenant-1"]
	s.mu.Unlock()
	if exists {
		t.Error("timer should be removed for disabled tenant")
	}
}

// TestCancelTenant_DoesNotAbortInFlightRun はタイマー解除が実行中の
// パイプラインへ割り込まないことを検証する。解除は即座に返り、
// 実行は収集結果込みでcompletedに終端化される。
func TestCancelTenant_DoesNotAbortInFlightRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startedOnce sync.Once

	slow := &mockAdapter{
		name: "newsapi",
		kind: model.RecordKindNews,
		searchFunc: func(ctx context.Context, keyword string) ([]model.SourceItem, error) {
			startedOnce.Do(func() { close(started) })
			<-release
			// 解除でコンテキストが殺されていれば、ここでエラーになり
			// ジョブは0件のままcompletedになってしまう
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return []model.SourceItem{{ExternalID: "n1"}}, nil
		},
	}
	keywordRepo := &mockKeywordRepo{
		listFunc: func(ctx context.Context, tenantID string) ([]*model.Keyword, error) {
			return teslaKeywords(), nil
		},
	}
	jobRepo := &mockJobRepo{}

	s := newTestService(&mockScheduleRepo{}, keywordRepo, jobRepo,
		&mockHistoricalRepo{}, []source.Adapter{slow})

	timerCtx, cancel := context.WithCancel(context.Background())
	timer := &tenantTimer{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.timers["tenant-1"] = timer
	s.mu.Unlock()
	go s.runLoop(timerCtx, timer, "tenant-1", 10*time.Millisecond, time.UTC)

	<-started

	// 実行中に解除する。ループは降りるが実行は継続する
	cancelDone := make(chan struct{})
	go func() {
		s.CancelTenant("tenant-1")
		close(cancelDone)
	}()

	select {
	case <-cancelDone:
	case <-time.After(time.Second):
		t.Fatal("CancelTenant should return without waiting for the in-flight run")
	}

	close(release)

	deadline := time.After(time.Second)
	for {
		jobRepo.mu.Lock()
		n := len(jobRepo.finalized)
		jobRepo.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("in-flight run was not finalized")
		case <-time.After(5 * time.Millisecond):
		}
	}

	jobRepo.mu.Lock()
	final := jobRepo.finalized[0]
	jobRepo.mu.Unlock()
	if final.Status != model.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", final.Status)
	}
	if final.TotalArticles != 1 {
		t.Errorf("TotalArticles = %d, want 1 (run must not be aborted by cancel)", final.TotalArticles)
	}
	if final.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", final.ErrorMessage)
	}
}

// TestGetJob_WrongTenant は他テナントのジョブ参照がJOB_NOT_FOUNDになることを検証する。
func TestGetJob_WrongTenant(t *testing.T) {
	jobRepo := &mockJobRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.CollectionJob, error) {
			return &model.CollectionJob{ID: id, TenantID: "tenant-other"}, nil
		},
	}

	s := newTestService(&mockScheduleRepo{}, &mockKeywordRepo{}, jobRepo,
		&mockHistoricalRepo{}, nil)

	_, err := s.GetJob(context.Background(), "tenant-1", "job-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeJobNotFound {
		t.Errorf("expected JOB_NOT_FOUND error, got %v", err)
	}
}
