// Package collector はキーワード×アダプタのファンアウト収集を提供する。
// 個々の(キーワード, アダプタ)呼び出しの失敗を分離し、
// 部分成功を保ったまま正規化済みの結果セットを返す。
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/brandpulse/internal/model"
	"github.com/hitoshi/brandpulse/internal/source"
)

// SourceMetrics はコレクターが記録するメトリクスのインターフェース。
type SourceMetrics interface {
	RecordSourceSuccess(sourceName string)
	RecordSourceFailure(sourceName string)
}

// noopMetrics はメトリクス未設定時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordSourceSuccess(string) {}
func (noopMetrics) RecordSourceFailure(string) {}

// Collector は設定済みの全アダプタへキーワード単位でファンアウトする。
// semaphoreパターンで最大並列数を制御し、呼び出しごとにタイムアウトを適用する。
type Collector struct {
	adapters     []source.Adapter
	logger       *slog.Logger
	metrics      SourceMetrics
	fetchTimeout time.Duration
	maxParallel  int
}

// NewCollector はCollectorの新しいインスタンスを生成する。
// maxParallelが0以下の場合はデフォルト値8を使用する。
func NewCollector(
	adapters []source.Adapter,
	logger *slog.Logger,
	metrics SourceMetrics,
	fetchTimeout time.Duration,
	maxParallel int,
) *Collector {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Collector{
		adapters:     adapters,
		logger:       logger,
		metrics:      metrics,
		fetchTimeout: fetchTimeout,
		maxParallel:  maxParallel,
	}
}

// Collect は全キーワードを全アダプタで検索し、キーワードごとの結果を返す。
// 出力のキーワード順は入力順と一致する。キーワード内のアダプタ結果順は保証しない。
//
// 失敗の分離:
//   - 1つの(キーワード, アダプタ)呼び出しのエラーはログに記録し、空結果として扱う
//   - 1キーワードの全アダプタ失敗も他のキーワードの処理を妨げない
//   - キーワード内の部分成功（ニュース成功・ソーシャル失敗など）は成功分を返す
func (c *Collector) Collect(ctx context.Context, keywords []string) []model.KeywordResult {
	start := time.Now()

	results := make([]model.KeywordResult, len(keywords))
	for i, kw := range keywords {
		results[i] = model.KeywordResult{
			Keyword: kw,
			News:    []model.SourceItem{},
			Social:  []model.SourceItem{},
		}
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, c.maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range results {
		for _, adapter := range c.adapters {
			wg.Add(1)
			sem <- struct{}{} // semaphore取得（ブロック）

			go func(idx int, a source.Adapter) {
				defer wg.Done()
				defer func() { <-sem }() // semaphore解放

				keyword := results[idx].Keyword
				items := c.searchOne(ctx, a, keyword)
				if len(items) == 0 {
					return
				}

				mu.Lock()
				defer mu.Unlock()
				switch a.Kind() {
				case model.RecordKindNews:
					results[idx].News = append(results[idx].News, items...)
				case model.RecordKindSocial:
					results[idx].Social = append(results[idx].Social, items...)
				}
			}(i, adapter)
		}
	}

	wg.Wait()

	duration := time.Since(start)
	c.logger.Info("収集ファンアウトが完了しました",
		slog.Int("keyword_count", len(keywords)),
		slog.Int("adapter_count", len(c.adapters)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return results
}

// searchOne は1つの(キーワード, アダプタ)呼び出しをタイムアウト付きで実行する。
// エラーはここで吸収され、空結果が返る。個別呼び出しの失敗はジョブを失敗させない。
func (c *Collector) searchOne(ctx context.Context, a source.Adapter, keyword string) []model.SourceItem {
	callCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	items, err := a.Search(callCtx, keyword)
	if err != nil {
		c.metrics.RecordSourceFailure(a.Name())
		srcErr := model.NewExternalSourceError(a.Name(), keyword, err.Error())
		c.logger.Error("ソース検索に失敗しました（空結果として継続します）",
			slog.String("source", a.Name()),
			slog.String("kind", string(a.Kind())),
			slog.String("keyword", keyword),
			slog.String("error", srcErr.Error()),
		)
		return nil
	}

	c.metrics.RecordSourceSuccess(a.Name())
	return items
}
