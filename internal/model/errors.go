// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, collection, comparison, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCodeInvalidInterval        = "INVALID_INTERVAL"
	ErrCodeInvalidTimezone        = "INVALID_TIMEZONE"
	ErrCodeJobAlreadyRunning      = "JOB_ALREADY_RUNNING"
	ErrCodeJobNotFound            = "JOB_NOT_FOUND"
	ErrCodeNoKeywords             = "NO_KEYWORDS"
	ErrCodeExternalSource         = "EXTERNAL_SOURCE_ERROR"
	ErrCodePersistence            = "PERSISTENCE_ERROR"
	ErrCodeInvalidComparison      = "INVALID_COMPARISON"
)

// NewAuthenticationRequiredError はテナント識別子が解決できない場合のエラーを生成する。
func NewAuthenticationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationRequired,
		Message:  "テナント認証が必要です。",
		Category: "auth",
		Action:   "認証情報を付与してリクエストしてください。",
	}
}

// NewInvalidIntervalError は収集間隔が範囲外の場合のエラーを生成する。
func NewInvalidIntervalError(hours int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInterval,
		Message:  fmt.Sprintf("無効な収集間隔です: %d時間", hours),
		Category: "validation",
		Action:   "収集間隔は1時間から168時間（7日）の範囲で指定してください。",
	}
}

// NewInvalidTimezoneError はタイムゾーンが解決できない場合のエラーを生成する。
func NewInvalidTimezoneError(tz string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimezone,
		Message:  fmt.Sprintf("無効なタイムゾーンです: %s", tz),
		Category: "validation",
		Action:   "IANA形式のタイムゾーン名（例: Asia/Tokyo, UTC）を指定してください。",
	}
}

// NewJobAlreadyRunningError は同一テナントの収集ジョブが実行中の場合のエラーを生成する。
func NewJobAlreadyRunningError(tenantID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobAlreadyRunning,
		Message:  fmt.Sprintf("収集ジョブが既に実行中です: tenant=%s", tenantID),
		Category: "collection",
		Action:   "実行中のジョブが完了してから再度お試しください。",
	}
}

// NewJobNotFoundError は収集ジョブが見つからない場合のエラーを生成する。
func NewJobNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定された収集ジョブが見つかりません: %s", jobID),
		Category: "collection",
		Action:   "ジョブIDを確認してください。",
	}
}

// NewNoKeywordsError はキーワードが未登録の場合のエラーを生成する。
// ジョブ行を作成する前に呼び出し元へ返される。
func NewNoKeywordsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoKeywords,
		Message:  "監視対象のキーワードが登録されていません。",
		Category: "collection",
		Action:   "ブランドまたは競合のキーワードを登録してから収集を実行してください。",
	}
}

// NewExternalSourceError は外部ソース呼び出し失敗のエラーを生成する。
// コレクターはこのエラーを記録して空結果として継続するため、ジョブを失敗させない。
func NewExternalSourceError(source, keyword, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeExternalSource,
		Message:  fmt.Sprintf("外部ソースの取得に失敗しました: source=%s keyword=%s: %s", source, keyword, reason),
		Category: "collection",
		Action:   "一時的な障害の可能性があります。次回の収集で自動的に再試行されます。",
	}
}

// NewPersistenceError はレコード永続化失敗のエラーを生成する。
// インジェスターはこのエラーを記録して該当レコードをスキップし、バッチを継続する。
func NewPersistenceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  fmt.Sprintf("レコードの保存に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidComparisonError は比較対象のキーワード指定が不正な場合のエラーを生成する。
func NewInvalidComparisonError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidComparison,
		Message:  fmt.Sprintf("比較リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "brandとcompetitorの両方のキーワードを指定してください。",
	}
}
