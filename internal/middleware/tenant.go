// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const tenantHeaderName = "X-Tenant-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// tenantIDContextKey はリクエストコンテキストにテナントIDを格納するためのキー。
var tenantIDContextKey = contextKey("tenant_id")

// TenantResolver はリクエストからテナント識別子を解決するインターフェース。
// 認証基盤は外部コラボレータのため、解決方法は差し替え可能にしておく。
type TenantResolver interface {
	// Resolve はリクエストからテナントIDを取り出す。
	// 解決できない場合は空文字列とエラーを返す。
	Resolve(r *http.Request) (string, error)
}

// HeaderTenantResolver はX-Tenant-IDヘッダーからテナントIDを解決する。
type HeaderTenantResolver struct{}

var _ TenantResolver = (*HeaderTenantResolver)(nil)

// Resolve はTenantResolverの実装。
func (*HeaderTenantResolver) Resolve(r *http.Request) (string, error) {
	tenantID := strings.TrimSpace(r.Header.Get(tenantHeaderName))
	if tenantID == "" {
		return "", fmt.Errorf("%sヘッダーがありません", tenantHeaderName)
	}
	return tenantID, nil
}

// NewTenantMiddleware はテナント識別子を解決してコンテキストに注入する
// ミドルウェアを返す。解決できないリクエストには401 Unauthorizedを返す。
func NewTenantMiddleware(resolver TenantResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := resolver.Resolve(r)
			if err != nil || tenantID == "" {
				WriteAuthenticationRequired(w)
				return
			}

			ctx := context.WithValue(r.Context(), tenantIDContextKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantIDFromContext はリクエストコンテキストからテナントIDを取得する。
// テナントミドルウェアを通過したリクエストでのみ有効。
func TenantIDFromContext(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(tenantIDContextKey).(string)
	if !ok || tenantID == "" {
		return "", fmt.Errorf("tenant ID not found in context")
	}
	return tenantID, nil
}

// ContextWithTenantID はコンテキストにテナントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDContextKey, tenantID)
}
