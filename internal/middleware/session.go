// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストにプリンシパルを格納するためのキー。
var userContextKey = contextKey("user")

// TokenVerifier は認証トークンの検証インターフェース。token.Codecが実装する。
type TokenVerifier interface {
	Verify(tok string) (token.Claims, error)
}

// UserFinder はプリンシパルの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// NewSessionMiddleware はCookieの認証トークンからプリンシパルを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
//
// トークンがない・不正・期限切れ、またはユーザーが存在しない場合は匿名として扱い、
// エラーレスポンスは返さない。トークンの再発行は行わない。
func NewSessionMiddleware(verifier TokenVerifier, users UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := resolvePrincipal(r, verifier, users); user != nil {
				r = r.WithContext(ContextWithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolvePrincipal(r *http.Request, verifier TokenVerifier, users UserFinder) *model.User {
	raw, ok := ParseCookieHeader(r.Header.Get("Cookie"))[AuthCookieName]
	if !ok || raw == "" {
		return nil
	}

	claims, err := verifier.Verify(raw)
	if err != nil {
		return nil
	}

	user, err := users.FindByID(r.Context(), claims.UserID)
	if err != nil {
		slog.Warn("failed to resolve principal",
			slog.Int64("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return user
}

// RequireAuth は未認証リクエストに401を返すミドルウェア。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole はグローバルロールが指定のいずれかでない場合に403を返すミドルウェアを生成する。
// 未認証の場合は401を返す。
func RequireRole(roles ...model.GlobalRole) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
				return
			}
			if !slices.Contains(roles, user.Role) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("", "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext はリクエストコンテキストからプリンシパルを取得する。
// 匿名リクエストではnilを返す。
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// ContextWithUser はコンテキストにプリンシパルを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
