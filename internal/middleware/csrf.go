package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/playnet/internal/model"
)

// NewCSRFMiddleware はクロスサイトからの状態変更リクエストを拒否するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証しない。
// 状態変更メソッド（POST, PUT, PATCH, DELETE）は Origin、なければ Referer のオリジンが
// CORS許可リストに含まれることを要求する。
// どちらのヘッダーも持たないリクエストはブラウザ以外のクライアントとみなして通す。
func NewCSRFMiddleware(origins CORSConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin, ok := requestOrigin(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if origin == "" || !origins.allows(origin) {
				slog.Warn("CSRF validation failed: origin not allowed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteAPIError(w, model.NewForbiddenError(model.ErrCodeCrossSiteRequest, "cross-site request rejected"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// requestOrigin はリクエストの送信元オリジンを返す。
// Origin も Referer もない場合は ok=false。解釈できない Referer は空文字を返す。
func requestOrigin(r *http.Request) (origin string, ok bool) {
	if o := r.Header.Get("Origin"); o != "" {
		return o, true
	}
	ref := r.Header.Get("Referer")
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", true
	}
	return u.Scheme + "://" + u.Host, true
}
