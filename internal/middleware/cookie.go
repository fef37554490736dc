package middleware

import (
	"net/url"
	"strings"
)

// AuthCookieName は認証トークンを保持するCookie名。
const AuthCookieName = "auth_token"

// ParseCookieHeader はCookieヘッダー文字列を名前と値のマップに変換する。
// 値はURLデコードする。キーのない要素やデコードに失敗した要素は読み飛ばす。
// 同名のCookieが複数ある場合は最初の値を使う。
func ParseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		decoded, err := url.PathUnescape(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		if _, exists := cookies[key]; !exists {
			cookies[key] = decoded
		}
	}
	return cookies
}
