// Package token はサーバー側に状態を持たない署名付き認証トークンを扱う。
//
// トークンは "<payload>.<signature>" 形式で、payload は {"uid","exp"} の JSON を
// base64url（パディングなし）でエンコードしたもの、signature は payload 文字列に対する
// HMAC-SHA256 を同じく base64url でエンコードしたもの。'.' は base64url の文字集合に
// 含まれないため区切り文字として曖昧さがない。
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultTTL はトークンの既定の有効期間（30日）。
const DefaultTTL = 30 * 24 * time.Hour

const delimiter = "."

// ErrInvalidToken は検証に失敗したトークンを表す。
// 失敗理由は呼び出し側に区別させない。
var ErrInvalidToken = errors.New("invalid auth token")

// ErrEmptySecret は署名鍵が空の場合に返される。
var ErrEmptySecret = errors.New("auth token secret is empty")

var encoding = base64.RawURLEncoding

// Claims はトークンに含まれる主張。Expはミリ秒単位のUNIX時刻。
type Claims struct {
	UserID int64 `json:"uid"`
	Exp    int64 `json:"exp"`
}

// ExpiresAt はExpをtime.Timeとして返す。
func (c Claims) ExpiresAt() time.Time {
	return time.UnixMilli(c.Exp)
}

// Codec はトークンの発行と検証を行う。
// 生成後は不変で、複数のgoroutineから同時に利用できる。
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option はCodecの生成オプション。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec はCodecを生成する。
// ttlが0以下の場合はDefaultTTLを使用する。
func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL はトークンの有効期間を返す。Cookieの有効期限設定に使う。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue はユーザーIDに対するトークンを発行する。
func (c *Codec) Issue(userID int64) (string, Claims, error) {
	if userID <= 0 {
		return "", Claims{}, errors.New("user id must be positive")
	}

	claims := Claims{
		UserID: userID,
		Exp:    c.now().Add(c.ttl).UnixMilli(),
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, err
	}

	payload := encoding.EncodeToString(raw)
	return payload + delimiter + c.sign(payload), claims, nil
}

// Verify はトークンを検証し、含まれるClaimsを返す。
// 署名不一致・形式不正・期限切れはすべてErrInvalidTokenになる。
func (c *Codec) Verify(tok string) (Claims, error) {
	payload, sig, ok := strings.Cut(tok, delimiter)
	if !ok || payload == "" || sig == "" {
		return Claims{}, ErrInvalidToken
	}

	expected := c.sign(payload)
	if len(sig) != len(expected) {
		return Claims{}, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return Claims{}, ErrInvalidToken
	}

	raw, err := encoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID <= 0 || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if claims.Exp < c.now().UnixMilli() {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}

func (c *Codec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return encoding.EncodeToString(mac.Sum(nil))
}
