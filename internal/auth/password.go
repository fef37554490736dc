package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength はパスワードの最小文字数。上限は設けない。
const MinPasswordLength = 8

// ErrPasswordMismatch はパスワードがハッシュと一致しない場合に返される。
var ErrPasswordMismatch = errors.New("password does not match")

// PasswordHasher はペッパー付きbcryptでパスワードをハッシュ・検証する。
type PasswordHasher struct {
	pepper    string
	cost      int
	dummyHash []byte
}

// NewPasswordHasher はPasswordHasherを生成する。
// costがbcryptの有効範囲外の場合はbcrypt.DefaultCostを使う。
// 未登録メールアドレスでのログイン時に比較対象とするダミーハッシュを同じコストで生成する。
func NewPasswordHasher(pepper string, cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	h := &PasswordHasher{pepper: pepper, cost: cost}

	dummy, err := bcrypt.GenerateFromPassword(h.peppered(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dummy hash: %w", err)
	}
	h.dummyHash = dummy
	return h, nil
}

// Hash はパスワードのハッシュを生成する。
func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(h.peppered(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare はパスワードがハッシュと一致するか検証する。
// 一致しない場合はErrPasswordMismatchを返す。
func (h *PasswordHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), h.peppered(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// CompareDummy はダミーハッシュと比較し、結果を捨てる。
// 存在しないアカウントでも既存アカウントと同じ計算量をかけるために使う。
func (h *PasswordHasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, h.peppered(password))
}

// peppered はペッパーを鍵とするHMAC-SHA256の16進表現を返す。
// 64バイト固定のためbcryptの72バイト制限に収まり、長いパスワードでもペッパーと全文が効く。
func (h *PasswordHasher) peppered(password string) []byte {
	mac := hmac.New(sha256.New, []byte(h.pepper))
	mac.Write([]byte(password))
	sum := mac.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

// validPasswordLength はパスワードが最小文字数を満たすかどうかを返す。
func validPasswordLength(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}
