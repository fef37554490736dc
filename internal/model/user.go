// Package model はドメインモデルを定義する。
package model

import "time"

// GlobalRole はコミュニティ権限とは独立したサービス全体のロール。
type GlobalRole string

const (
	GlobalRoleUser       GlobalRole = "user"
	GlobalRoleAdmin      GlobalRole = "admin"
	GlobalRoleSuperadmin GlobalRole = "superadmin"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r GlobalRole) Valid() bool {
	switch r {
	case GlobalRoleUser, GlobalRoleAdmin, GlobalRoleSuperadmin:
		return true
	}
	return false
}

// User はサービス利用ユーザー（Principal）を表す。
// PasswordHashが空のユーザーはOAuthのみでログインするアカウント。
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         GlobalRole
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はパスワード認証が可能なアカウントかどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Profile はプロフィール項目。認可処理はこの内容を参照しない。
type Profile struct {
	AvatarURL      string
	Interests      []string
	Location       string
	Bio            string
	Language       string
	Timezone       string
	PrivacyProfile string // public | private
	PrivacyContact string // everyone | members | no_one
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             int64
	UserID         int64
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// PasswordReset はパスワードリセット要求を表す。
// 平文トークンは保存せず、SHA-256ハッシュのみを保持する。
type PasswordReset struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Used はリセット要求が使用済みかどうかを返す。
func (p *PasswordReset) Used() bool {
	return p.UsedAt != nil
}

// Expired は指定時刻においてリセット要求が期限切れかどうかを返す。
func (p *PasswordReset) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
