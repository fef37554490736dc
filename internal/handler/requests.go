package handler

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/hitoshi/playnet/internal/model"
)

// validatable はリクエスト境界で検証されるボディ。
type validatable interface {
	Validate() error
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate は登録リクエストを検証する。パスワード強度はサービス層で判定する。
func (r *registerRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate はログインリクエストを検証する。
func (r *loginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type forgotRequest struct {
	Email string `json:"email"`
}

// Validate はリセット要求を検証する。
func (r *forgotRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate はリセット完了リクエストを検証する。確認欄の一致はハンドラーで判定する。
func (r *resetRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

type profileRequest struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	AvatarURL       string   `json:"avatar_url"`
	Interests       []string `json:"interests"`
	Location        string   `json:"location"`
	Bio             string   `json:"bio"`
	Language        string   `json:"language"`
	Timezone        string   `json:"timezone"`
	PrivacyProfile  string   `json:"privacy_profile"`
	PrivacyContact  string   `json:"privacy_contact"`
	CurrentPassword string   `json:"current_password"`
	NewPassword     string   `json:"new_password"`
	ConfirmPassword string   `json:"confirm_password"`
}

// Validate はプロフィール編集リクエストを検証する。
func (r *profileRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.AvatarURL, is.URL),
		validation.Field(&r.PrivacyProfile, validation.In("public", "private")),
		validation.Field(&r.PrivacyContact, validation.In("everyone", "members", "no_one")),
	)
}

type communityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Sport       string `json:"sport"`
	Region      string `json:"region"`
	ImageURL    string `json:"image_url"`
	Visibility  string `json:"visibility"`
	MaxMembers  *int   `json:"max_members"`
}

// Validate はコミュニティ作成リクエストを検証する。max_membersの0以下は定員なしとして扱う。
func (r *communityRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.ImageURL, is.URL),
		validation.Field(&r.Visibility, visibilityRule()),
	)
}

type communityPatchRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Sport       *string `json:"sport"`
	Region      *string `json:"region"`
	ImageURL    *string `json:"image_url"`
	Visibility  *string `json:"visibility"`
	MaxMembers  *int    `json:"max_members"`
}

// Validate はコミュニティ更新リクエストを検証する。max_membersの0以下は定員解除として扱う。
func (r *communityPatchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.NilOrNotEmpty),
		validation.Field(&r.ImageURL, is.URL),
		validation.Field(&r.Visibility, validation.NilOrNotEmpty, visibilityRule()),
	)
}

type messageRequest struct {
	Message string `json:"message"`
}

// Validate はチャット投稿リクエストを検証する。
func (r *messageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Message, validation.Required),
	)
}

type inviteRequest struct {
	Email string `json:"email"`
}

// Validate は招待リクエストを検証する。
func (r *inviteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type memberRoleRequest struct {
	Role string `json:"role"`
}

// Validate はコミュニティ内ロール変更リクエストを検証する。
func (r *memberRoleRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Role, validation.Required,
			validation.In(string(model.MemberRoleAdmin), string(model.MemberRoleMember))),
	)
}

type globalRoleRequest struct {
	Role string `json:"role"`
}

// Validate はグローバルロール変更リクエストを検証する。
func (r *globalRoleRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Role, validation.Required,
			validation.In(string(model.GlobalRoleUser), string(model.GlobalRoleAdmin), string(model.GlobalRoleSuperadmin))),
	)
}

func visibilityRule() validation.Rule {
	return validation.In(
		string(model.VisibilityPublic),
		string(model.VisibilityPrivate),
		string(model.VisibilityInvite),
	)
}
