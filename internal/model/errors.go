// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, auth, forbidden, not_found, conflict, unavailable, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ。ハンドラーはカテゴリからHTTPステータスを決定する。
const (
	CategoryValidation  = "validation"
	CategoryAuth        = "auth"
	CategoryForbidden   = "forbidden"
	CategoryNotFound    = "not_found"
	CategoryConflict    = "conflict"
	CategoryUnavailable = "unavailable"
	CategorySystem      = "system"
)

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeInvalidID           = "INVALID_ID"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodePasswordMismatch    = "PASSWORD_MISMATCH"
	ErrCodeAuthRequired        = "AUTH_REQUIRED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidCurrentPass  = "INVALID_CURRENT_PASSWORD"
	ErrCodePasswordUnavailable = "PASSWORD_CHANGE_UNAVAILABLE"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeCrossSiteRequest    = "CROSS_SITE_REQUEST"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeResetTokenInvalid   = "RESET_TOKEN_INVALID"
	ErrCodeResetTokenExpired   = "RESET_TOKEN_EXPIRED"
	ErrCodeResetTokenUsed      = "RESET_TOKEN_USED"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeCommunityNotFound   = "COMMUNITY_NOT_FOUND"
	ErrCodeCommunityFull       = "COMMUNITY_FULL"
	ErrCodeMemberNotFound      = "MEMBER_NOT_FOUND"
	ErrCodeMemberBanned        = "MEMBER_BANNED"
	ErrCodeInviteRequired      = "INVITE_REQUIRED"
	ErrCodeInviteNotFound      = "INVITE_NOT_FOUND"
	ErrCodeInviteMismatch      = "INVITE_MISMATCH"
	ErrCodeOwnerCannotLeave    = "OWNER_CANNOT_LEAVE"
	ErrCodeOwnerProtected      = "OWNER_PROTECTED"
	ErrCodeSelfAction          = "SELF_ACTION"
	ErrCodeMailNotConfigured   = "MAIL_NOT_CONFIGURED"
	ErrCodeOAuthNotConfigured  = "OAUTH_NOT_CONFIGURED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "Check the request fields and try again.",
	}
}

// NewInvalidIDError はパスパラメータのIDが整数でない場合のエラーを生成する。
func NewInvalidIDError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("invalid %s", name),
		Category: CategoryValidation,
		Action:   "Specify a positive integer id.",
	}
}

// NewWeakPasswordError はパスワード長不足のエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("password must be at least %d characters", minLength),
		Category: CategoryValidation,
		Action:   "Choose a longer password.",
	}
}

// NewPasswordMismatchError は新パスワードと確認用パスワードが一致しない場合のエラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "new passwords do not match",
		Category: CategoryValidation,
		Action:   "Enter the same new password twice.",
	}
}

// NewAuthRequiredError は未認証エラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "authentication required",
		Category: CategoryAuth,
		Action:   "Log in and try again.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無に関わらず同一の内容を返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "invalid credentials",
		Category: CategoryAuth,
		Action:   "Check your email and password.",
	}
}

// NewInvalidCurrentPasswordError は現在のパスワードが一致しない場合のエラーを生成する。
func NewInvalidCurrentPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCurrentPass,
		Message:  "current password is incorrect",
		Category: CategoryAuth,
		Action:   "Enter your current password.",
	}
}

// NewPasswordUnavailableError はパスワード未設定アカウントでのパスワード変更エラーを生成する。
func NewPasswordUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordUnavailable,
		Message:  "password change is not available for this account",
		Category: CategoryValidation,
		Action:   "Use the password reset flow to set a password.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(code, message string) *APIError {
	if code == "" {
		code = ErrCodeForbidden
	}
	return &APIError{
		Code:     code,
		Message:  message,
		Category: CategoryForbidden,
		Action:   "You do not have permission for this action.",
	}
}

// NewNotFoundError はエンティティ未検出エラーを生成する。
func NewNotFoundError(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		Category: CategoryNotFound,
		Action:   "Check the id and try again.",
	}
}

// NewConflictError は状態競合エラーを生成する。
func NewConflictError(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		Category: CategoryConflict,
		Action:   "Reload the current state and try again.",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return NewConflictError(ErrCodeEmailTaken, "email already registered")
}

// NewResetTokenInvalidError はリセットトークンが存在しない場合のエラーを生成する。
func NewResetTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeResetTokenInvalid,
		Message:  "invalid or expired token",
		Category: CategoryValidation,
		Action:   "Request a new password reset link.",
	}
}

// NewResetTokenExpiredError はリセットトークンの有効期限切れエラーを生成する。
func NewResetTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeResetTokenExpired,
		Message:  "token expired",
		Category: CategoryValidation,
		Action:   "Request a new password reset link.",
	}
}

// NewResetTokenUsedError は使用済みリセットトークンのエラーを生成する。
func NewResetTokenUsedError() *APIError {
	return NewConflictError(ErrCodeResetTokenUsed, "token already used")
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return NewNotFoundError(ErrCodeUserNotFound, "user not found")
}

// NewCommunityNotFoundError はコミュニティ未検出エラーを生成する。
func NewCommunityNotFoundError() *APIError {
	return NewNotFoundError(ErrCodeCommunityNotFound, "community not found")
}

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
func NewMemberNotFoundError() *APIError {
	return NewNotFoundError(ErrCodeMemberNotFound, "member not found")
}

// NewInviteNotFoundError は招待未検出エラーを生成する。
func NewInviteNotFoundError() *APIError {
	return NewNotFoundError(ErrCodeInviteNotFound, "invite not found")
}

// NewMemberBannedError はBAN済みユーザーの参加エラーを生成する。
func NewMemberBannedError() *APIError {
	return NewForbiddenError(ErrCodeMemberBanned, "you are banned from this community")
}

// NewCommunityFullError は定員超過エラーを生成する。
func NewCommunityFullError() *APIError {
	return NewConflictError(ErrCodeCommunityFull, "community is full")
}

// NewMailNotConfiguredError はメール送信設定がない場合のエラーを生成する。
func NewMailNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeMailNotConfigured,
		Message:  "email is not configured",
		Category: CategoryUnavailable,
		Action:   "Contact the administrator.",
	}
}

// NewOAuthNotConfiguredError は外部IdPログインが無効な場合のエラーを生成する。
func NewOAuthNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthNotConfigured,
		Message:  "google login is not configured",
		Category: CategoryUnavailable,
		Action:   "Log in with email and password.",
	}
}

// NewInternalError は内部エラーの汎用レスポンスを生成する。
// 詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "internal error",
		Category: CategorySystem,
		Action:   "Try again later.",
	}
}
