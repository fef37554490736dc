// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/playnet/internal/auth"
	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/token"
	"github.com/hitoshi/playnet/internal/user"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	RequestReset(ctx context.Context, email string) (*auth.ResetRequest, error)
	CompleteReset(ctx context.Context, plainToken, newPassword string) error
	GoogleEnabled() bool
	GetLoginURL(state string) (string, error)
	HandleCallback(ctx context.Context, code string) (*model.User, error)
	IssueToken(userID int64) (string, token.Claims, error)
	TokenTTL() time.Duration
}

// ProfileServiceInterface はプロフィール編集に必要なサービスインターフェース。
type ProfileServiceInterface interface {
	UpdateProfile(ctx context.Context, principal *model.User, in user.ProfileUpdate) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string // OAuth完了後のリダイレクト先
	CookieDomain string
	// Production がtrueの場合、認証CookieはSameSite=None; Secureで発行する。
	Production bool
	// CookieSecure がtrueの場合、本番以外でもCookieにSecure属性を付ける。
	CookieSecure bool
}

// AuthHandler は認証・プロフィール関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	profiles ProfileServiceInterface
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		profiles: profiles,
		config:   config,
	}
}

// Register はメールアドレスとパスワードでユーザーを登録し、ログイン状態にする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := h.setAuthCookie(w, u.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": toUserResponse(u)})
}

// Login はメールアドレスとパスワードで認証する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := h.setAuthCookie(w, u.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": toUserResponse(u)})
}

// Logout は認証Cookieを削除する。トークンはステートレスなのでサーバー側の破棄はない。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.authCookie("", -1))
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Me は現在のプリンシパルとGoogleログインの有効状態を返す。匿名の場合userはnull。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":           toUserResponse(middleware.UserFromContext(r.Context())),
		"google_enabled": h.service.GoogleEnabled(),
	})
}

// UpdateMe はプロフィールを更新する。パスワード欄が入力された場合はパスワードも変更する。
// PATCH /auth/me
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.UserFromContext(r.Context())

	var req profileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.profiles.UpdateProfile(r.Context(), principal, user.ProfileUpdate{
		Name:  req.Name,
		Email: req.Email,
		Profile: model.Profile{
			AvatarURL:      req.AvatarURL,
			Interests:      req.Interests,
			Location:       req.Location,
			Bio:            req.Bio,
			Language:       req.Language,
			Timezone:       req.Timezone,
			PrivacyProfile: req.PrivacyProfile,
			PrivacyContact: req.PrivacyContact,
		},
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": toUserResponse(u)})
}

// Forgot はパスワードリセットを開始する。登録有無にかかわらず同じ形のレスポンスを返す。
// 本番環境以外ではリセットリンクとメール送信結果も返す。
// POST /auth/forgot
func (h *AuthHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.service.RequestReset(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	body := map[string]interface{}{"ok": true}
	if !h.config.Production && res != nil && res.Link != "" {
		body["reset_link"] = res.Link
		body["email_sent"] = res.EmailSent
	}
	writeJSON(w, http.StatusOK, body)
}

// Reset はリセットトークンを使って新しいパスワードを設定する。
// POST /auth/reset
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Password != req.ConfirmPassword {
		middleware.WriteAPIError(w, model.NewPasswordMismatchError())
		return
	}

	if err := h.service.CompleteReset(r.Context(), req.Token, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// GoogleLogin はGoogle OAuthフローを開始する。未設定の場合は501。
// GET /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.service.GoogleEnabled() {
		middleware.WriteAPIError(w, model.NewOAuthNotConfiguredError())
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	url, err := h.service.GetLoginURL(state)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// 失敗時はフロントエンドに ?auth=failed を付けてリダイレクトする。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.service.GoogleEnabled() {
		middleware.WriteAPIError(w, model.NewOAuthNotConfiguredError())
		return
	}

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.redirectAuthFailed(w, r)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectAuthFailed(w, r)
		return
	}

	u, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectAuthFailed(w, r)
		return
	}
	if err := h.setAuthCookie(w, u.ID); err != nil {
		slog.Error("failed to issue auth token", slog.String("error", err.Error()))
		h.redirectAuthFailed(w, r)
		return
	}

	http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) redirectAuthFailed(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, strings.TrimRight(h.config.FrontendURL, "/")+"/?auth=failed", http.StatusTemporaryRedirect)
}

// setAuthCookie はユーザーのトークンを発行し認証Cookieとして設定する。
func (h *AuthHandler) setAuthCookie(w http.ResponseWriter, userID int64) error {
	tok, _, err := h.service.IssueToken(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, h.authCookie(tok, int(h.service.TokenTTL().Seconds())))
	return nil
}

func (h *AuthHandler) authCookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	}
	if h.config.Production {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (h *AuthHandler) secureCookies() bool {
	return h.config.Production || h.config.CookieSecure
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
