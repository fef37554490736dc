// Package auth はパスワード認証、パスワードリセット、OAuthログインと認証トークンの発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/playnet/internal/mail"
	"github.com/hitoshi/playnet/internal/metrics"
	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/repository"
	"github.com/hitoshi/playnet/internal/token"
)

// ProviderGoogle はGoogleのプロバイダー識別子。
const ProviderGoogle = "google"

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	FrontendURL   string        // リセットリンクの生成に使う
	ResetTokenTTL time.Duration // リセット要求の有効期間
	Production    bool
}

// Dependencies は認証サービスの依存関係。
// OAuthがnilの場合、OAuthログインは未設定として扱う。
type Dependencies struct {
	OAuth     OAuthProvider
	Users     repository.UserRepository
	Identity  repository.IdentityRepository
	Resets    repository.PasswordResetRepository
	Hasher    *PasswordHasher
	Tokens    *token.Codec
	Mailer    mail.Mailer
	Collector metrics.MetricsCollector
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	userRepo  repository.UserRepository
	identRepo repository.IdentityRepository
	resetRepo repository.PasswordResetRepository
	hasher    *PasswordHasher
	tokens    *token.Codec
	mailer    mail.Mailer
	metrics   metrics.MetricsCollector
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps Dependencies, config ServiceConfig) *Service {
	if deps.Mailer == nil {
		deps.Mailer = mail.NoopMailer{}
	}
	if deps.Collector == nil {
		deps.Collector = metrics.Nop{}
	}
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = time.Hour
	}
	return &Service{
		oauth:     deps.OAuth,
		userRepo:  deps.Users,
		identRepo: deps.Identity,
		resetRepo: deps.Resets,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		mailer:    deps.Mailer,
		metrics:   deps.Collector,
		config:    config,
		now:       time.Now,
	}
}

// normalizeEmail はメールアドレスを前後空白除去・小文字化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はメールアドレスとパスワードでユーザーを登録する。
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, model.NewValidationError("name, email and password are required")
	}
	if !validPasswordLength(password) {
		return nil, model.NewWeakPasswordError(MinPasswordLength)
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		s.metrics.RecordAuthAttempt("register", "conflict")
		return nil, model.NewEmailTakenError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.GlobalRoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録で一意インデックスに先を越された場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.metrics.RecordAuthAttempt("register", "conflict")
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordAuthAttempt("register", "success")
	slog.Info("user registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードで認証する。
// 未登録・パスワード未設定・不一致はすべて同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("email and password are required")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil || !user.HasPassword() {
		s.hasher.CompareDummy(password)
		s.metrics.RecordAuthAttempt("login", "failure")
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Warn("stored password hash is malformed",
				slog.Int64("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		s.metrics.RecordAuthAttempt("login", "failure")
		return nil, model.NewInvalidCredentialsError()
	}

	s.metrics.RecordAuthAttempt("login", "success")
	return user, nil
}

// ChangePassword は現在のパスワードを確認して新しいパスワードに変更する。
func (s *Service) ChangePassword(ctx context.Context, principal *model.User, current, next string) error {
	if err := s.CheckPasswordChange(principal, current, next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, principal.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	principal.PasswordHash = hash

	slog.Info("password changed", slog.Int64("user_id", principal.ID))
	return nil
}

// CheckPasswordChange はパスワード変更が受け付けられるかを書き込みなしで検証する。
func (s *Service) CheckPasswordChange(principal *model.User, current, next string) error {
	if !validPasswordLength(next) {
		return model.NewWeakPasswordError(MinPasswordLength)
	}
	if !principal.HasPassword() {
		return model.NewPasswordUnavailableError()
	}
	if err := s.hasher.Compare(principal.PasswordHash, current); err != nil {
		return model.NewInvalidCurrentPasswordError()
	}
	return nil
}

// ResetRequest はリセット要求の結果。
// Linkは登録済みメールアドレスの場合のみ設定される。呼び出し元は本番環境で公開してはならない。
type ResetRequest struct {
	Link      string
	EmailSent bool
}

// RequestReset はパスワードリセットを要求する。
// メールアドレスの登録有無に関わらず成功を返す。
func (s *Service) RequestReset(ctx context.Context, email string) (*ResetRequest, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, model.NewValidationError("email is required")
	}
	if s.config.Production && !s.mailer.Configured() {
		return nil, model.NewMailNotConfiguredError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return &ResetRequest{}, nil
	}

	plain, err := generateResetToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reset token: %w", err)
	}

	reset := &model.PasswordReset{
		UserID:    user.ID,
		TokenHash: hashResetToken(plain),
		ExpiresAt: s.now().Add(s.config.ResetTokenTTL),
	}
	if err := s.resetRepo.Create(ctx, reset); err != nil {
		return nil, fmt.Errorf("failed to save password reset: %w", err)
	}

	result := &ResetRequest{Link: s.resetLink(plain)}
	if s.mailer.Configured() {
		// 送信失敗はリセット要求の有効性に影響しない
		if err := s.mailer.SendPasswordReset(ctx, user.Email, result.Link); err != nil {
			slog.Error("failed to send password reset email",
				slog.Int64("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		} else {
			result.EmailSent = true
		}
	}

	s.metrics.RecordAuthAttempt("reset_request", "issued")
	slog.Info("password reset requested", slog.Int64("user_id", user.ID))
	return result, nil
}

// CompleteReset はリセットトークンを検証してパスワードを更新する。
func (s *Service) CompleteReset(ctx context.Context, plainToken, newPassword string) error {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return model.NewResetTokenInvalidError()
	}
	if !validPasswordLength(newPassword) {
		return model.NewWeakPasswordError(MinPasswordLength)
	}

	reset, err := s.resetRepo.FindByTokenHash(ctx, hashResetToken(plainToken))
	if err != nil {
		return fmt.Errorf("failed to find password reset: %w", err)
	}
	if reset == nil {
		s.metrics.RecordAuthAttempt("reset_complete", "invalid")
		return model.NewResetTokenInvalidError()
	}
	if reset.Used() {
		s.metrics.RecordAuthAttempt("reset_complete", "used")
		return model.NewResetTokenUsedError()
	}
	if reset.Expired(s.now()) {
		s.metrics.RecordAuthAttempt("reset_complete", "expired")
		return model.NewResetTokenExpiredError()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.resetRepo.Consume(ctx, reset, hash); err != nil {
		if errors.Is(err, repository.ErrResetConsumed) {
			// 確認後に別のリクエストが先に使用した、または期限を迎えた
			if reset.Expired(s.now()) {
				return model.NewResetTokenExpiredError()
			}
			s.metrics.RecordAuthAttempt("reset_complete", "used")
			return model.NewResetTokenUsedError()
		}
		return fmt.Errorf("failed to consume password reset: %w", err)
	}

	s.metrics.RecordAuthAttempt("reset_complete", "success")
	slog.Info("password reset completed", slog.Int64("user_id", reset.UserID))
	return nil
}

func (s *Service) resetLink(plainToken string) string {
	return s.config.FrontendURL + "/reset?token=" + url.QueryEscape(plainToken)
}

// generateResetToken は256ビットの乱数を16進文字列で返す。
func generateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashResetToken は保存用のSHA-256ハッシュを16進文字列で返す。
func hashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// GoogleEnabled はOAuthログインが設定済みかどうかを返す。
func (s *Service) GoogleEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。未設定の場合はエラーを返す。
func (s *Service) GetLoginURL(state string) (string, error) {
	if s.oauth == nil {
		return "", model.NewOAuthNotConfiguredError()
	}
	return s.oauth.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックの認可コードを交換し、対応するユーザーを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.User, error) {
	if s.oauth == nil {
		return nil, model.NewOAuthNotConfiguredError()
	}

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordAuthAttempt("oauth", "failure")
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	return s.LoginWithOAuth(ctx, info)
}

// LoginWithOAuth はIdPのユーザー情報をユーザーに対応付ける。
//   - identityが登録済み: そのユーザー（名前・アバターを更新）
//   - 同じメールアドレスのユーザーが存在: identityを紐付け
//   - いずれもなし: ユーザーとidentityを同時に作成
func (s *Service) LoginWithOAuth(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	if info == nil || info.Provider == "" || info.ProviderUserID == "" {
		return nil, model.NewValidationError("provider identity is required")
	}
	email := normalizeEmail(info.Email)

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		user, err := s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity %d references missing user %d", identity.ID, identity.UserID)
		}
		s.refreshFromProvider(ctx, user, info)
		s.metrics.RecordAuthAttempt("oauth", "success")
		slog.Info("existing user logged in",
			slog.Int64("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
		return user, nil
	}

	if email == "" {
		return nil, model.NewValidationError("email is required from the identity provider")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		user, err = s.createOAuthUser(ctx, info, email)
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.linkIdentity(ctx, user, info); err != nil {
			return nil, err
		}
		s.refreshFromProvider(ctx, user, info)
	}

	s.metrics.RecordAuthAttempt("oauth", "success")
	return user, nil
}

func (s *Service) createOAuthUser(ctx context.Context, info *OAuthUserInfo, email string) (*model.User, error) {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user := &model.User{
		Email:   email,
		Name:    name,
		Role:    model.GlobalRoleUser,
		Profile: model.Profile{AvatarURL: info.AvatarURL},
	}
	identity := &model.Identity{
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
	}

	err := s.userRepo.CreateWithIdentity(ctx, user, identity)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// 同じメールアドレスで同時に登録された場合は既存ユーザーに紐付ける
		existing, findErr := s.userRepo.FindByEmail(ctx, email)
		if findErr != nil || existing == nil {
			return nil, fmt.Errorf("failed to resolve concurrent registration: %w", err)
		}
		if err := s.linkIdentity(ctx, existing, info); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.Int64("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user, nil
}

func (s *Service) linkIdentity(ctx context.Context, user *model.User, info *OAuthUserInfo) error {
	err := s.identRepo.Create(ctx, &model.Identity{
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
	})
	if err != nil {
		return fmt.Errorf("failed to link identity: %w", err)
	}
	slog.Info("identity linked to existing user",
		slog.Int64("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return nil
}

// refreshFromProvider はIdPから受け取った名前・アバターが変わっていれば保存する。
// 更新失敗はログインを妨げない。
func (s *Service) refreshFromProvider(ctx context.Context, user *model.User, info *OAuthUserInfo) {
	name := strings.TrimSpace(info.Name)
	changed := false
	if name != "" && name != user.Name {
		user.Name = name
		changed = true
	}
	if info.AvatarURL != "" && info.AvatarURL != user.Profile.AvatarURL {
		user.Profile.AvatarURL = info.AvatarURL
		changed = true
	}
	if !changed {
		return
	}
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		slog.Warn("failed to refresh profile from identity provider",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// IssueToken はユーザーの認証トークンを発行する。
func (s *Service) IssueToken(userID int64) (string, token.Claims, error) {
	return s.tokens.Issue(userID)
}

// TokenTTL は認証トークンの有効期間を返す。Cookieの有効期間に使う。
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}
