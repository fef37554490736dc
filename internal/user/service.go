// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/repository"
)

// 公開範囲の既定値
const (
	defaultPrivacyProfile = "public"
	defaultPrivacyContact = "members"
	maxNameLength         = 255
)

// PasswordChanger は現在のパスワードを確認して変更するインターフェース。
// auth.Serviceが実装する。
type PasswordChanger interface {
	CheckPasswordChange(principal *model.User, current, next string) error
	ChangePassword(ctx context.Context, principal *model.User, current, next string) error
}

// ProfileUpdate はプロフィール編集の入力。
// パスワード欄のいずれかが入力された場合のみパスワードを変更する。
type ProfileUpdate struct {
	Name            string
	Email           string
	Profile         model.Profile
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

func (u ProfileUpdate) wantsPasswordChange() bool {
	return u.CurrentPassword != "" || u.NewPassword != "" || u.ConfirmPassword != ""
}

// Service はユーザー管理のサービス層。
// プロフィール編集とグローバルロール変更のビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	passwords PasswordChanger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, passwords PasswordChanger) *Service {
	return &Service{
		userRepo:  userRepo,
		passwords: passwords,
	}
}

// UpdateProfile はプリンシパル自身のプロフィールを更新し、更新後のユーザーを返す。
func (s *Service) UpdateProfile(ctx context.Context, principal *model.User, in ProfileUpdate) (*model.User, error) {
	if principal == nil {
		return nil, model.NewAuthRequiredError()
	}

	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" {
		return nil, model.NewValidationError("name and email are required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, model.NewValidationError("name must be at most 255 characters")
	}

	if in.wantsPasswordChange() {
		if in.CurrentPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
			return nil, model.NewValidationError("current password, new password and confirmation are required")
		}
		if in.NewPassword != in.ConfirmPassword {
			return nil, model.NewPasswordMismatchError()
		}
	}

	// 書き込み前にメールアドレスの重複とパスワードを確認し、部分的な更新を避ける
	if email != principal.Email {
		existing, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
		if existing != nil && existing.ID != principal.ID {
			return nil, model.NewEmailTakenError()
		}
	}

	if in.wantsPasswordChange() {
		if err := s.passwords.CheckPasswordChange(principal, in.CurrentPassword, in.NewPassword); err != nil {
			return nil, err
		}
	}

	updated := *principal
	updated.Name = name
	updated.Email = email
	updated.Profile = normalizeProfile(in.Profile)
	if err := s.userRepo.UpdateProfile(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	// プロフィールの書き込みが成功した後にのみパスワードを変更する
	if in.wantsPasswordChange() {
		if err := s.passwords.ChangePassword(ctx, principal, in.CurrentPassword, in.NewPassword); err != nil {
			return nil, err
		}
		updated.PasswordHash = principal.PasswordHash
	}

	slog.Info("profile updated", slog.Int64("user_id", principal.ID))
	return &updated, nil
}

// SetGlobalRole は対象ユーザーのグローバルロールを変更する。superadminのみ実行できる。
func (s *Service) SetGlobalRole(ctx context.Context, actor *model.User, targetID int64, role model.GlobalRole) (*model.User, error) {
	if actor == nil {
		return nil, model.NewAuthRequiredError()
	}
	if actor.Role != model.GlobalRoleSuperadmin {
		return nil, model.NewForbiddenError("", "superadmin role required")
	}
	role = model.GlobalRole(strings.ToLower(strings.TrimSpace(string(role))))
	if !role.Valid() {
		return nil, model.NewValidationError("role must be user, admin or superadmin")
	}

	ok, err := s.userRepo.UpdateRole(ctx, targetID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	if !ok {
		return nil, model.NewUserNotFoundError()
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("global role changed",
		slog.Int64("actor_id", actor.ID),
		slog.Int64("user_id", targetID),
		slog.String("role", string(role)),
	)
	return target, nil
}

// normalizeProfile は前後の空白を除去し、未知の公開範囲を既定値に置き換える。
func normalizeProfile(p model.Profile) model.Profile {
	out := model.Profile{
		AvatarURL:      strings.TrimSpace(p.AvatarURL),
		Location:       strings.TrimSpace(p.Location),
		Bio:            strings.TrimSpace(p.Bio),
		Language:       strings.TrimSpace(p.Language),
		Timezone:       strings.TrimSpace(p.Timezone),
		PrivacyProfile: p.PrivacyProfile,
		PrivacyContact: p.PrivacyContact,
	}
	for _, interest := range p.Interests {
		if v := strings.TrimSpace(interest); v != "" {
			out.Interests = append(out.Interests, v)
		}
	}
	if out.PrivacyProfile != "public" && out.PrivacyProfile != "private" {
		out.PrivacyProfile = defaultPrivacyProfile
	}
	switch out.PrivacyContact {
	case "everyone", "members", "no_one":
	default:
		out.PrivacyContact = defaultPrivacyContact
	}
	return out
}
