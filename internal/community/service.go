// Package community はコミュニティの作成・閲覧・編集とチャットのドメインロジックを提供する。
package community

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/playnet/internal/metrics"
	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/policy"
	"github.com/hitoshi/playnet/internal/repository"
	"github.com/hitoshi/playnet/internal/security"
)

const (
	// DefaultListLimit は一覧取得件数の既定値。
	DefaultListLimit = 12
	// MaxListLimit は一覧取得件数の上限。
	MaxListLimit = 50
	// MessageHistoryLimit はチャット履歴の取得件数。
	MessageHistoryLimit = 200
	// MaxMessageLength はチャット本文の最大文字数。
	MaxMessageLength = 2000
)

// Draft はコミュニティ作成の入力。
type Draft struct {
	Name        string
	Description string
	Sport       string
	Region      string
	ImageURL    string
	Visibility  model.Visibility // 空の場合はpublic
	MaxMembers  *int             // nilは定員なし
}

// Patch はコミュニティ更新の入力。nilのフィールドは変更しない。
//
// Name, Visibility, MaxMembers はオーナーのみ、それ以外は承認済み管理者も変更できる。
// MaxMembersに0以下を指定すると定員なしに戻す。
type Patch struct {
	Name        *string
	Visibility  *model.Visibility
	MaxMembers  *int
	Description *string
	Sport       *string
	Region      *string
	ImageURL    *string
}

func (p Patch) touchesCore() bool {
	return p.Name != nil || p.Visibility != nil || p.MaxMembers != nil
}

// Service はコミュニティのサービス層。
type Service struct {
	communities repository.CommunityRepository
	messages    repository.MessageRepository
	sanitizer   security.ContentSanitizer
	guard       *policy.Guard
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	communities repository.CommunityRepository,
	members repository.MembershipRepository,
	messages repository.MessageRepository,
	sanitizer security.ContentSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		communities: communities,
		messages:    messages,
		sanitizer:   sanitizer,
		guard:       policy.NewGuard(communities, members, collector),
	}
}

// Create はコミュニティを作成し、作成者を承認済みオーナーとして登録する。
func (s *Service) Create(ctx context.Context, principal *model.User, d Draft) (*model.CommunitySummary, error) {
	if principal == nil {
		return nil, model.NewAuthRequiredError()
	}

	c := &model.Community{
		CreatorID:   principal.ID,
		Name:        strings.TrimSpace(d.Name),
		Description: s.sanitizer.Sanitize(d.Description),
		Sport:       strings.TrimSpace(d.Sport),
		Region:      strings.TrimSpace(d.Region),
		ImageURL:    strings.TrimSpace(d.ImageURL),
		Visibility:  d.Visibility,
		MaxMembers:  d.MaxMembers,
	}
	if c.Visibility == "" {
		c.Visibility = model.VisibilityPublic
	}
	if c.MaxMembers != nil && *c.MaxMembers <= 0 {
		c.MaxMembers = nil
	}
	if err := validateCommunity(c); err != nil {
		return nil, err
	}

	if err := s.communities.CreateWithOwner(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create community: %w", err)
	}
	return s.Get(ctx, principal, c.ID)
}

// Get は閲覧者の状態を付与したコミュニティを返す。詳細は誰でも閲覧できる。
func (s *Service) Get(ctx context.Context, viewer *model.User, communityID int64) (*model.CommunitySummary, error) {
	summary, err := s.communities.FindSummary(ctx, communityID, toViewer(viewer))
	if err != nil {
		return nil, fmt.Errorf("failed to find community: %w", err)
	}
	if summary == nil {
		return nil, model.NewCommunityNotFoundError()
	}
	return summary, nil
}

// List は新しい順にコミュニティを返す。limitは1〜MaxListLimitに丸める。
func (s *Service) List(ctx context.Context, viewer *model.User, limit int) ([]model.CommunitySummary, error) {
	summaries, err := s.communities.ListSummaries(ctx, toViewer(viewer), ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	if summaries == nil {
		summaries = []model.CommunitySummary{}
	}
	return summaries, nil
}

// ClampLimit は一覧取得件数を既定値と上限の範囲に丸める。
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// Update はコミュニティを部分更新する。
// 名前・公開範囲・定員を含む変更はオーナーのみ許可する。
func (s *Service) Update(ctx context.Context, actor *model.User, communityID int64, p Patch) (*model.CommunitySummary, error) {
	action := policy.EditDetails
	if p.touchesCore() {
		action = policy.EditCore
	}
	c, err := s.guard.Authorize(ctx, actor, communityID, action)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Visibility != nil {
		c.Visibility = *p.Visibility
	}
	if p.MaxMembers != nil {
		if *p.MaxMembers <= 0 {
			c.MaxMembers = nil
		} else {
			n := *p.MaxMembers
			c.MaxMembers = &n
		}
	}
	if p.Description != nil {
		c.Description = s.sanitizer.Sanitize(*p.Description)
	}
	if p.Sport != nil {
		c.Sport = strings.TrimSpace(*p.Sport)
	}
	if p.Region != nil {
		c.Region = strings.TrimSpace(*p.Region)
	}
	if p.ImageURL != nil {
		c.ImageURL = strings.TrimSpace(*p.ImageURL)
	}
	if err := validateCommunity(c); err != nil {
		return nil, err
	}

	if err := s.communities.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update community: %w", err)
	}
	return s.Get(ctx, actor, communityID)
}

// Messages は最新のチャットを古い順に返す。承認済みメンバーのみ閲覧できる。
func (s *Service) Messages(ctx context.Context, viewer *model.User, communityID int64) ([]model.Message, error) {
	if _, err := s.guard.Authorize(ctx, viewer, communityID, policy.ViewChat); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListRecent(ctx, communityID, MessageHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// PostMessage はチャットにメッセージを投稿する。本文はHTMLを除去して保存する。
func (s *Service) PostMessage(ctx context.Context, principal *model.User, communityID int64, body string) (*model.Message, error) {
	if _, err := s.guard.Authorize(ctx, principal, communityID, policy.PostChat); err != nil {
		return nil, err
	}

	body = s.sanitizer.Sanitize(body)
	if body == "" {
		return nil, model.NewValidationError("message cannot be empty")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, model.NewValidationError(fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
	}

	msg := &model.Message{
		CommunityID: communityID,
		UserID:      principal.ID,
		Body:        body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func validateCommunity(c *model.Community) error {
	if c.Name == "" {
		return model.NewValidationError("community name is required")
	}
	if utf8.RuneCountInString(c.Name) > 255 {
		return model.NewValidationError("community name must be at most 255 characters")
	}
	if !c.Visibility.Valid() {
		return model.NewValidationError("visibility must be public, private or invite")
	}
	return nil
}

func toViewer(u *model.User) repository.Viewer {
	if u == nil {
		return repository.Viewer{}
	}
	return repository.Viewer{UserID: u.ID, Email: strings.ToLower(u.Email)}
}
