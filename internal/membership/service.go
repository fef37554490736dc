// Package membership はコミュニティ参加の状態遷移と招待管理のドメインロジックを提供する。
//
// メンバーシップの状態は none（行なし）/ pending / approved / banned の4つ。
// 遷移の整合性はリポジトリ層の一意制約とWHERE句のガードで保証し、
// このパッケージは認可判定と遷移前の事前条件を担当する。
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/playnet/internal/metrics"
	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/policy"
	"github.com/hitoshi/playnet/internal/repository"
)

// メトリクスに記録する遷移の結果。
const (
	outcomeApplied = "applied"
	outcomeNoop    = "noop"
	outcomeDenied  = "denied"
)

// JoinResult は参加操作の結果。
// AlreadyMemberがtrueの場合、Membershipは既存の行を表す。
type JoinResult struct {
	Membership    *model.Membership
	AlreadyMember bool
}

// Service はメンバーシップ管理のサービス層。
type Service struct {
	communities repository.CommunityRepository
	members     repository.MembershipRepository
	invites     repository.InviteRepository
	metrics     metrics.MetricsCollector
	guard       *policy.Guard
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	communities repository.CommunityRepository,
	members repository.MembershipRepository,
	invites repository.InviteRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		communities: communities,
		members:     members,
		invites:     invites,
		metrics:     collector,
		guard:       policy.NewGuard(communities, members, collector),
		now:         time.Now,
	}
}

// Join はコミュニティへの参加を申請する。
// 公開コミュニティは即時承認、それ以外は承認待ちの行を作成する。
func (s *Service) Join(ctx context.Context, principal *model.User, communityID int64) (*JoinResult, error) {
	if principal == nil {
		return nil, model.NewAuthRequiredError()
	}

	community, err := s.findCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}

	existing, err := s.members.Find(ctx, communityID, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	if existing != nil {
		return s.existingJoin(existing)
	}

	if community.Visibility == model.VisibilityInvite {
		invite, err := s.invites.FindPending(ctx, communityID, principal.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to find invite: %w", err)
		}
		if invite == nil {
			s.metrics.RecordMembershipTransition("join", outcomeDenied)
			return nil, model.NewForbiddenError(model.ErrCodeInviteRequired, "an invitation is required to join this community")
		}
	}

	if community.MaxMembers != nil {
		count, err := s.members.CountApproved(ctx, communityID)
		if err != nil {
			return nil, fmt.Errorf("failed to count members: %w", err)
		}
		if count >= *community.MaxMembers {
			s.metrics.RecordMembershipTransition("join", outcomeDenied)
			return nil, model.NewCommunityFullError()
		}
	}

	m := &model.Membership{
		CommunityID: communityID,
		UserID:      principal.ID,
		Role:        model.MemberRoleMember,
		Status:      model.MemberStatusPending,
	}
	if community.Visibility == model.VisibilityPublic {
		now := s.now()
		approver := principal.ID
		m.Status = model.MemberStatusApproved
		m.ApprovedBy = &approver
		m.ApprovedAt = &now
	}

	inserted, err := s.members.InsertIfAbsent(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}
	if !inserted {
		// 同時リクエストに先を越された場合は勝った行を返す
		winner, err := s.members.Find(ctx, communityID, principal.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find membership: %w", err)
		}
		if winner == nil {
			return nil, fmt.Errorf("membership disappeared after conflict: community=%d user=%d", communityID, principal.ID)
		}
		return s.existingJoin(winner)
	}

	s.metrics.RecordMembershipTransition("join", outcomeApplied)
	return &JoinResult{Membership: m}, nil
}

func (s *Service) existingJoin(m *model.Membership) (*JoinResult, error) {
	if m.Status == model.MemberStatusBanned {
		s.metrics.RecordMembershipTransition("join", outcomeDenied)
		return nil, model.NewMemberBannedError()
	}
	s.metrics.RecordMembershipTransition("join", outcomeNoop)
	return &JoinResult{Membership: m, AlreadyMember: true}, nil
}

// Leave はコミュニティから退会する。行が存在しない場合も成功として扱う。
func (s *Service) Leave(ctx context.Context, principal *model.User, communityID int64) error {
	if principal == nil {
		return model.NewAuthRequiredError()
	}
	if _, err := s.findCommunity(ctx, communityID); err != nil {
		return err
	}

	m, err := s.members.Find(ctx, communityID, principal.ID)
	if err != nil {
		return fmt.Errorf("failed to find membership: %w", err)
	}
	if m != nil {
		switch {
		case m.Role == model.MemberRoleOwner:
			s.metrics.RecordMembershipTransition("leave", outcomeDenied)
			return model.NewForbiddenError(model.ErrCodeOwnerCannotLeave, "the owner cannot leave the community")
		case m.Status == model.MemberStatusBanned:
			s.metrics.RecordMembershipTransition("leave", outcomeDenied)
			return model.NewMemberBannedError()
		}
	}

	deleted, err := s.members.DeleteNonOwner(ctx, communityID, principal.ID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	s.recordApplied("leave", deleted)
	return nil
}

// Approve は保留中の参加申請を承認する。保留中の行がない場合は何もしない。
func (s *Service) Approve(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error) {
	if _, err := s.guard.Authorize(ctx, actor, communityID, policy.ManageRequests); err != nil {
		return false, err
	}
	ok, err := s.members.ApprovePending(ctx, communityID, userID, actor.ID)
	if err != nil {
		return false, fmt.Errorf("failed to approve request: %w", err)
	}
	s.recordApplied("approve", ok)
	return ok, nil
}

// Reject は保留中の参加申請を却下する。保留中の行がない場合は何もしない。
func (s *Service) Reject(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error) {
	if _, err := s.guard.Authorize(ctx, actor, communityID, policy.ManageRequests); err != nil {
		return false, err
	}
	ok, err := s.members.DeletePending(ctx, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to reject request: %w", err)
	}
	s.recordApplied("reject", ok)
	return ok, nil
}

// ChangeRole は承認済みメンバーのロールをadminまたはmemberに変更する。
func (s *Service) ChangeRole(ctx context.Context, actor *model.User, communityID, userID int64, role model.MemberRole) error {
	if role != model.MemberRoleAdmin && role != model.MemberRoleMember {
		return model.NewValidationError("role must be admin or member")
	}
	if _, err := s.guard.Authorize(ctx, actor, communityID, policy.AssignRole); err != nil {
		return err
	}
	if userID == actor.ID {
		return model.NewForbiddenError(model.ErrCodeSelfAction, "you cannot change your own role")
	}

	ok, err := s.members.UpdateRole(ctx, communityID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if !ok {
		s.metrics.RecordMembershipTransition("change_role", outcomeNoop)
		return model.NewMemberNotFoundError()
	}
	s.metrics.RecordMembershipTransition("change_role", outcomeApplied)
	return nil
}

// Kick はメンバーをコミュニティから外す。BAN済みの行は削除しない。
func (s *Service) Kick(ctx context.Context, actor *model.User, communityID, userID int64) error {
	community, err := s.guard.Authorize(ctx, actor, communityID, policy.Kick)
	if err != nil {
		return err
	}
	if userID == community.CreatorID {
		return model.NewForbiddenError(model.ErrCodeOwnerProtected, "the owner cannot be removed")
	}

	ok, err := s.members.DeleteNonOwner(ctx, communityID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if !ok {
		s.metrics.RecordMembershipTransition("kick", outcomeNoop)
		return model.NewMemberNotFoundError()
	}
	s.metrics.RecordMembershipTransition("kick", outcomeApplied)
	return nil
}

// Ban は対象ユーザーをBANする。メンバーでないユーザーも事前にBANできる。
func (s *Service) Ban(ctx context.Context, actor *model.User, communityID, userID int64) error {
	community, err := s.guard.Authorize(ctx, actor, communityID, policy.Ban)
	if err != nil {
		return err
	}
	if userID == actor.ID {
		return model.NewForbiddenError(model.ErrCodeSelfAction, "you cannot ban yourself")
	}
	if userID == community.CreatorID {
		return model.NewForbiddenError(model.ErrCodeOwnerProtected, "the owner cannot be banned")
	}

	ok, err := s.members.Ban(ctx, communityID, userID)
	if err != nil {
		return fmt.Errorf("failed to ban member: %w", err)
	}
	if !ok {
		s.metrics.RecordMembershipTransition("ban", outcomeDenied)
		return model.NewForbiddenError(model.ErrCodeOwnerProtected, "the owner cannot be banned")
	}
	s.metrics.RecordMembershipTransition("ban", outcomeApplied)
	return nil
}

// Invite はメールアドレス宛に招待を作成する。既存の招待はpendingに戻す。
func (s *Service) Invite(ctx context.Context, actor *model.User, communityID int64, email string) (*model.Invite, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, model.NewValidationError("email is required")
	}
	if _, err := s.guard.Authorize(ctx, actor, communityID, policy.ManageInvites); err != nil {
		return nil, err
	}

	invite := &model.Invite{
		CommunityID: communityID,
		Email:       email,
		InvitedBy:   actor.ID,
		Status:      model.InviteStatusPending,
	}
	if err := s.invites.Upsert(ctx, invite); err != nil {
		return nil, fmt.Errorf("failed to upsert invite: %w", err)
	}
	s.metrics.RecordMembershipTransition("invite", outcomeApplied)
	return invite, nil
}

// ListInvites はコミュニティの招待一覧を返す。
func (s *Service) ListInvites(ctx context.Context, actor *model.User, communityID int64) ([]model.Invite, error) {
	if _, err := s.guard.Authorize(ctx, actor, communityID, policy.ManageInvites); err != nil {
		return nil, err
	}
	invites, err := s.invites.ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return invites, nil
}

// ListRequests は保留中の参加申請を返す。
func (s *Service) ListRequests(ctx context.Context, actor *model.User, communityID int64) ([]model.MemberDetail, error) {
	if _, err := s.guard.Authorize(ctx, actor, communityID, policy.ManageRequests); err != nil {
		return nil, err
	}
	rows, err := s.members.ListByStatus(ctx, communityID, model.MemberStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return rows, nil
}

// ListMembers は承認済みメンバーを返す。公開コミュニティは匿名でも閲覧できる。
func (s *Service) ListMembers(ctx context.Context, viewer *model.User, communityID int64) ([]model.MemberDetail, error) {
	if _, err := s.guard.Authorize(ctx, viewer, communityID, policy.ViewMembers); err != nil {
		return nil, err
	}
	rows, err := s.members.ListByStatus(ctx, communityID, model.MemberStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return rows, nil
}

// ListMyInvites はプリンシパル宛の保留中の招待を返す。
func (s *Service) ListMyInvites(ctx context.Context, principal *model.User) ([]model.InviteDetail, error) {
	if principal == nil {
		return nil, model.NewAuthRequiredError()
	}
	invites, err := s.invites.ListPendingByEmail(ctx, normalizeEmail(principal.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	return invites, nil
}

// AcceptInvite は招待を承諾し、メンバーシップを承認済みにする。
// 招待の承諾は招待者の承認とみなし、定員チェックは行わない。
func (s *Service) AcceptInvite(ctx context.Context, principal *model.User, inviteID int64) (*model.Membership, error) {
	invite, err := s.pendingInviteFor(ctx, principal, inviteID)
	if err != nil {
		return nil, err
	}

	m, err := s.invites.Accept(ctx, invite, principal.ID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberBanned) {
			s.metrics.RecordMembershipTransition("accept_invite", outcomeDenied)
			return nil, model.NewMemberBannedError()
		}
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}
	s.metrics.RecordMembershipTransition("accept_invite", outcomeApplied)
	return m, nil
}

// DeclineInvite は招待を辞退する。
func (s *Service) DeclineInvite(ctx context.Context, principal *model.User, inviteID int64) error {
	invite, err := s.pendingInviteFor(ctx, principal, inviteID)
	if err != nil {
		return err
	}

	ok, err := s.invites.Decline(ctx, invite.ID)
	if err != nil {
		return fmt.Errorf("failed to decline invite: %w", err)
	}
	if !ok {
		// 並行して承諾・辞退された
		return model.NewInviteNotFoundError()
	}
	s.metrics.RecordMembershipTransition("decline_invite", outcomeApplied)
	return nil
}

func (s *Service) pendingInviteFor(ctx context.Context, principal *model.User, inviteID int64) (*model.Invite, error) {
	if principal == nil {
		return nil, model.NewAuthRequiredError()
	}
	invite, err := s.invites.FindByID(ctx, inviteID)
	if err != nil {
		return nil, fmt.Errorf("failed to find invite: %w", err)
	}
	if invite == nil || invite.Status != model.InviteStatusPending {
		return nil, model.NewInviteNotFoundError()
	}
	if !strings.EqualFold(invite.Email, strings.TrimSpace(principal.Email)) {
		return nil, model.NewForbiddenError(model.ErrCodeInviteMismatch, "this invite is addressed to another account")
	}
	return invite, nil
}

func (s *Service) findCommunity(ctx context.Context, communityID int64) (*model.Community, error) {
	community, err := s.communities.FindByID(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find community: %w", err)
	}
	if community == nil {
		return nil, model.NewCommunityNotFoundError()
	}
	return community, nil
}

func (s *Service) recordApplied(action string, applied bool) {
	if applied {
		s.metrics.RecordMembershipTransition(action, outcomeApplied)
		return
	}
	s.metrics.RecordMembershipTransition(action, outcomeNoop)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
