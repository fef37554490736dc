package policy

import (
	"context"
	"fmt"

	"github.com/hitoshi/playnet/internal/model"
)

// CommunityFinder はコミュニティをIDで取得する。見つからない場合は (nil, nil)。
type CommunityFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Community, error)
}

// MembershipFinder はコミュニティとユーザーの組でメンバーシップ行を取得する。
type MembershipFinder interface {
	Find(ctx context.Context, communityID, userID int64) (*model.Membership, error)
}

// DenialRecorder は認可拒否を記録する。
type DenialRecorder interface {
	RecordPolicyDenial(action string)
}

// Guard は最新のコミュニティとメンバーシップ行を読み込んでから判定する。
type Guard struct {
	communities CommunityFinder
	members     MembershipFinder
	denials     DenialRecorder
}

// NewGuard はGuardを生成する。denialsがnilの場合は拒否を記録しない。
func NewGuard(communities CommunityFinder, members MembershipFinder, denials DenialRecorder) *Guard {
	return &Guard{
		communities: communities,
		members:     members,
		denials:     denials,
	}
}

// Authorize はactorがコミュニティに対してactionを実行できるか判定し、許可された場合はコミュニティを返す。
// コミュニティが存在しない場合はCOMMUNITY_NOT_FOUNDを返す。
func (g *Guard) Authorize(ctx context.Context, actor *model.User, communityID int64, action Action) (*model.Community, error) {
	c, err := g.communities.FindByID(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find community: %w", err)
	}
	if c == nil {
		return nil, model.NewCommunityNotFoundError()
	}

	var m *model.Membership
	if actor != nil {
		m, err = g.members.Find(ctx, communityID, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find membership: %w", err)
		}
	}

	if err := Authorize(Subject{Principal: actor, Membership: m, Visibility: c.Visibility}, action); err != nil {
		if g.denials != nil {
			g.denials.RecordPolicyDenial(string(action))
		}
		return nil, err
	}
	return c, nil
}
