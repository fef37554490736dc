// Package policy はコミュニティ操作の認可判定を提供する。
//
// 判定は入力（プリンシパル、メンバーシップ行、公開範囲、操作）のみに依存する純粋関数であり、
// 呼び出し元はリクエストごとにメンバーシップ行を読み直して渡すこと。
package policy

import "github.com/hitoshi/playnet/internal/model"

// Action は認可対象の操作。
type Action string

const (
	ViewCommunity  Action = "view_community"
	ViewMembers    Action = "view_members"
	ViewChat       Action = "view_chat"
	PostChat       Action = "post_chat"
	EditCore       Action = "edit_core"    // name, visibility, max_members
	EditDetails    Action = "edit_details" // description, sport, region, image_url
	ManageInvites  Action = "manage_invites"
	ManageRequests Action = "manage_requests"
	AssignRole     Action = "assign_role"
	Kick           Action = "kick"
	Ban            Action = "ban"
	Join           Action = "join"
	Leave          Action = "leave"
)

// Decision は認可判定の結果。
type Decision int

const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyForbidden
)

// String はログ出力用の表現を返す。
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyForbidden:
		return "deny_forbidden"
	}
	return "unknown"
}

// Subject は判定の入力。Principal・Membershipがnilの場合はそれぞれ匿名・行なしを表す。
type Subject struct {
	Principal  *model.User
	Membership *model.Membership
	Visibility model.Visibility
}

func (s Subject) isOwner() bool {
	return s.Membership != nil && s.Membership.Role == model.MemberRoleOwner
}

func (s Subject) isApproved() bool {
	return s.isOwner() || s.Membership.IsApproved()
}

func (s Subject) isApprovedAdmin() bool {
	return s.Membership.IsApproved() && s.Membership.Role == model.MemberRoleAdmin
}

// Decide は操作の可否を判定する。
func Decide(s Subject, a Action) Decision {
	switch a {
	case ViewCommunity:
		return Allow
	case ViewMembers:
		if s.Visibility == model.VisibilityPublic {
			return Allow
		}
	}

	if s.Principal == nil {
		return DenyUnauthenticated
	}

	var ok bool
	switch a {
	case Join, Leave:
		ok = true
	case ViewMembers, ViewChat, PostChat:
		ok = s.isApproved()
	case EditDetails, ManageRequests:
		ok = s.isOwner() || s.isApprovedAdmin()
	case EditCore, ManageInvites, AssignRole, Kick, Ban:
		ok = s.isOwner()
	}
	if !ok {
		return DenyForbidden
	}
	return Allow
}

// Authorize は判定結果をAPIエラーに変換する。許可された場合はnilを返す。
func Authorize(s Subject, a Action) error {
	switch Decide(s, a) {
	case Allow:
		return nil
	case DenyUnauthenticated:
		return model.NewAuthRequiredError()
	default:
		return model.NewForbiddenError("", deniedMessages[a])
	}
}

var deniedMessages = map[Action]string{
	ViewMembers:    "only approved members can view the member list",
	ViewChat:       "only approved members can view the chat",
	PostChat:       "only approved members can post messages",
	EditCore:       "only the owner can change name, visibility or capacity",
	EditDetails:    "only the owner or an admin can edit this community",
	ManageInvites:  "only the owner can manage invites",
	ManageRequests: "only the owner or an admin can manage join requests",
	AssignRole:     "only the owner can change member roles",
	Kick:           "only the owner can remove members",
	Ban:            "only the owner can ban members",
}
