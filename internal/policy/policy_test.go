package policy

import (
	"errors"
	"testing"

	"github.com/hitoshi/playnet/internal/model"
)

func member(role model.MemberRole, status model.MemberStatus) *model.Membership {
	return &model.Membership{ID: 1, CommunityID: 10, UserID: 2, Role: role, Status: status}
}

var user = &model.User{ID: 2, Email: "player@example.com", Role: model.GlobalRoleUser}

func TestDecide(t *testing.T) {
	owner := member(model.MemberRoleOwner, model.MemberStatusApproved)
	admin := member(model.MemberRoleAdmin, model.MemberStatusApproved)
	pendingAdmin := member(model.MemberRoleAdmin, model.MemberStatusPending)
	approved := member(model.MemberRoleMember, model.MemberStatusApproved)
	pending := member(model.MemberRoleMember, model.MemberStatusPending)
	banned := member(model.MemberRoleMember, model.MemberStatusBanned)

	tests := []struct {
		name       string
		principal  *model.User
		membership *model.Membership
		visibility model.Visibility
		action     Action
		want       Decision
	}{
		{"anonymous views community", nil, nil, model.VisibilityPrivate, ViewCommunity, Allow},
		{"anonymous views public members", nil, nil, model.VisibilityPublic, ViewMembers, Allow},
		{"anonymous views private members", nil, nil, model.VisibilityPrivate, ViewMembers, DenyUnauthenticated},
		{"non-member views private members", user, nil, model.VisibilityPrivate, ViewMembers, DenyForbidden},
		{"approved views private members", user, approved, model.VisibilityPrivate, ViewMembers, Allow},

		{"anonymous views chat", nil, nil, model.VisibilityPublic, ViewChat, DenyUnauthenticated},
		{"non-member views chat", user, nil, model.VisibilityPublic, ViewChat, DenyForbidden},
		{"pending views chat", user, pending, model.VisibilityPublic, ViewChat, DenyForbidden},
		{"banned posts chat", user, banned, model.VisibilityPublic, PostChat, DenyForbidden},
		{"approved posts chat", user, approved, model.VisibilityPublic, PostChat, Allow},
		{"owner posts chat", user, owner, model.VisibilityPrivate, PostChat, Allow},

		{"owner edits core", user, owner, model.VisibilityPublic, EditCore, Allow},
		{"admin edits core", user, admin, model.VisibilityPublic, EditCore, DenyForbidden},
		{"admin edits details", user, admin, model.VisibilityPublic, EditDetails, Allow},
		{"pending admin edits details", user, pendingAdmin, model.VisibilityPublic, EditDetails, DenyForbidden},
		{"member edits details", user, approved, model.VisibilityPublic, EditDetails, DenyForbidden},

		{"owner manages invites", user, owner, model.VisibilityInvite, ManageInvites, Allow},
		{"admin manages invites", user, admin, model.VisibilityInvite, ManageInvites, DenyForbidden},
		{"admin manages requests", user, admin, model.VisibilityPrivate, ManageRequests, Allow},
		{"pending admin manages requests", user, pendingAdmin, model.VisibilityPrivate, ManageRequests, DenyForbidden},
		{"member manages requests", user, approved, model.VisibilityPrivate, ManageRequests, DenyForbidden},

		{"owner assigns role", user, owner, model.VisibilityPublic, AssignRole, Allow},
		{"admin assigns role", user, admin, model.VisibilityPublic, AssignRole, DenyForbidden},
		{"admin kicks", user, admin, model.VisibilityPublic, Kick, DenyForbidden},
		{"admin bans", user, admin, model.VisibilityPublic, Ban, DenyForbidden},
		{"owner bans", user, owner, model.VisibilityPublic, Ban, Allow},
		{"anonymous bans", nil, nil, model.VisibilityPublic, Ban, DenyUnauthenticated},

		{"non-member joins", user, nil, model.VisibilityInvite, Join, Allow},
		{"anonymous joins", nil, nil, model.VisibilityPublic, Join, DenyUnauthenticated},
		{"member leaves", user, approved, model.VisibilityPublic, Leave, Allow},
		{"unknown action", user, owner, model.VisibilityPublic, Action("dissolve"), DenyForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(Subject{Principal: tt.principal, Membership: tt.membership, Visibility: tt.visibility}, tt.action)
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("allow returns nil", func(t *testing.T) {
		s := Subject{Principal: user, Membership: member(model.MemberRoleOwner, model.MemberStatusApproved)}
		if err := Authorize(s, Kick); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("anonymous maps to auth category", func(t *testing.T) {
		err := Authorize(Subject{}, PostChat)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *model.APIError, got %T", err)
		}
		if apiErr.Category != model.CategoryAuth || apiErr.Code != model.ErrCodeAuthRequired {
			t.Errorf("unexpected error: %+v", apiErr)
		}
	})

	t.Run("forbidden maps to forbidden category", func(t *testing.T) {
		s := Subject{Principal: user, Membership: member(model.MemberRoleAdmin, model.MemberStatusApproved)}
		err := Authorize(s, Ban)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *model.APIError, got %T", err)
		}
		if apiErr.Category != model.CategoryForbidden || apiErr.Code != model.ErrCodeForbidden {
			t.Errorf("unexpected error: %+v", apiErr)
		}
		if apiErr.Message == "" {
			t.Error("expected a message")
		}
	})
}
