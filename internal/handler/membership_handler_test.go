package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/playnet/internal/membership"
	"github.com/hitoshi/playnet/internal/model"
)

// --- モック定義 ---

type mockMembershipService struct {
	joinFn          func(ctx context.Context, principal *model.User, communityID int64) (*membership.JoinResult, error)
	leaveFn         func(ctx context.Context, principal *model.User, communityID int64) error
	approveFn       func(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error)
	rejectFn        func(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error)
	changeRoleFn    func(ctx context.Context, actor *model.User, communityID, userID int64, role model.MemberRole) error
	kickFn          func(ctx context.Context, actor *model.User, communityID, userID int64) error
	banFn           func(ctx context.Context, actor *model.User, communityID, userID int64) error
	inviteFn        func(ctx context.Context, actor *model.User, communityID int64, email string) (*model.Invite, error)
	listInvitesFn   func(ctx context.Context, actor *model.User, communityID int64) ([]model.Invite, error)
	listRequestsFn  func(ctx context.Context, actor *model.User, communityID int64) ([]model.MemberDetail, error)
	listMembersFn   func(ctx context.Context, viewer *model.User, communityID int64) ([]model.MemberDetail, error)
	listMyInvitesFn func(ctx context.Context, principal *model.User) ([]model.InviteDetail, error)
	acceptFn        func(ctx context.Context, principal *model.User, inviteID int64) (*model.Membership, error)
	declineFn       func(ctx context.Context, principal *model.User, inviteID int64) error
}

func (m *mockMembershipService) Join(ctx context.Context, principal *model.User, communityID int64) (*membership.JoinResult, error) {
	if m.joinFn != nil {
		return m.joinFn(ctx, principal, communityID)
	}
	return &membership.JoinResult{Membership: &model.Membership{CommunityID: communityID, UserID: principal.ID}}, nil
}

func (m *mockMembershipService) Leave(ctx context.Context, principal *model.User, communityID int64) error {
	if m.leaveFn != nil {
		return m.leaveFn(ctx, principal, communityID)
	}
	return nil
}

func (m *mockMembershipService) Approve(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, actor, communityID, userID)
	}
	return true, nil
}

func (m *mockMembershipService) Reject(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error) {
	if m.rejectFn != nil {
		return m.rejectFn(ctx, actor, communityID, userID)
	}
	return true, nil
}

func (m *mockMembershipService) ChangeRole(ctx context.Context, actor *model.User, communityID, userID int64, role model.MemberRole) error {
	if m.changeRoleFn != nil {
		return m.changeRoleFn(ctx, actor, communityID, userID, role)
	}
	return nil
}

func (m *mockMembershipService) Kick(ctx context.Context, actor *model.User, communityID, userID int64) error {
	if m.kickFn != nil {
		return m.kickFn(ctx, actor, communityID, userID)
	}
	return nil
}

func (m *mockMembershipService) Ban(ctx context.Context, actor *model.User, communityID, userID int64) error {
	if m.banFn != nil {
		return m.banFn(ctx, actor, communityID, userID)
	}
	return nil
}

func (m *mockMembershipService) Invite(ctx context.Context, actor *model.User, communityID int64, email string) (*model.Invite, error) {
	if m.inviteFn != nil {
		return m.inviteFn(ctx, actor, communityID, email)
	}
	return &model.Invite{ID: 1, CommunityID: communityID, Email: email, InvitedBy: actor.ID, Status: model.InviteStatusPending}, nil
}

func (m *mockMembershipService) ListInvites(ctx context.Context, actor *model.User, communityID int64) ([]model.Invite, error) {
	if m.listInvitesFn != nil {
		return m.listInvitesFn(ctx, actor, communityID)
	}
	return []model.Invite{}, nil
}

func (m *mockMembershipService) ListRequests(ctx context.Context, actor *model.User, communityID int64) ([]model.MemberDetail, error) {
	if m.listRequestsFn != nil {
		return m.listRequestsFn(ctx, actor, communityID)
	}
	return []model.MemberDetail{}, nil
}

func (m *mockMembershipService) ListMembers(ctx context.Context, viewer *model.User, communityID int64) ([]model.MemberDetail, error) {
	if m.listMembersFn != nil {
		return m.listMembersFn(ctx, viewer, communityID)
	}
	return []model.MemberDetail{}, nil
}

func (m *mockMembershipService) ListMyInvites(ctx context.Context, principal *model.User) ([]model.InviteDetail, error) {
	if m.listMyInvitesFn != nil {
		return m.listMyInvitesFn(ctx, principal)
	}
	return []model.InviteDetail{}, nil
}

func (m *mockMembershipService) AcceptInvite(ctx context.Context, principal *model.User, inviteID int64) (*model.Membership, error) {
	if m.acceptFn != nil {
		return m.acceptFn(ctx, principal, inviteID)
	}
	return &model.Membership{UserID: principal.ID, Status: model.MemberStatusApproved}, nil
}

func (m *mockMembershipService) DeclineInvite(ctx context.Context, principal *model.User, inviteID int64) error {
	if m.declineFn != nil {
		return m.declineFn(ctx, principal, inviteID)
	}
	return nil
}

var _ MembershipServiceInterface = (*membership.Service)(nil)

func serveMembership(method, pattern string, fn http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, fn)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- テスト ---

func TestMembershipHandler_Join(t *testing.T) {
	tests := []struct {
		name       string
		result     *membership.JoinResult
		err        error
		wantStatus int
	}{
		{
			name:       "new pending row",
			result:     &membership.JoinResult{Membership: &model.Membership{CommunityID: 3, UserID: 2, Role: model.MemberRoleMember, Status: model.MemberStatusPending}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "already member",
			result:     &membership.JoinResult{Membership: &model.Membership{CommunityID: 3, UserID: 2, Status: model.MemberStatusApproved}, AlreadyMember: true},
			wantStatus: http.StatusOK,
		},
		{name: "banned", err: model.NewMemberBannedError(), wantStatus: http.StatusForbidden},
		{name: "full", err: model.NewCommunityFullError(), wantStatus: http.StatusConflict},
		{name: "invite required", err: model.NewForbiddenError(model.ErrCodeInviteRequired, "invite required"), wantStatus: http.StatusForbidden},
		{name: "missing community", err: model.NewCommunityNotFoundError(), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMembershipHandler(&mockMembershipService{joinFn: func(context.Context, *model.User, int64) (*membership.JoinResult, error) {
				return tt.result, tt.err
			}})
			req := withUser(httptest.NewRequest(http.MethodPost, "/api/communities/3/join", nil), &model.User{ID: 2})
			w := serveMembership(http.MethodPost, "/api/communities/{id}/join", h.Join, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.result != nil {
				body := decodeBody(t, w)
				m, _ := body["membership"].(map[string]interface{})
				if m["status"] != string(tt.result.Membership.Status) {
					t.Errorf("status field = %v, want %s", m["status"], tt.result.Membership.Status)
				}
				if body["already_member"] != tt.result.AlreadyMember {
					t.Errorf("already_member = %v, want %v", body["already_member"], tt.result.AlreadyMember)
				}
			}
		})
	}
}

func TestMembershipHandler_Leave_OwnerCannotLeave(t *testing.T) {
	h := NewMembershipHandler(&mockMembershipService{leaveFn: func(context.Context, *model.User, int64) error {
		return model.NewForbiddenError(model.ErrCodeOwnerCannotLeave, "owner cannot leave")
	}})
	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/communities/3/join", nil), &model.User{ID: 1})
	w := serveMembership(http.MethodDelete, "/api/communities/{id}/join", h.Leave, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if code := errorCode(t, w); code != model.ErrCodeOwnerCannotLeave {
		t.Errorf("code = %q, want %q", code, model.ErrCodeOwnerCannotLeave)
	}
}

func TestMembershipHandler_ApproveReject_PassIDs(t *testing.T) {
	var gotCommunity, gotUser int64
	record := func(_ context.Context, _ *model.User, communityID, userID int64) (bool, error) {
		gotCommunity, gotUser = communityID, userID
		return false, nil
	}
	h := NewMembershipHandler(&mockMembershipService{approveFn: record, rejectFn: record})

	for _, action := range []struct {
		pattern string
		target  string
		fn      http.HandlerFunc
	}{
		{"/api/communities/{id}/requests/{userId}/approve", "/api/communities/3/requests/8/approve", h.Approve},
		{"/api/communities/{id}/requests/{userId}/reject", "/api/communities/3/requests/8/reject", h.Reject},
	} {
		gotCommunity, gotUser = 0, 0
		req := withUser(httptest.NewRequest(http.MethodPost, action.target, nil), &model.User{ID: 1})
		w := serveMembership(http.MethodPost, action.pattern, action.fn, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", action.target, w.Code, http.StatusOK)
		}
		if gotCommunity != 3 || gotUser != 8 {
			t.Errorf("%s ids = (%d, %d), want (3, 8)", action.target, gotCommunity, gotUser)
		}
		if body := decodeBody(t, w); body["updated"] != false {
			t.Errorf("%s updated = %v, want false", action.target, body["updated"])
		}
	}
}

func TestMembershipHandler_ChangeRole(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "admin", body: `{"role":"admin"}`, wantStatus: http.StatusOK},
		{name: "owner rejected at boundary", body: `{"role":"owner"}`, wantStatus: http.StatusBadRequest},
		{name: "self", body: `{"role":"member"}`, err: model.NewForbiddenError(model.ErrCodeSelfAction, "cannot change own role"), wantStatus: http.StatusForbidden},
		{name: "missing member", body: `{"role":"member"}`, err: model.NewMemberNotFoundError(), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRole model.MemberRole
			h := NewMembershipHandler(&mockMembershipService{changeRoleFn: func(_ context.Context, _ *model.User, _, _ int64, role model.MemberRole) error {
				gotRole = role
				return tt.err
			}})
			req := withUser(jsonRequest(http.MethodPut, "/api/communities/3/members/8/role", tt.body), &model.User{ID: 1})
			w := serveMembership(http.MethodPut, "/api/communities/{id}/members/{userId}/role", h.ChangeRole, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotRole != model.MemberRoleAdmin {
				t.Errorf("role = %q, want admin", gotRole)
			}
		})
	}
}

func TestMembershipHandler_KickBan(t *testing.T) {
	h := NewMembershipHandler(&mockMembershipService{
		kickFn: func(context.Context, *model.User, int64, int64) error {
			return model.NewForbiddenError(model.ErrCodeOwnerProtected, "owner cannot be removed")
		},
		banFn: func(context.Context, *model.User, int64, int64) error { return nil },
	})

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/communities/3/members/1", nil), &model.User{ID: 2})
	w := serveMembership(http.MethodDelete, "/api/communities/{id}/members/{userId}", h.Kick, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("kick status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = withUser(httptest.NewRequest(http.MethodPost, "/api/communities/3/members/8/ban", nil), &model.User{ID: 1})
	w = serveMembership(http.MethodPost, "/api/communities/{id}/members/{userId}/ban", h.Ban, req)
	if w.Code != http.StatusOK {
		t.Errorf("ban status = %d, want %d", w.Code, http.StatusOK)
	}

	req = withUser(httptest.NewRequest(http.MethodPost, "/api/communities/3/members/x/ban", nil), &model.User{ID: 1})
	w = serveMembership(http.MethodPost, "/api/communities/{id}/members/{userId}/ban", h.Ban, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid user id status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMembershipHandler_Invite(t *testing.T) {
	var gotEmail string
	h := NewMembershipHandler(&mockMembershipService{inviteFn: func(_ context.Context, actor *model.User, id int64, email string) (*model.Invite, error) {
		gotEmail = email
		return &model.Invite{ID: 5, CommunityID: id, Email: email, InvitedBy: actor.ID, Status: model.InviteStatusPending}, nil
	}})

	req := withUser(jsonRequest(http.MethodPost, "/api/communities/3/invites", `{"email":"friend@example.com"}`), &model.User{ID: 1})
	w := serveMembership(http.MethodPost, "/api/communities/{id}/invites", h.Invite, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotEmail != "friend@example.com" {
		t.Errorf("email = %q", gotEmail)
	}
	var resp inviteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.ID != 5 || resp.Status != "pending" || resp.InvitedBy != 1 {
		t.Errorf("unexpected invite: %+v", resp)
	}

	req = withUser(jsonRequest(http.MethodPost, "/api/communities/3/invites", `{"email":"nope"}`), &model.User{ID: 1})
	w = serveMembership(http.MethodPost, "/api/communities/{id}/invites", h.Invite, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid email status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMembershipHandler_ListMyInvites(t *testing.T) {
	h := NewMembershipHandler(&mockMembershipService{listMyInvitesFn: func(context.Context, *model.User) ([]model.InviteDetail, error) {
		return []model.InviteDetail{{Invite: model.Invite{ID: 5, CommunityID: 3, Status: model.InviteStatusPending}, CommunityName: "Tennis"}}, nil
	}})

	w := httptest.NewRecorder()
	h.ListMyInvites(w, withUser(httptest.NewRequest(http.MethodGet, "/api/invites", nil), &model.User{ID: 2}))

	var resp []inviteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp) != 1 || resp[0].CommunityName != "Tennis" {
		t.Errorf("unexpected invites: %+v", resp)
	}
}

func TestMembershipHandler_AcceptDecline(t *testing.T) {
	h := NewMembershipHandler(&mockMembershipService{
		acceptFn: func(context.Context, *model.User, int64) (*model.Membership, error) {
			return nil, model.NewForbiddenError(model.ErrCodeInviteMismatch, "invite is for a different email")
		},
		declineFn: func(context.Context, *model.User, int64) error {
			return model.NewInviteNotFoundError()
		},
	})

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/invites/5/accept", nil), &model.User{ID: 2})
	w := serveMembership(http.MethodPost, "/api/invites/{id}/accept", h.AcceptInvite, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("accept status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = withUser(httptest.NewRequest(http.MethodPost, "/api/invites/5/decline", nil), &model.User{ID: 2})
	w = serveMembership(http.MethodPost, "/api/invites/{id}/decline", h.DeclineInvite, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("decline status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
