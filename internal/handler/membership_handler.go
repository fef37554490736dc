package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/playnet/internal/membership"
	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/model"
)

// MembershipServiceInterface はメンバーシップハンドラーが必要とするサービスインターフェース。
type MembershipServiceInterface interface {
	Join(ctx context.Context, principal *model.User, communityID int64) (*membership.JoinResult, error)
	Leave(ctx context.Context, principal *model.User, communityID int64) error
	Approve(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error)
	Reject(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error)
	ChangeRole(ctx context.Context, actor *model.User, communityID, userID int64, role model.MemberRole) error
	Kick(ctx context.Context, actor *model.User, communityID, userID int64) error
	Ban(ctx context.Context, actor *model.User, communityID, userID int64) error
	Invite(ctx context.Context, actor *model.User, communityID int64, email string) (*model.Invite, error)
	ListInvites(ctx context.Context, actor *model.User, communityID int64) ([]model.Invite, error)
	ListRequests(ctx context.Context, actor *model.User, communityID int64) ([]model.MemberDetail, error)
	ListMembers(ctx context.Context, viewer *model.User, communityID int64) ([]model.MemberDetail, error)
	ListMyInvites(ctx context.Context, principal *model.User) ([]model.InviteDetail, error)
	AcceptInvite(ctx context.Context, principal *model.User, inviteID int64) (*model.Membership, error)
	DeclineInvite(ctx context.Context, principal *model.User, inviteID int64) error
}

// MembershipHandler は参加・承認・モデレーション・招待のHTTPハンドラー。
type MembershipHandler struct {
	service MembershipServiceInterface
}

// NewMembershipHandler はMembershipHandlerを生成する。
func NewMembershipHandler(service MembershipServiceInterface) *MembershipHandler {
	return &MembershipHandler{service: service}
}

// Join はコミュニティへの参加を申請する。新規作成時は201、既存の行がある場合は200。
// POST /api/communities/{id}/join
func (h *MembershipHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.service.Join(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyMember {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"membership":     toMembershipResponse(res.Membership),
		"already_member": res.AlreadyMember,
	})
}

// Leave はコミュニティから退会する。
// DELETE /api/communities/{id}/join
func (h *MembershipHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Leave(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ListRequests は保留中の参加申請を返す。
// GET /api/communities/{id}/requests
func (h *MembershipHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	requests, err := h.service.ListRequests(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberResponses(requests))
}

// Approve は参加申請を承認する。
// POST /api/communities/{id}/requests/{userId}/approve
func (h *MembershipHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

// Reject は参加申請を却下する。
// POST /api/communities/{id}/requests/{userId}/reject
func (h *MembershipHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

// decide は承認・却下の共通処理。対象の保留行がなかった場合はupdated=falseを返す。
func (h *MembershipHandler) decide(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor *model.User, communityID, userID int64) (bool, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	updated, err := fn(r.Context(), middleware.UserFromContext(r.Context()), id, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "updated": updated})
}

// ListMembers は承認済みメンバーを返す。
// GET /api/communities/{id}/members
func (h *MembershipHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberResponses(members))
}

// ChangeRole はメンバーのロールをadminまたはmemberに変更する。
// PUT /api/communities/{id}/members/{userId}/role
func (h *MembershipHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	var req memberRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.service.ChangeRole(r.Context(), middleware.UserFromContext(r.Context()), id, userID, model.MemberRole(req.Role))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Kick はメンバーを除名する。
// DELETE /api/communities/{id}/members/{userId}
func (h *MembershipHandler) Kick(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.Kick)
}

// Ban はユーザーをBANする。
// POST /api/communities/{id}/members/{userId}/ban
func (h *MembershipHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.service.Ban)
}

func (h *MembershipHandler) moderate(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor *model.User, communityID, userID int64) error) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	if err := fn(r.Context(), middleware.UserFromContext(r.Context()), id, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ListInvites はコミュニティが送った招待を返す。
// GET /api/communities/{id}/invites
func (h *MembershipHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	invites, err := h.service.ListInvites(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toInviteResponses(invites))
}

// Invite はメールアドレス宛に招待を作成する。同じ宛先への再招待はpendingに戻す。
// POST /api/communities/{id}/invites
func (h *MembershipHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req inviteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	inv, err := h.service.Invite(r.Context(), middleware.UserFromContext(r.Context()), id, req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInviteResponse(inv))
}

// ListMyInvites はプリンシパル宛の保留中招待を返す。
// GET /api/invites
func (h *MembershipHandler) ListMyInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.service.ListMyInvites(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toInviteDetailResponses(invites))
}

// AcceptInvite は招待を受諾し、承認済みメンバーになる。
// POST /api/invites/{id}/accept
func (h *MembershipHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.service.AcceptInvite(r.Context(), middleware.UserFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"membership": toMembershipResponse(m)})
}

// DeclineInvite は招待を辞退する。
// POST /api/invites/{id}/decline
func (h *MembershipHandler) DeclineInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeclineInvite(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
