package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/model"
)

// UserAdminServiceInterface はグローバルロール管理に必要なサービスインターフェース。
type UserAdminServiceInterface interface {
	SetGlobalRole(ctx context.Context, actor *model.User, targetID int64, role model.GlobalRole) (*model.User, error)
}

// AdminHandler はスーパー管理者向けのHTTPハンドラー。
type AdminHandler struct {
	service UserAdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service UserAdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// SetUserRole はユーザーのグローバルロールを変更する。
// PATCH /api/admin/users/{id}/role
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req globalRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.service.SetGlobalRole(r.Context(), middleware.UserFromContext(r.Context()), id, model.GlobalRole(req.Role))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": toUserResponse(u)})
}
