package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/user"
)

type mockAdminService struct {
	setFn func(ctx context.Context, actor *model.User, targetID int64, role model.GlobalRole) (*model.User, error)
}

func (m *mockAdminService) SetGlobalRole(ctx context.Context, actor *model.User, targetID int64, role model.GlobalRole) (*model.User, error) {
	return m.setFn(ctx, actor, targetID, role)
}

var _ UserAdminServiceInterface = (*user.Service)(nil)

func TestAdminHandler_SetUserRole(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "promote", body: `{"role":"admin"}`, wantStatus: http.StatusOK},
		{name: "unknown role", body: `{"role":"root"}`, wantStatus: http.StatusBadRequest},
		{name: "missing user", body: `{"role":"user"}`, err: model.NewUserNotFoundError(), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRole model.GlobalRole
			h := NewAdminHandler(&mockAdminService{setFn: func(_ context.Context, _ *model.User, id int64, role model.GlobalRole) (*model.User, error) {
				gotRole = role
				if tt.err != nil {
					return nil, tt.err
				}
				return &model.User{ID: id, Role: role}, nil
			}})

			r := chi.NewRouter()
			r.Patch("/api/admin/users/{id}/role", h.SetUserRole)
			req := withUser(jsonRequest(http.MethodPatch, "/api/admin/users/5/role", tt.body), &model.User{ID: 1, Role: model.GlobalRoleSuperadmin})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotRole != model.GlobalRoleAdmin {
				t.Errorf("role = %q, want admin", gotRole)
			}
		})
	}
}

func TestHealthHandler_NoDatabase(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil).HealthDB(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
