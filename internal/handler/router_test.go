package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/playnet/internal/membership"
	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/model"
	"github.com/hitoshi/playnet/internal/token"
)

// codecAuthService は実際のトークンコーデックで発行するモック認証サービス。
type codecAuthService struct {
	mockAuthService
	codec *token.Codec
}

func (s *codecAuthService) IssueToken(userID int64) (string, token.Claims, error) {
	return s.codec.Issue(userID)
}

func (s *codecAuthService) TokenTTL() time.Duration { return s.codec.TTL() }

type userDirectory map[int64]*model.User

func (d userDirectory) FindByID(_ context.Context, id int64) (*model.User, error) {
	return d[id], nil
}

type routerEnv struct {
	router  http.Handler
	codec   *token.Codec
	members *mockMembershipService
	pingErr error
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	codec, err := token.NewCodec("router-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	users := userDirectory{
		1: {ID: 1, Email: "owner@example.com", Role: model.GlobalRoleUser},
		2: {ID: 2, Email: "root@example.com", Role: model.GlobalRoleSuperadmin},
	}

	env := &routerEnv{codec: codec, members: &mockMembershipService{}}
	authSvc := &codecAuthService{
		mockAuthService: mockAuthService{loginFn: func(_ context.Context, email, _ string) (*model.User, error) {
			for _, u := range users {
				if u.Email == email {
					return u, nil
				}
			}
			return nil, model.NewInvalidCredentialsError()
		}},
		codec: codec,
	}

	env.router = NewRouter(&RouterDeps{
		Tokens:            codec,
		Users:             users,
		CORS:              middleware.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		MetricsHandler:    http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "# metrics") }),
		AuthService:       authSvc,
		ProfileService:    &mockProfileService{},
		AuthConfig:        AuthHandlerConfig{FrontendURL: "http://localhost:5173"},
		CommunityService:  &mockCommunityService{},
		MembershipService: env.members,
		AdminService: &mockAdminService{setFn: func(_ context.Context, _ *model.User, id int64, role model.GlobalRole) (*model.User, error) {
			return &model.User{ID: id, Role: role}, nil
		}},
		DB: PingerFunc(func(context.Context) error { return env.pingErr }),
	})
	return env
}

func (e *routerEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *routerEnv) cookieFor(t *testing.T, uid int64) *http.Cookie {
	t.Helper()
	tok, _, err := e.codec.Issue(uid)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return &http.Cookie{Name: middleware.AuthCookieName, Value: tok}
}

func TestRouter_Health(t *testing.T) {
	env := newRouterEnv(t)

	if w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil), nil); w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := env.do(httptest.NewRequest(http.MethodGet, "/health/db", nil), nil); w.Code != http.StatusOK {
		t.Errorf("/health/db status = %d, want %d", w.Code, http.StatusOK)
	}

	env.pingErr = errors.New("connection refused")
	if w := env.do(httptest.NewRequest(http.MethodGet, "/health/db", nil), nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/health/db status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics(t *testing.T) {
	env := newRouterEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	if w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Errorf("/metrics = %d %q", w.Code, w.Body.String())
	}
}

func TestRouter_ProtectedRoutes_RequireAuth(t *testing.T) {
	env := newRouterEnv(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/communities"},
		{http.MethodPatch, "/api/communities/1"},
		{http.MethodGet, "/api/communities/1/messages"},
		{http.MethodPost, "/api/communities/1/messages"},
		{http.MethodPost, "/api/communities/1/join"},
		{http.MethodDelete, "/api/communities/1/join"},
		{http.MethodGet, "/api/communities/1/invites"},
		{http.MethodPost, "/api/communities/1/invites"},
		{http.MethodGet, "/api/communities/1/requests"},
		{http.MethodPost, "/api/communities/1/requests/2/approve"},
		{http.MethodPost, "/api/communities/1/requests/2/reject"},
		{http.MethodPut, "/api/communities/1/members/2/role"},
		{http.MethodDelete, "/api/communities/1/members/2"},
		{http.MethodPost, "/api/communities/1/members/2/ban"},
		{http.MethodGet, "/api/invites"},
		{http.MethodPost, "/api/invites/1/accept"},
		{http.MethodPost, "/api/invites/1/decline"},
		{http.MethodPatch, "/auth/me"},
		{http.MethodPatch, "/api/admin/users/1/role"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := env.do(httptest.NewRequest(rt.method, rt.path, nil), nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRouter_PublicRoutes_AllowAnonymous(t *testing.T) {
	env := newRouterEnv(t)

	for _, path := range []string{"/api/communities", "/api/communities/1", "/api/communities/1/members", "/auth/me"} {
		w := env.do(httptest.NewRequest(http.MethodGet, path, nil), nil)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_LoginThenJoin(t *testing.T) {
	env := newRouterEnv(t)
	var joined *model.User
	env.members.joinFn = func(_ context.Context, principal *model.User, id int64) (*membership.JoinResult, error) {
		joined = principal
		return &membership.JoinResult{Membership: &model.Membership{
			CommunityID: id,
			UserID:      principal.ID,
			Role:        model.MemberRoleMember,
			Status:      model.MemberStatusApproved,
		}}, nil
	}

	login := env.do(jsonRequest(http.MethodPost, "/auth/login", `{"email":"owner@example.com","password":"password123"}`), nil)
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d: %s", login.Code, http.StatusOK, login.Body.String())
	}
	cookie := findCookie(login.Result(), middleware.AuthCookieName)
	if cookie == nil {
		t.Fatal("login did not set auth cookie")
	}

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/communities/3/join", nil), cookie)
	if w.Code != http.StatusCreated {
		t.Fatalf("join status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if joined == nil || joined.ID != 1 {
		t.Errorf("join principal = %+v, want user 1", joined)
	}
}

func TestRouter_CrossSiteFormPostRejected(t *testing.T) {
	env := newRouterEnv(t)
	called := false
	env.members.joinFn = func(_ context.Context, principal *model.User, id int64) (*membership.JoinResult, error) {
		called = true
		return &membership.JoinResult{Membership: &model.Membership{CommunityID: id, UserID: principal.ID}}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/communities/3/join", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://evil.example")
	w := env.do(req, env.cookieFor(t, 1))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusForbidden, w.Body.String())
	}
	if called {
		t.Error("join should not run for a cross-site request")
	}
	if code := errorCode(t, w); code != model.ErrCodeCrossSiteRequest {
		t.Errorf("code = %q, want %q", code, model.ErrCodeCrossSiteRequest)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/communities/3/join", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = env.do(req, env.cookieFor(t, 1))
	if w.Code != http.StatusCreated {
		t.Errorf("allowed origin status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if !called {
		t.Error("join should run for an allowed origin")
	}
}

func TestRouter_TamperedCookieIsAnonymous(t *testing.T) {
	env := newRouterEnv(t)
	cookie := env.cookieFor(t, 1)
	cookie.Value += "x"

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/communities/3/join", nil), cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_AdminRequiresSuperadmin(t *testing.T) {
	env := newRouterEnv(t)
	body := `{"role":"admin"}`

	w := env.do(jsonRequest(http.MethodPatch, "/api/admin/users/5/role", body), env.cookieFor(t, 1))
	if w.Code != http.StatusForbidden {
		t.Errorf("user status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = env.do(jsonRequest(http.MethodPatch, "/api/admin/users/5/role", body), env.cookieFor(t, 2))
	if w.Code != http.StatusOK {
		t.Errorf("superadmin status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_CORSPreflightAndRequestID(t *testing.T) {
	env := newRouterEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/communities", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := env.do(req, nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected X-Request-ID on response")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on response")
	}
}
