package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/playnet/internal/metrics"
	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Tokens  middleware.TokenVerifier
	Users   middleware.UserFinder
	CORS    middleware.CORSConfig
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector
	// MetricsHandler がnilの場合 /metrics は公開しない。
	MetricsHandler http.Handler

	// 認証
	AuthService    AuthServiceInterface
	ProfileService ProfileServiceInterface
	AuthConfig     AuthHandlerConfig

	// コミュニティ
	CommunityService  CommunityServiceInterface
	MembershipService MembershipServiceInterface

	// 管理
	AdminService UserAdminServiceInterface

	// 死活監視
	DB DBPinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → CSRF → Session → Logging
//
// CSRFはCORSと同じ許可リストで状態変更リクエストの送信元オリジンを検証する。
// セッション解決は拒否しないため全ルートに適用し、認証必須のルートのみRequireAuthを重ねる。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.AuthConfig.Production}))
	r.Use(middleware.NewCORSMiddleware(deps.CORS))
	r.Use(middleware.NewCSRFMiddleware(deps.CORS))
	r.Use(middleware.NewSessionMiddleware(deps.Tokens, deps.Users))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService, deps.AuthConfig)
	communityHandler := NewCommunityHandler(deps.CommunityService)
	membershipHandler := NewMembershipHandler(deps.MembershipService)
	adminHandler := NewAdminHandler(deps.AdminService)
	healthHandler := NewHealthHandler(deps.DB)

	// --- 死活監視 ---
	r.Get("/health", healthHandler.Health)
	r.Get("/health/db", healthHandler.HealthDB)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証 ---
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Post("/forgot", authHandler.Forgot)
		r.Post("/reset", authHandler.Reset)
		r.Get("/me", authHandler.Me)
		r.With(middleware.RequireAuth).Patch("/me", authHandler.UpdateMe)
		r.Get("/google", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
	})

	// --- コミュニティ ---
	r.Route("/api/communities", func(r chi.Router) {
		// 匿名でも閲覧できるルート
		r.Get("/", communityHandler.List)
		r.Get("/{id}", communityHandler.Get)
		r.Get("/{id}/members", membershipHandler.ListMembers)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Post("/", communityHandler.Create)
			r.Patch("/{id}", communityHandler.Update)

			r.Get("/{id}/messages", communityHandler.Messages)
			r.Post("/{id}/messages", communityHandler.PostMessage)

			r.Post("/{id}/join", membershipHandler.Join)
			r.Delete("/{id}/join", membershipHandler.Leave)

			r.Get("/{id}/invites", membershipHandler.ListInvites)
			r.Post("/{id}/invites", membershipHandler.Invite)

			r.Get("/{id}/requests", membershipHandler.ListRequests)
			r.Post("/{id}/requests/{userId}/approve", membershipHandler.Approve)
			r.Post("/{id}/requests/{userId}/reject", membershipHandler.Reject)

			r.Put("/{id}/members/{userId}/role", membershipHandler.ChangeRole)
			r.Delete("/{id}/members/{userId}", membershipHandler.Kick)
			r.Post("/{id}/members/{userId}/ban", membershipHandler.Ban)
		})
	})

	// --- 受信した招待 ---
	r.Route("/api/invites", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", membershipHandler.ListMyInvites)
		r.Post("/{id}/accept", membershipHandler.AcceptInvite)
		r.Post("/{id}/decline", membershipHandler.DeclineInvite)
	})

	// --- 管理 ---
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(model.GlobalRoleSuperadmin))
		r.Patch("/users/{id}/role", adminHandler.SetUserRole)
	})

	return r
}
