package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yusuke/picpool/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス
	HTTPStatusRecorder middleware.HTTPStatusRecorder
	MetricsHandler     http.Handler

	// ヘルスチェック
	HealthChecker HealthChecker

	// 寄稿
	ContributionService ContributionServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → Logging → RateLimit(General)
//
// 寄稿エンドポイントには寄稿専用レート制限を追加する。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.HTTPStatusRecorder))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	contributionHandler := NewContributionHandler(deps.ContributionService)

	// --- 運用エンドポイント（レート制限なし） ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- APIエンドポイント ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/contributions - 寄稿取り込み（寄稿専用レート制限を追加）
		r.With(deps.RateLimiter.ContributeMiddleware()).Post("/api/contributions", contributionHandler.Contribute)
	})

	return r
}
