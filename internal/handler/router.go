package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/castmigrate/internal/metrics"
	"github.com/hitoshi/castmigrate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger    *slog.Logger
	Stats     StatsProvider
	StartedAt time.Time
	// Gatherer がnilの場合は/metricsを公開しない。
	Gatherer prometheus.Gatherer
}

// NewRouter は進捗サーバーのルーティングを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	progress := NewProgressHandler(deps.Stats, deps.StartedAt)

	r.Get("/health", Health)
	r.Get("/progress", progress.Progress)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "no such route")
	})

	return r
}
