package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// DBPinger はデータベースの疎通確認を抽象化するインターフェース。
type DBPinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc は関数をDBPingerとして扱うアダプタ。
type PingerFunc func(ctx context.Context) error

// Ping はf(ctx)を呼び出す。
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler は死活監視用のHTTPハンドラー。
type HealthHandler struct {
	db DBPinger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db DBPinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health はプロセスの稼働状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthDB はデータベースの疎通状態を返す。接続できない場合は503。
// GET /health/db
func (h *HealthHandler) HealthDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "db": "unconfigured"})
		return
	}
	if err := h.db.Ping(r.Context()); err != nil {
		slog.Warn("database health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "db": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "ok"})
}
