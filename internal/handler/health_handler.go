package handler

import (
	"log/slog"
	"net/http"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// sql.DBのPingで満たされる。
type HealthChecker interface {
	Ping() error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health はデータベース接続を確認し、サービスの稼働状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.Ping(); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
