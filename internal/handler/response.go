package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/playnet/internal/middleware"
	"github.com/hitoshi/playnet/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIError以外はログにのみ詳細を残し、汎用の500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}

// decodeJSON はリクエストボディをデコードする。失敗時はエラーレスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("invalid request body"))
		return false
	}
	return true
}

// decodeAndValidate はリクエストボディをデコードし、Validateを実行する。
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req validatable) bool {
	if !decodeJSON(w, r, req) {
		return false
	}
	if err := req.Validate(); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError(err.Error()))
		return false
	}
	return true
}

// pathID はURLパラメータを正の整数IDとして解析する。
// 不正な値の場合はエラーレスポンスを書き込みfalseを返す。
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, model.NewInvalidIDError(name))
		return 0, false
	}
	return id, true
}

// okResponse は処理結果のみを返すレスポンス。
type okResponse struct {
	OK bool `json:"ok"`
}
