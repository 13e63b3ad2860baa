// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yusuke/picpool/internal/contribution"
	"github.com/yusuke/picpool/internal/model"
)

// ContributionServiceInterface は寄稿ハンドラーが必要とするサービスインターフェース。
type ContributionServiceInterface interface {
	// Contribute は寄稿リクエスト1件を処理し、公開URLを返す。
	Contribute(ctx context.Context, input contribution.Input) (*contribution.Result, error)
}

// ContributionHandler は寄稿取り込みのHTTPハンドラー。
type ContributionHandler struct {
	service ContributionServiceInterface
}

// NewContributionHandler はContributionHandlerを生成する。
func NewContributionHandler(service ContributionServiceInterface) *ContributionHandler {
	return &ContributionHandler{
		service: service,
	}
}

// contributeRequest は寄稿リクエストのJSONボディ。
type contributeRequest struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

// contributeResponse は寄稿成功時のレスポンスボディ。
// 公開URLのみを返し、埋め込みベクトルや内部ファイル名は含めない。
type contributeResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl"`
}

// errorResponse はエラーレスポンスボディ。
type errorResponse struct {
	Error string `json:"error"`
}

// Contribute は寄稿リクエストを処理する。
// POST /api/contributions
func (h *ContributionHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	var req contributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, model.NewValidationError().Message)
		return
	}

	result, err := h.service.Contribute(r.Context(), contribution.Input{
		ImageURL:            req.ImageURL,
		Prompt:              req.Prompt,
		CookieHeader:        r.Header.Get("Cookie"),
		AuthorizationHeader: r.Header.Get("Authorization"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, contributeResponse{
		Success:  true,
		ImageURL: result.ImageURL,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr.Message)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidURL, model.ErrCodeSSRFBlocked:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	default:
		// フェッチ・保存・埋め込み・永続化の失敗はすべて500
		return http.StatusInternalServerError
	}
}

// writeErrorResponse はエラーレスポンスを書き込む。
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, errorResponse{Error: message})
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
