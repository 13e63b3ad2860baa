// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, pipeline, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeProfileNotFound   = "PROFILE_NOT_FOUND"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeSSRFBlocked       = "SSRF_BLOCKED"
	ErrCodeImageFetchFailed  = "IMAGE_FETCH_FAILED"
	ErrCodeStorageFailed     = "STORAGE_UPLOAD_FAILED"
	ErrCodeEmbeddingFailed   = "EMBEDDING_FAILED"
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
)

// NewValidationError は必須フィールド欠落エラーを生成する。
func NewValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "imageUrl and prompt are required",
		Category: "validation",
		Action:   "imageUrlとpromptの両方を指定してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
// 有効なセッション資格情報からユーザーを特定できなかった場合に使用する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProfileNotFoundError はプロフィールの存在を確認できなかった場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidURLError は無効な画像URLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("invalid image URL: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まる画像URLを指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "access to the requested image URL is blocked",
		Category: "validation",
		Action:   "公開されている画像URLを指定してください。プライベートネットワークへのアクセスは許可されていません。",
	}
}

// NewImageFetchFailedError は画像取得失敗エラーを生成する。
func NewImageFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImageFetchFailed,
		Message:  fmt.Sprintf("failed to download image: %s", reason),
		Category: "pipeline",
		Action:   "画像URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewStorageFailedError はストレージアップロード失敗エラーを生成する。
func NewStorageFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailed,
		Message:  fmt.Sprintf("failed to upload image to storage: %s", reason),
		Category: "pipeline",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEmbeddingFailedError は埋め込みベクトル生成失敗エラーを生成する。
func NewEmbeddingFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeEmbeddingFailed,
		Message:  fmt.Sprintf("failed to create embedding: %s", reason),
		Category: "pipeline",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPersistenceFailedError はデータベース保存失敗エラーを生成する。
func NewPersistenceFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailed,
		Message:  fmt.Sprintf("failed to save contribution: %s", reason),
		Category: "pipeline",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
