// Package contribution は寄稿取り込みパイプラインを提供する。
// リクエスト検証、ユーザー特定、プロフィール保証、
// フェッチ → 保存 → 埋め込み → 永続化 の各ステージを順に実行する。
package contribution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yusuke/picpool/internal/model"
	"github.com/yusuke/picpool/internal/security"
)

// Fetcher は寄稿者が指定した画像URLのフェッチを行う。
// SSRF検証済みのクライアントで取得し、レスポンスサイズに上限を課す。
type Fetcher struct {
	ssrfGuard security.SSRFGuardService
	logger    *slog.Logger
	timeout   time.Duration
	maxSize   int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard security.SSRFGuardService, logger *slog.Logger, timeout time.Duration, maxSize int64) *Fetcher {
	return &Fetcher{
		ssrfGuard: ssrfGuard,
		logger:    logger,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// Fetch は画像URLからバイト列を取得する。
// SSRF検証に失敗した場合・非成功ステータスの場合・サイズ上限を超えた場合は
// エラーを返す。この時点では外部への書き込みは一切発生していない。
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(imageURL); err != nil {
		f.logger.Warn("画像URLのSSRF検証に失敗しました",
			slog.String("image_url", imageURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSSRFBlockedError()
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Picpool/1.0 Image Catalog")

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("画像のダウンロードに失敗しました",
			slog.String("image_url", imageURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewImageFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("画像URLが非成功ステータスを返しました",
			slog.String("image_url", imageURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewImageFetchFailedError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	// サイズ上限+1まで読み、超過を検出する
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, model.NewImageFetchFailedError(err.Error())
	}
	if int64(len(data)) > f.maxSize {
		return nil, model.NewImageFetchFailedError(fmt.Sprintf("image exceeds size limit of %d bytes", f.maxSize))
	}
	if len(data) == 0 {
		return nil, model.NewImageFetchFailedError("empty response body")
	}

	return data, nil
}
