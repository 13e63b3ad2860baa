// Package storage はオブジェクトストレージとの連携機能を提供する。
// 画像バイト列のアップロード、公開URLの解決、補償削除を含む。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Client はストレージサービスのREST APIクライアント。
// 1つのバケットに対する操作を提供する。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	baseURL        string // テスト用にエンドポイントを差し替え可能
	bucket         string
	serviceRoleKey string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, bucket, serviceRoleKey string) *Client {
	return &Client{
		httpClient:     httpClient,
		logger:         logger,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		bucket:         bucket,
		serviceRoleKey: serviceRoleKey,
	}
}

// Upload はオブジェクトをバケットにアップロードする。
// 同名オブジェクトの上書きは許可しない（衝突耐性のある名前生成が前提）。
func (c *Client) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	if objectName == "" {
		return fmt.Errorf("object name is required")
	}

	endpoint := c.objectEndpoint(objectName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "3600")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ストレージへのアップロードに失敗しました",
			slog.String("object", objectName),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("ストレージがエラーステータスを返しました",
			slog.String("object", objectName),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("storage returned status %d", resp.StatusCode)
	}

	return nil
}

// PublicURL はオブジェクトの公開URLを返す。
// ネットワーク呼び出しは行わず、バケットの公開パス規約から組み立てる。
func (c *Client) PublicURL(objectName string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		c.baseURL, url.PathEscape(c.bucket), url.PathEscape(objectName))
}

// Remove はオブジェクトをバケットから削除する。
// 後続ステージ失敗時の補償処理として使用する。
func (c *Client) Remove(ctx context.Context, objectName string) error {
	endpoint := c.objectEndpoint(objectName)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("storage returned status %d", resp.StatusCode)
	}

	return nil
}

// objectEndpoint はオブジェクト操作用のエンドポイントURLを組み立てる。
func (c *Client) objectEndpoint(objectName string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s",
		c.baseURL, url.PathEscape(c.bucket), url.PathEscape(objectName))
}
