// Package idp は外部Identity Providerとの連携機能を提供する。
// セッショントークンのイントロスペクションと、管理者権限での
// ユーザーメタデータ取得を含む。
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// User はIdentity Providerが保持するユーザー情報を表す。
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

// Client はIdentity ProviderのREST APIクライアント。
// トークン検証（/auth/v1/user）と管理者ルックアップ（/auth/v1/admin/users/{id}）を提供する。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	baseURL        string // テスト用にエンドポイントを差し替え可能
	anonKey        string
	serviceRoleKey string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, anonKey, serviceRoleKey string) *Client {
	return &Client{
		httpClient:     httpClient,
		logger:         logger,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		anonKey:        anonKey,
		serviceRoleKey: serviceRoleKey,
	}
}

// GetUser はアクセストークンをIdentity Providerに照会し、
// トークンが指すユーザーを返す。トークンが無効・期限切れの場合はエラーを返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	return c.fetchUser(ctx, c.baseURL+"/auth/v1/user", "Bearer "+accessToken)
}

// AdminGetUser はサービスロールキーを使用してユーザーIDから
// ユーザーメタデータを取得する。プロフィール初期値の取得にのみ使用する。
func (c *Client) AdminGetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	endpoint := c.baseURL + "/auth/v1/admin/users/" + url.PathEscape(userID)
	return c.fetchUser(ctx, endpoint, "Bearer "+c.serviceRoleKey)
}

// fetchUser は指定エンドポイントからユーザー情報を取得する共通処理。
func (c *Client) fetchUser(ctx context.Context, endpoint, authorization string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Identity Providerの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Identity Providerがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("レスポンスのパースに失敗しました: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("identity provider response has no user ID")
	}

	return &user, nil
}

// DisplayName はユーザーメタデータから表示名の最良候補を導出する。
// 優先順位: display_name → full_name → name → user_name → メールのローカル部。
// どれも得られない場合は空文字列を返す。
func (u *User) DisplayName() string {
	for _, key := range []string{"display_name", "full_name", "name", "user_name"} {
		if v, ok := u.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	if u.Email != "" {
		if at := strings.Index(u.Email, "@"); at > 0 {
			return u.Email[:at]
		}
	}
	return ""
}

// AvatarURL はユーザーメタデータからアバター画像URLを取り出す。
func (u *User) AvatarURL() string {
	for _, key := range []string{"avatar_url", "picture"} {
		if v, ok := u.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
