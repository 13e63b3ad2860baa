// Package auth はセッション資格情報の抽出、ユーザー特定、
// プロフィールのプロビジョニングを提供する。
package auth

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
)

const (
	// sessionCookiePrefix / sessionCookieSuffix はIdentity Providerが
	// 発行するセッションCookie名のパターン（例: sb-xxxx-auth-token）。
	sessionCookiePrefix = "sb-"
	sessionCookieSuffix = "-auth-token"

	// base64Tag はCookie値がbase64エンコードされていることを示すタグ接頭辞。
	base64Tag = "base64-"

	// bearerPrefix はAuthorizationヘッダーのbearer接頭辞。
	bearerPrefix = "bearer "
)

// SessionUser はセッション資格情報に埋め込まれたユーザー参照を表す。
type SessionUser struct {
	ID string `json:"id"`
}

// SessionCredential はCookieから復元した構造化セッション資格情報を表す。
// フラットな形と、旧クライアントが使うcurrentSessionネストの両方に対応する。
// パース後はイミュータブルとして扱い、寿命は1リクエスト。
type SessionCredential struct {
	AccessToken    string             `json:"access_token"`
	RefreshToken   string             `json:"refresh_token"`
	ExpiresAt      int64              `json:"expires_at"`
	User           *SessionUser       `json:"user"`
	CurrentSession *SessionCredential `json:"currentSession"`
}

// Token はこの資格情報から得られる最良のアクセストークンを返す。
func (c *SessionCredential) Token() string {
	if c == nil {
		return ""
	}
	if c.AccessToken != "" {
		return c.AccessToken
	}
	if c.CurrentSession != nil {
		return c.CurrentSession.AccessToken
	}
	return ""
}

// UserID はこの資格情報に直接埋め込まれたユーザーIDを返す。
func (c *SessionCredential) UserID() string {
	if c == nil {
		return ""
	}
	if c.User != nil && c.User.ID != "" {
		return c.User.ID
	}
	if c.CurrentSession != nil && c.CurrentSession.User != nil {
		return c.CurrentSession.User.ID
	}
	return ""
}

// ExtractCredential はCookieヘッダー文字列からセッション資格情報を抽出する。
// セッションCookie名パターンに一致するエントリの値に対して、
// URLデコード（ベストエフォート）→ base64タグのデコード → JSONパース を試みる。
// どのサブステップの失敗もログに残して「未検出」として扱い、リクエストを失敗させない。
func ExtractCredential(cookieHeader string, logger *slog.Logger) *SessionCredential {
	if cookieHeader == "" {
		return nil
	}

	for _, part := range strings.Split(cookieHeader, ";") {
		key, rawValue, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if !strings.HasPrefix(key, sessionCookiePrefix) || !strings.HasSuffix(key, sessionCookieSuffix) {
			continue
		}

		value := strings.TrimSpace(rawValue)
		if value == "" {
			continue
		}

		// URLエンコードされている場合はデコード（失敗しても元の値で続行）
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}

		// base64タグ付きの場合はデコード
		if tagged, ok := strings.CutPrefix(value, base64Tag); ok {
			decoded, err := decodeBase64(tagged)
			if err != nil {
				logger.Warn("セッションCookieのbase64デコードに失敗しました",
					slog.String("cookie", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			value = decoded
		}

		cred := &SessionCredential{}
		if err := json.Unmarshal([]byte(value), cred); err != nil {
			logger.Warn("セッションCookieのパースに失敗しました",
				slog.String("cookie", key),
				slog.String("error", err.Error()),
			)
			continue
		}

		return cred
	}

	return nil
}

// ExtractBearer はAuthorizationヘッダーからbearerトークンを抽出する。
// 接頭辞の大文字小文字は区別しない。見つからない場合は空文字列を返す。
func ExtractBearer(authorizationHeader string) string {
	header := strings.TrimSpace(authorizationHeader)
	if len(header) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// decodeBase64 はbase64文字列をデコードする。
// Identity ProviderはURL-safe・パディングなしでエンコードするが、
// 旧形式の標準base64も受理する。
func decodeBase64(s string) (string, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return string(b), nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
