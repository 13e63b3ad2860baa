package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yusuke/picpool/internal/idp"
)

// Candidates は1リクエストから抽出された資格情報の候補を表す。
// AccessTokenはbearerヘッダー優先で選ばれた最良のトークン。
type Candidates struct {
	AccessToken string
	Credential  *SessionCredential
}

// NewCandidates はbearerトークンとCookie資格情報から候補セットを構築する。
// bearerトークンはCookie由来のトークンより優先される。
func NewCandidates(bearerToken string, credential *SessionCredential) *Candidates {
	token := bearerToken
	if token == "" {
		token = credential.Token()
	}
	return &Candidates{
		AccessToken: token,
		Credential:  credential,
	}
}

// Strategy はユーザー特定戦略のインターフェース。
// 候補から特定できない場合は空文字列を返す。エラーは「この戦略では
// 特定できなかった」ことを意味し、呼び出し元は次の戦略に進む。
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, candidates *Candidates) (string, error)
}

// UserIntrospector はトークンイントロスペクションに必要なインターフェース。
// idp.Clientの部分集合として定義する。
type UserIntrospector interface {
	GetUser(ctx context.Context, accessToken string) (*idp.User, error)
}

// Resolver は戦略チェーンを固定優先順位で順に評価し、ユーザーIDを特定する。
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver は標準の戦略チェーンを持つResolverを生成する。
// 優先順位: イントロスペクション → 未検証JWTデコード → Cookie埋め込みID。
func NewResolver(introspector UserIntrospector, logger *slog.Logger) *Resolver {
	return &Resolver{
		strategies: []Strategy{
			&introspectionStrategy{idp: introspector},
			&unverifiedJWTStrategy{},
			&cookieSubjectStrategy{},
		},
		logger: logger,
	}
}

// NewResolverWithStrategies は任意の戦略チェーンを持つResolverを生成する。テスト用。
func NewResolverWithStrategies(logger *slog.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve は戦略を順に評価し、最初に得られたユーザーIDを返す。
// 各戦略のエラーはログに残すのみで、上流のエラーを呼び出し元へ伝播させない。
// どの戦略でも特定できなかった場合は空文字列とfalseを返す。
func (r *Resolver) Resolve(ctx context.Context, candidates *Candidates) (string, bool) {
	for _, strategy := range r.strategies {
		userID, err := strategy.Resolve(ctx, candidates)
		if err != nil {
			r.logger.Warn("ユーザー特定戦略が失敗しました",
				slog.String("strategy", strategy.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if userID != "" {
			r.logger.Debug("ユーザーを特定しました",
				slog.String("strategy", strategy.Name()),
				slog.String("user_id", userID),
			)
			return userID, true
		}
	}
	return "", false
}

// introspectionStrategy はアクセストークンをIdentity Providerに照会して
// ユーザーIDを得る戦略。最優先かつ唯一トークンの有効性を検証する戦略。
type introspectionStrategy struct {
	idp UserIntrospector
}

func (s *introspectionStrategy) Name() string { return "introspection" }

func (s *introspectionStrategy) Resolve(ctx context.Context, candidates *Candidates) (string, error) {
	if candidates.AccessToken == "" {
		return "", nil
	}
	user, err := s.idp.GetUser(ctx, candidates.AccessToken)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// unverifiedJWTStrategy はトークンのペイロードを署名検証なしでデコードし、
// subクレームを読む戦略。イントロスペクション不達時のフォールバック。
type unverifiedJWTStrategy struct{}

func (s *unverifiedJWTStrategy) Name() string { return "unverified_jwt" }

func (s *unverifiedJWTStrategy) Resolve(_ context.Context, candidates *Candidates) (string, error) {
	if candidates.AccessToken == "" {
		return "", nil
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(candidates.AccessToken, claims); err != nil {
		return "", fmt.Errorf("failed to decode token payload: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("token has no sub claim: %w", err)
	}
	return sub, nil
}

// cookieSubjectStrategy はCookie資格情報に直接埋め込まれたユーザーIDを
// 読む戦略。最後のフォールバック。
type cookieSubjectStrategy struct{}

func (s *cookieSubjectStrategy) Name() string { return "cookie_subject" }

func (s *cookieSubjectStrategy) Resolve(_ context.Context, candidates *Candidates) (string, error) {
	return candidates.Credential.UserID(), nil
}
