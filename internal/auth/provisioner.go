package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yusuke/picpool/internal/idp"
	"github.com/yusuke/picpool/internal/model"
	"github.com/yusuke/picpool/internal/repository"
)

// AdminUserFetcher は管理者権限でのユーザーメタデータ取得に必要なインターフェース。
// idp.Clientの部分集合として定義する。
type AdminUserFetcher interface {
	AdminGetUser(ctx context.Context, userID string) (*idp.User, error)
}

// Provisioner は特定済みユーザーIDに対するプロフィール行の存在を保証する。
// 初回接触時にIdentity Providerのメタデータからプロフィールを遅延作成し、
// 並行作成のレースはDBの一意制約で解決する。
type Provisioner struct {
	profiles repository.ProfileRepository
	idp      AdminUserFetcher
	logger   *slog.Logger
}

// NewProvisioner はProvisionerを生成する。
func NewProvisioner(profiles repository.ProfileRepository, idpClient AdminUserFetcher, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		profiles: profiles,
		idp:      idpClient,
		logger:   logger,
	}
}

// Ensure はuserIDのプロフィール行が存在することを保証し、その行を返す。
//  1. 既存行があれば即座に返す（冪等な高速パス）。
//  2. なければIdentity Providerから表示名・アバターの初期値を取得する
//     （取得失敗は許容し、空の初期値で続行する）。
//  3. 行を作成する。一意制約違反は並行リクエストが先に作成した正常な
//     レースとして扱い、エラーにしない。
//  4. 再読み込みして返す。作成試行後も行が読めない場合のみ失敗とする。
func (p *Provisioner) Ensure(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	existing, err := p.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	// 初回接触: Identity Providerからプロフィール初期値を取得
	var displayName, avatarURL string
	if user, err := p.idp.AdminGetUser(ctx, userID); err != nil {
		p.logger.Warn("ユーザーメタデータの取得に失敗しました。空の初期値で続行します",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	} else {
		displayName = user.DisplayName()
		avatarURL = user.AvatarURL()
	}

	now := time.Now()
	profile := &model.Profile{
		ID:          userID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := p.profiles.Create(ctx, profile); err != nil {
		if !errors.Is(err, repository.ErrDuplicateProfile) {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
		// 並行リクエストが先に作成した。既存行を読み直す。
		p.logger.Info("プロフィールは並行リクエストにより作成済みでした",
			slog.String("user_id", userID),
		)
	} else {
		p.logger.Info("プロフィールを作成しました",
			slog.String("user_id", userID),
			slog.String("display_name", displayName),
		)
	}

	created, err := p.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read profile: %w", err)
	}
	if created == nil {
		return nil, model.NewProfileNotFoundError()
	}

	return created, nil
}
