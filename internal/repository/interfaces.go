// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/yusuke/picpool/internal/model"
)

// ErrDuplicateProfile はプロフィール作成時に主キー制約違反が発生したことを表す。
// 同一ユーザーの並行プロビジョニングで起こる正常なレースであり、
// 呼び出し元は既存行の再読み込みで回復する。
var ErrDuplicateProfile = errors.New("profile already exists")

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Create はプロフィールを作成する。
	// 主キー制約違反の場合はErrDuplicateProfileを返す。
	Create(ctx context.Context, profile *model.Profile) error
}

// ContributionRepository は寄稿データの永続化インターフェース。
// ベクトル列のネイティブ表現はこのインターフェースの背後に隠蔽する。
type ContributionRepository interface {
	// Create は寄稿レコードを1件作成する。
	Create(ctx context.Context, contribution *model.Contribution) error
}
