package repository

import (
	"context"
	"database/sql"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/yusuke/picpool/internal/model"
)

// PostgresContributionRepo はPostgreSQLを使用した寄稿リポジトリ。
// 埋め込みベクトルはpgvectorのvector型として保存する。
type PostgresContributionRepo struct {
	db *sql.DB
}

// NewPostgresContributionRepo はPostgresContributionRepoを生成する。
func NewPostgresContributionRepo(db *sql.DB) *PostgresContributionRepo {
	return &PostgresContributionRepo{db: db}
}

// Create は寄稿レコードを1件作成する。
// []float32の埋め込みをvector型表現に変換するのはこのメソッドの責務で、
// 呼び出し元はネイティブ表現を意識しない。
func (r *PostgresContributionRepo) Create(ctx context.Context, contribution *model.Contribution) error {
	var profileID sql.NullString
	if contribution.ProfileID != nil {
		profileID = sql.NullString{String: *contribution.ProfileID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contributions (id, profile_id, prompt, image_url, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		contribution.ID,
		profileID,
		contribution.Prompt,
		contribution.ImageURL,
		pgvector.NewVector(contribution.Embedding),
		contribution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contribution: %w", err)
	}

	return nil
}

// compile-time interface check
var _ ContributionRepository = (*PostgresContributionRepo)(nil)
