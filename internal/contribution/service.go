package contribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yusuke/picpool/internal/auth"
	"github.com/yusuke/picpool/internal/model"
	"github.com/yusuke/picpool/internal/repository"
)

// パイプラインステージ名。メトリクスのラベルに使用する。
const (
	StageValidate = "validate"
	StageAuth     = "auth"
	StageFetch    = "fetch"
	StageStore    = "store"
	StageEmbed    = "embed"
	StagePersist  = "persist"
)

// IdentityResolver はユーザー特定に必要なインターフェース。
type IdentityResolver interface {
	Resolve(ctx context.Context, candidates *auth.Candidates) (string, bool)
}

// ProfileProvisioner はプロフィール保証に必要なインターフェース。
type ProfileProvisioner interface {
	Ensure(ctx context.Context, userID string) (*model.Profile, error)
}

// ImageFetcher は画像取得ステージのインターフェース。
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) ([]byte, error)
}

// ObjectStorage はオブジェクト保存ステージのインターフェース。
// storage.Clientの部分集合として定義する。
type ObjectStorage interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) error
	PublicURL(objectName string) string
	Remove(ctx context.Context, objectName string) error
}

// Embedder は埋め込み生成ステージのインターフェース。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PromptSanitizer はプロンプトのサニタイズに必要なインターフェース。
type PromptSanitizer interface {
	Sanitize(prompt string) string
}

// MetricsRecorder はパイプラインのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordContributionSuccess()
	RecordContributionFailure(stage string)
	RecordStageLatency(stage string, duration time.Duration)
}

// Input は寄稿リクエスト1件の入力を表す。
// ヘッダーは生のまま受け取り、資格情報の抽出はサービス側で行う。
type Input struct {
	ImageURL            string
	Prompt              string
	CookieHeader        string
	AuthorizationHeader string
}

// Result は寄稿パイプライン成功時の結果を表す。
// 公開URLのみを外部に返し、埋め込みベクトルや内部ファイル名は含めない。
type Result struct {
	ImageURL string
}

// Service は寄稿取り込みパイプラインのオーケストレーター。
// 各ステージは独立した失敗ドメインを持ち、厳密に逐次実行される。
type Service struct {
	resolver      IdentityResolver
	provisioner   ProfileProvisioner
	fetcher       ImageFetcher
	storage       ObjectStorage
	embedder      Embedder
	contributions repository.ContributionRepository
	sanitizer     PromptSanitizer
	metrics       MetricsRecorder
	logger        *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	resolver IdentityResolver,
	provisioner ProfileProvisioner,
	fetcher ImageFetcher,
	storage ObjectStorage,
	embedder Embedder,
	contributions repository.ContributionRepository,
	sanitizer PromptSanitizer,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		resolver:      resolver,
		provisioner:   provisioner,
		fetcher:       fetcher,
		storage:       storage,
		embedder:      embedder,
		contributions: contributions,
		sanitizer:     sanitizer,
		metrics:       metrics,
		logger:        logger,
	}
}

// Contribute は寄稿リクエスト1件を処理する。
//
// ステージ順序: 検証 → ユーザー特定 → プロフィール保証 →
// フェッチ → 保存 → 埋め込み → 永続化。
// 外部呼び出しを伴うステージの前に検証と認証を必ず完了させる。
// 認証必須ポリシー: ユーザーを特定できない寄稿は拒否する。
func (s *Service) Contribute(ctx context.Context, input Input) (*Result, error) {
	// 1. 検証。外部呼び出しより前に必ず実施する。
	prompt := s.sanitizer.Sanitize(input.Prompt)
	if input.ImageURL == "" || prompt == "" {
		s.metrics.RecordContributionFailure(StageValidate)
		return nil, model.NewValidationError()
	}

	// 2. ユーザー特定とプロフィール保証
	credential := auth.ExtractCredential(input.CookieHeader, s.logger)
	bearer := auth.ExtractBearer(input.AuthorizationHeader)
	candidates := auth.NewCandidates(bearer, credential)

	userID, ok := s.resolver.Resolve(ctx, candidates)
	if !ok {
		s.metrics.RecordContributionFailure(StageAuth)
		return nil, model.NewUnauthorizedError()
	}

	profile, err := s.provisioner.Ensure(ctx, userID)
	if err != nil {
		s.metrics.RecordContributionFailure(StageAuth)
		s.logger.Error("プロフィールの保証に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		if apiErr, ok := asAPIError(err); ok {
			return nil, apiErr
		}
		return nil, model.NewProfileNotFoundError()
	}

	// 3. 画像フェッチ。ここまでは外部への書き込みは発生していない。
	fetchStart := time.Now()
	imageData, err := s.fetcher.Fetch(ctx, input.ImageURL)
	s.metrics.RecordStageLatency(StageFetch, time.Since(fetchStart))
	if err != nil {
		s.metrics.RecordContributionFailure(StageFetch)
		return nil, err
	}

	// 4. オブジェクトストレージへアップロード
	objectName := newObjectName()
	storeStart := time.Now()
	err = s.storage.Upload(ctx, objectName, imageData, "image/png")
	s.metrics.RecordStageLatency(StageStore, time.Since(storeStart))
	if err != nil {
		s.metrics.RecordContributionFailure(StageStore)
		return nil, model.NewStorageFailedError(err.Error())
	}

	// 5. 公開URLの解決
	publicURL := s.storage.PublicURL(objectName)

	// 6. プロンプトの埋め込みベクトル生成
	embedStart := time.Now()
	vector, err := s.embedder.Embed(ctx, prompt)
	s.metrics.RecordStageLatency(StageEmbed, time.Since(embedStart))
	if err != nil {
		s.metrics.RecordContributionFailure(StageEmbed)
		s.compensateUpload(ctx, objectName)
		return nil, model.NewEmbeddingFailedError(err.Error())
	}

	// 7. 寄稿レコードの永続化
	record := &model.Contribution{
		ID:        uuid.New().String(),
		ProfileID: &profile.ID,
		Prompt:    prompt,
		ImageURL:  publicURL,
		Embedding: vector,
		CreatedAt: time.Now(),
	}

	persistStart := time.Now()
	err = s.contributions.Create(ctx, record)
	s.metrics.RecordStageLatency(StagePersist, time.Since(persistStart))
	if err != nil {
		s.metrics.RecordContributionFailure(StagePersist)
		s.compensateUpload(ctx, objectName)
		return nil, model.NewPersistenceFailedError(err.Error())
	}

	s.metrics.RecordContributionSuccess()
	s.logger.Info("寄稿を取り込みました",
		slog.String("contribution_id", record.ID),
		slog.String("profile_id", profile.ID),
		slog.String("image_url", publicURL),
	)

	return &Result{ImageURL: publicURL}, nil
}

// compensateUpload は後続ステージ失敗時にアップロード済みオブジェクトを
// ベストエフォートで削除する。削除失敗はログに残すのみで、
// 呼び出し元には元のステージエラーが返る。
func (s *Service) compensateUpload(ctx context.Context, objectName string) {
	if err := s.storage.Remove(ctx, objectName); err != nil {
		s.logger.Error("アップロード済みオブジェクトの補償削除に失敗しました",
			slog.String("object", objectName),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("アップロード済みオブジェクトを補償削除しました",
		slog.String("object", objectName),
	)
}

// newObjectName は衝突耐性のあるオブジェクト名を生成する。
// タイムスタンプ（ミリ秒）とUUID由来のランダムサフィックス、固定拡張子。
func newObjectName() string {
	suffix, _, _ := strings.Cut(uuid.New().String(), "-")
	return fmt.Sprintf("%d_%s.png", time.Now().UnixMilli(), suffix)
}

// asAPIError はエラーチェーンからAPIErrorを取り出す。
func asAPIError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
