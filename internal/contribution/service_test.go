package contribution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/yusuke/picpool/internal/auth"
	"github.com/yusuke/picpool/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- モック定義 ---

type mockResolver struct {
	resolveFn func(ctx context.Context, candidates *auth.Candidates) (string, bool)
}

func (m *mockResolver) Resolve(ctx context.Context, candidates *auth.Candidates) (string, bool) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, candidates)
	}
	return "user-1", true
}

type mockProvisioner struct {
	ensureFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProvisioner) Ensure(ctx context.Context, userID string) (*model.Profile, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, userID)
	}
	return &model.Profile{ID: userID}, nil
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, imageURL string) ([]byte, error)
	called  bool
}

func (m *mockFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	m.called = true
	if m.fetchFn != nil {
		return m.fetchFn(ctx, imageURL)
	}
	return []byte("image-bytes"), nil
}

type mockStorage struct {
	uploadFn     func(ctx context.Context, objectName string, data []byte, contentType string) error
	removeFn     func(ctx context.Context, objectName string) error
	uploadedName string
	removedName  string
	uploadCalled bool
	removeCalled bool
}

func (m *mockStorage) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	m.uploadCalled = true
	m.uploadedName = objectName
	if m.uploadFn != nil {
		return m.uploadFn(ctx, objectName, data, contentType)
	}
	return nil
}

func (m *mockStorage) PublicURL(objectName string) string {
	return "https://storage.example.com/images/" + objectName
}

func (m *mockStorage) Remove(ctx context.Context, objectName string) error {
	m.removeCalled = true
	m.removedName = objectName
	if m.removeFn != nil {
		return m.removeFn(ctx, objectName)
	}
	return nil
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type mockContributionRepo struct {
	createFn func(ctx context.Context, contribution *model.Contribution) error
	created  *model.Contribution
}

func (m *mockContributionRepo) Create(ctx context.Context, contribution *model.Contribution) error {
	m.created = contribution
	if m.createFn != nil {
		return m.createFn(ctx, contribution)
	}
	return nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(prompt string) string { return prompt }

// nopMetrics はMetricsRecorderの記録内容を保持するテスト用実装。
type nopMetrics struct {
	successes int
	failures  map[string]int
}

func newNopMetrics() *nopMetrics {
	return &nopMetrics{failures: make(map[string]int)}
}

func (m *nopMetrics) RecordContributionSuccess()               { m.successes++ }
func (m *nopMetrics) RecordContributionFailure(stage string)   { m.failures[stage]++ }
func (m *nopMetrics) RecordStageLatency(string, time.Duration) {}

// testDeps はServiceの全依存をまとめたテスト用構造体。
type testDeps struct {
	resolver    *mockResolver
	provisioner *mockProvisioner
	fetcher     *mockFetcher
	storage     *mockStorage
	embedder    *mockEmbedder
	repo        *mockContributionRepo
	metrics     *nopMetrics
}

func newTestDeps() *testDeps {
	return &testDeps{
		resolver:    &mockResolver{},
		provisioner: &mockProvisioner{},
		fetcher:     &mockFetcher{},
		storage:     &mockStorage{},
		embedder:    &mockEmbedder{},
		repo:        &mockContributionRepo{},
		metrics:     newNopMetrics(),
	}
}

func (d *testDeps) newService() *Service {
	return NewService(
		d.resolver, d.provisioner, d.fetcher,
		d.storage, d.embedder, d.repo,
		passthroughSanitizer{}, d.metrics, testLogger(),
	)
}

func validInput() Input {
	return Input{
		ImageURL:            "https://example.com/image.png",
		Prompt:              "a cat in the rain",
		AuthorizationHeader: "Bearer valid-token",
	}
}

// --- Contribute テスト ---

func TestService_Contribute_Success(t *testing.T) {
	deps := newTestDeps()
	deps.resolver.resolveFn = func(ctx context.Context, candidates *auth.Candidates) (string, bool) {
		if candidates.AccessToken != "valid-token" {
			t.Errorf("AccessToken = %q, want %q", candidates.AccessToken, "valid-token")
		}
		return "user-7", true
	}

	result, err := deps.newService().Contribute(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := deps.repo.created
	if record == nil {
		t.Fatal("expected contribution record to be persisted")
	}
	if record.ProfileID == nil || *record.ProfileID != "user-7" {
		t.Errorf("ProfileID = %v, want user-7", record.ProfileID)
	}
	if record.Prompt != "a cat in the rain" {
		t.Errorf("Prompt = %q, want %q", record.Prompt, "a cat in the rain")
	}
	if len(record.Embedding) != 3 {
		t.Errorf("Embedding length = %d, want 3", len(record.Embedding))
	}
	if record.ImageURL != result.ImageURL {
		t.Errorf("record.ImageURL = %q, result.ImageURL = %q", record.ImageURL, result.ImageURL)
	}
	if record.ID == "" {
		t.Error("expected generated contribution ID")
	}

	if deps.storage.removeCalled {
		t.Error("Remove should not be called on success")
	}
	if deps.metrics.successes != 1 {
		t.Errorf("success count = %d, want 1", deps.metrics.successes)
	}
}

// 検証失敗時は外部呼び出しが一切発生しない
func TestService_Contribute_ValidationShortCircuits(t *testing.T) {
	tests := []struct {
		name     string
		imageURL string
		prompt   string
	}{
		{"画像URLが空", "", "a prompt"},
		{"プロンプトが空", "https://example.com/a.png", ""},
		{"両方空", "", ""},
		{"プロンプトが空白のみ", "https://example.com/a.png", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			deps.resolver.resolveFn = func(ctx context.Context, candidates *auth.Candidates) (string, bool) {
				t.Error("Resolve should not be called on validation failure")
				return "", false
			}

			svc := NewService(
				deps.resolver, deps.provisioner, deps.fetcher,
				deps.storage, deps.embedder, deps.repo,
				trimSanitizer{}, deps.metrics, testLogger(),
			)

			input := Input{ImageURL: tt.imageURL, Prompt: tt.prompt}
			_, err := svc.Contribute(context.Background(), input)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if deps.fetcher.called {
				t.Error("Fetch should not be called on validation failure")
			}
			if deps.metrics.failures[StageValidate] != 1 {
				t.Errorf("validate failures = %d, want 1", deps.metrics.failures[StageValidate])
			}
		})
	}
}

// trimSanitizer は空白除去のみ行うテスト用サニタイザー。
type trimSanitizer struct{}

func (trimSanitizer) Sanitize(prompt string) string { return strings.TrimSpace(prompt) }

// ユーザーを特定できない寄稿は拒否され、フェッチは実行されない
func TestService_Contribute_Unauthorized(t *testing.T) {
	deps := newTestDeps()
	deps.resolver.resolveFn = func(ctx context.Context, candidates *auth.Candidates) (string, bool) {
		return "", false
	}

	_, err := deps.newService().Contribute(context.Background(), validInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if deps.fetcher.called {
		t.Error("Fetch should not be called for unauthorized request")
	}
	if deps.metrics.failures[StageAuth] != 1 {
		t.Errorf("auth failures = %d, want 1", deps.metrics.failures[StageAuth])
	}
}

// プロフィール保証の失敗はAPIErrorとして伝播する
func TestService_Contribute_ProfileEnsureFails(t *testing.T) {
	deps := newTestDeps()
	deps.provisioner.ensureFn = func(ctx context.Context, userID string) (*model.Profile, error) {
		return nil, model.NewProfileNotFoundError()
	}

	_, err := deps.newService().Contribute(context.Background(), validInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProfileNotFound {
		t.Fatalf("expected profile not found error, got %v", err)
	}
	if deps.fetcher.called {
		t.Error("Fetch should not be called when profile cannot be ensured")
	}
}

// フェッチ失敗時はアップロードが発生しない
func TestService_Contribute_FetchFails(t *testing.T) {
	deps := newTestDeps()
	deps.fetcher.fetchFn = func(ctx context.Context, imageURL string) ([]byte, error) {
		return nil, model.NewImageFetchFailedError("status 404")
	}

	_, err := deps.newService().Contribute(context.Background(), validInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeImageFetchFailed {
		t.Fatalf("expected image fetch error, got %v", err)
	}
	if deps.storage.uploadCalled {
		t.Error("Upload should not be called after fetch failure")
	}
	if deps.metrics.failures[StageFetch] != 1 {
		t.Errorf("fetch failures = %d, want 1", deps.metrics.failures[StageFetch])
	}
}

// アップロード失敗時は永続化されない
func TestService_Contribute_UploadFails(t *testing.T) {
	deps := newTestDeps()
	deps.storage.uploadFn = func(ctx context.Context, objectName string, data []byte, contentType string) error {
		return errors.New("bucket unavailable")
	}

	_, err := deps.newService().Contribute(context.Background(), validInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeStorageFailed {
		t.Fatalf("expected storage error, got %v", err)
	}
	if deps.repo.created != nil {
		t.Error("record should not be persisted after upload failure")
	}
}

// 埋め込み失敗時はアップロード済みオブジェクトが補償削除され、永続化されない
func TestService_Contribute_EmbedFailureCompensates(t *testing.T) {
	deps := newTestDeps()
	deps.embedder.embedFn = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding provider error")
	}

	_, err := deps.newService().Contribute(context.Background(), validInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmbeddingFailed {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if !deps.storage.removeCalled {
		t.Error("expected compensating Remove after embedding failure")
	}
	if deps.storage.removedName != deps.storage.uploadedName {
		t.Errorf("removed %q, uploaded %q", deps.storage.removedName, deps.storage.uploadedName)
	}
	if deps.repo.created != nil {
		t.Error("record should not be persisted after embedding failure")
	}
}

// 永続化失敗時もアップロード済みオブジェクトが補償削除される
func TestService_Contribute_PersistFailureCompensates(t *testing.T) {
	deps := newTestDeps()
	deps.repo.createFn = func(ctx context.Context, contribution *model.Contribution) error {
		return errors.New("connection reset")
	}

	_, err := deps.newService().Contribute(context.Background(), validInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePersistenceFailed {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if !deps.storage.removeCalled {
		t.Error("expected compensating Remove after persistence failure")
	}
}

// 補償削除自体の失敗は呼び出し元のエラーを変えない
func TestService_Contribute_CompensationFailureDoesNotMaskError(t *testing.T) {
	deps := newTestDeps()
	deps.embedder.embedFn = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding provider error")
	}
	deps.storage.removeFn = func(ctx context.Context, objectName string) error {
		return errors.New("delete failed")
	}

	_, err := deps.newService().Contribute(context.Background(), validInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmbeddingFailed {
		t.Fatalf("expected embedding error, got %v", err)
	}
}

// --- newObjectName テスト ---

func TestNewObjectName(t *testing.T) {
	name := newObjectName()
	if name == "" {
		t.Fatal("expected non-empty object name")
	}
	if name[len(name)-4:] != ".png" {
		t.Errorf("object name %q should end with .png", name)
	}

	// 連続生成しても衝突しない
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := newObjectName()
		if seen[n] {
			t.Fatalf("duplicate object name generated: %s", n)
		}
		seen[n] = true
	}
}
