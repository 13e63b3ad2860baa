package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/yusuke/picpool/internal/idp"
	"github.com/yusuke/picpool/internal/model"
	"github.com/yusuke/picpool/internal/repository"
)

// mockProfileRepo はProfileRepositoryのモック実装。
type mockProfileRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Profile, error)
	createFn   func(ctx context.Context, profile *model.Profile) error
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	return m.createFn(ctx, profile)
}

// mockAdminFetcher はAdminUserFetcherのモック実装。
type mockAdminFetcher struct {
	adminGetUserFn func(ctx context.Context, userID string) (*idp.User, error)
}

func (m *mockAdminFetcher) AdminGetUser(ctx context.Context, userID string) (*idp.User, error) {
	if m.adminGetUserFn != nil {
		return m.adminGetUserFn(ctx, userID)
	}
	return nil, errors.New("not configured")
}

// memoryProfileRepo は一意制約を模したインメモリのProfileRepository。
// 並行プロビジョニングのレース検証に使用する。
type memoryProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
}

func newMemoryProfileRepo() *memoryProfileRepo {
	return &memoryProfileRepo{profiles: make(map[string]*model.Profile)}
}

func (m *memoryProfileRepo) FindByID(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryProfileRepo) Create(_ context.Context, profile *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ID]; ok {
		return repository.ErrDuplicateProfile
	}
	copied := *profile
	m.profiles[profile.ID] = &copied
	return nil
}

// --- Ensure テスト ---

// 既存プロフィールがあれば即座に返す（冪等な高速パス）
func TestProvisioner_Ensure_ExistingProfile(t *testing.T) {
	existing := &model.Profile{ID: "user-1", DisplayName: "Existing"}
	repo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return existing, nil
		},
		createFn: func(ctx context.Context, profile *model.Profile) error {
			t.Error("Create should not be called for existing profile")
			return nil
		},
	}
	fetcher := &mockAdminFetcher{
		adminGetUserFn: func(ctx context.Context, userID string) (*idp.User, error) {
			t.Error("AdminGetUser should not be called for existing profile")
			return nil, nil
		},
	}

	p := NewProvisioner(repo, fetcher, testLogger())
	profile, err := p.Ensure(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.DisplayName != "Existing" {
		t.Errorf("DisplayName = %q, want %q", profile.DisplayName, "Existing")
	}
}

// 初回接触時はIdPメタデータから表示名・アバターを初期化して作成する
func TestProvisioner_Ensure_CreatesWithMetadata(t *testing.T) {
	var created *model.Profile
	calls := 0
	repo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			calls++
			if calls == 1 {
				return nil, nil // 初回: 未作成
			}
			return created, nil // 再読み込み
		},
		createFn: func(ctx context.Context, profile *model.Profile) error {
			created = profile
			return nil
		},
	}
	fetcher := &mockAdminFetcher{
		adminGetUserFn: func(ctx context.Context, userID string) (*idp.User, error) {
			return &idp.User{
				ID:    userID,
				Email: "taro@example.com",
				Metadata: map[string]any{
					"full_name":  "Taro Yamada",
					"avatar_url": "https://example.com/avatar.png",
				},
			}, nil
		},
	}

	p := NewProvisioner(repo, fetcher, testLogger())
	profile, err := p.Ensure(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.DisplayName != "Taro Yamada" {
		t.Errorf("DisplayName = %q, want %q", profile.DisplayName, "Taro Yamada")
	}
	if profile.AvatarURL != "https://example.com/avatar.png" {
		t.Errorf("AvatarURL = %q, want %q", profile.AvatarURL, "https://example.com/avatar.png")
	}
}

// IdPメタデータの取得失敗は許容し、空の初期値で作成する
func TestProvisioner_Ensure_MetadataLookupFailureTolerated(t *testing.T) {
	var created *model.Profile
	calls := 0
	repo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return created, nil
		},
		createFn: func(ctx context.Context, profile *model.Profile) error {
			created = profile
			return nil
		},
	}
	fetcher := &mockAdminFetcher{
		adminGetUserFn: func(ctx context.Context, userID string) (*idp.User, error) {
			return nil, errors.New("identity provider down")
		},
	}

	p := NewProvisioner(repo, fetcher, testLogger())
	profile, err := p.Ensure(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.DisplayName != "" {
		t.Errorf("DisplayName = %q, want empty", profile.DisplayName)
	}
}

// 一意制約違反は並行作成の正常なレースとして扱い、既存行を返す
func TestProvisioner_Ensure_DuplicateRaceIsBenign(t *testing.T) {
	winner := &model.Profile{ID: "user-1", DisplayName: "Winner"}
	calls := 0
	repo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return winner, nil
		},
		createFn: func(ctx context.Context, profile *model.Profile) error {
			return repository.ErrDuplicateProfile
		},
	}
	fetcher := &mockAdminFetcher{
		adminGetUserFn: func(ctx context.Context, userID string) (*idp.User, error) {
			return &idp.User{ID: userID}, nil
		},
	}

	p := NewProvisioner(repo, fetcher, testLogger())
	profile, err := p.Ensure(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.DisplayName != "Winner" {
		t.Errorf("DisplayName = %q, want %q", profile.DisplayName, "Winner")
	}
}

// 作成試行後も行が読めない場合は失敗とする
func TestProvisioner_Ensure_FailsWhenProfileStillMissing(t *testing.T) {
	repo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, profile *model.Profile) error {
			return repository.ErrDuplicateProfile
		},
	}
	fetcher := &mockAdminFetcher{
		adminGetUserFn: func(ctx context.Context, userID string) (*idp.User, error) {
			return &idp.User{ID: userID}, nil
		},
	}

	p := NewProvisioner(repo, fetcher, testLogger())
	_, err := p.Ensure(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error when profile cannot be confirmed")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProfileNotFound {
		t.Errorf("expected PROFILE_NOT_FOUND error, got %v", err)
	}
}

// 一意制約違反以外の作成エラーは伝播する
func TestProvisioner_Ensure_CreateErrorPropagates(t *testing.T) {
	repo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, profile *model.Profile) error {
			return errors.New("connection reset")
		},
	}
	fetcher := &mockAdminFetcher{
		adminGetUserFn: func(ctx context.Context, userID string) (*idp.User, error) {
			return &idp.User{ID: userID}, nil
		},
	}

	p := NewProvisioner(repo, fetcher, testLogger())
	if _, err := p.Ensure(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestProvisioner_Ensure_EmptyUserID(t *testing.T) {
	p := NewProvisioner(newMemoryProfileRepo(), &mockAdminFetcher{}, testLogger())
	if _, err := p.Ensure(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user ID")
	}
}

// 同一ユーザーのN並行呼び出しで、行は1つだけ作成され全呼び出しが成功する
func TestProvisioner_Ensure_ConcurrentCalls(t *testing.T) {
	repo := newMemoryProfileRepo()
	fetcher := &mockAdminFetcher{
		adminGetUserFn: func(ctx context.Context, userID string) (*idp.User, error) {
			return &idp.User{ID: userID, Metadata: map[string]any{"name": "Concurrent"}}, nil
		},
	}
	p := NewProvisioner(repo, fetcher, testLogger())

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Ensure(context.Background(), "user-1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d returned error: %v", i, err)
		}
	}
	if len(repo.profiles) != 1 {
		t.Errorf("profile rows = %d, want 1", len(repo.profiles))
	}
}
