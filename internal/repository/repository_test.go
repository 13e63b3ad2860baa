package repository

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestNewPostgresProfileRepo(t *testing.T) {
	if repo := NewPostgresProfileRepo(nil); repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestNewPostgresContributionRepo(t *testing.T) {
	if repo := NewPostgresContributionRepo(nil); repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 一意制約違反のSQLSTATEが正しい定数であること
func TestUniqueViolationCode(t *testing.T) {
	pqErr := &pq.Error{Code: pq.ErrorCode(uniqueViolationCode)}
	if pqErr.Code.Name() != "unique_violation" {
		t.Errorf("code name = %q, want unique_violation", pqErr.Code.Name())
	}
}

func TestErrDuplicateProfile_Sentinel(t *testing.T) {
	wrapped := errors.Join(ErrDuplicateProfile)
	if !errors.Is(wrapped, ErrDuplicateProfile) {
		t.Error("expected errors.Is to match the sentinel")
	}
}
