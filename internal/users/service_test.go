package users

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1_700_000_000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveCreatesUserFromEmailOnFirstSight(t *testing.T) {
	service, db := newTestService(t)

	identity := auth.Identity{Subject: "3f6c1d2e-aaaa-bbbb", Email: "ada.lovelace@example.com"}
	user, err := service.Resolve(context.Background(), identity)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Username != "ada.lovelace" {
		t.Fatalf("expected username from email local part, got %q", user.Username)
	}
	if user.ExternalID == nil || *user.ExternalID != identity.Subject {
		t.Fatalf("expected external id to be stored, got %v", user.ExternalID)
	}

	again, err := service.Resolve(context.Background(), identity)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected the same user on second resolve, got %d and %d", user.ID, again.ID)
	}

	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one user row, got %d", count)
	}
}

func TestResolveDerivesPlaceholderWithoutEmail(t *testing.T) {
	service, _ := newTestService(t)

	user, err := service.Resolve(context.Background(), auth.Identity{Subject: "abcdef1234567890"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Username != "user_abcdef12" {
		t.Fatalf("expected placeholder username, got %q", user.Username)
	}
}

func TestResolveFallsBackWhenUsernameTaken(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.Register(context.Background(), Registration{Username: "grace"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := service.Resolve(context.Background(), auth.Identity{Subject: "subject-42-xyz", Email: "grace@example.com"})
	if err != nil {
		t.Fatalf("resolve must not reject the caller: %v", err)
	}
	if user.Username != "grace_subject-" {
		t.Fatalf("expected suffixed username, got %q", user.Username)
	}
}

func TestResolveRejectsEmptySubject(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Resolve(context.Background(), auth.Identity{Subject: "  ", Email: "x@example.com"})
	if !apperrors.Is(err, apperrors.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
}

func TestRegisterValidatesAndDetectsConflicts(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, Registration{Username: "  linus ", Bio: "kernel", ExternalID: "ext-1"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Username != "linus" || user.Bio == nil || *user.Bio != "kernel" {
		t.Fatalf("unexpected user %+v", user)
	}

	if _, err := service.Register(ctx, Registration{Username: "linus"}); !apperrors.Is(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
	if _, err := service.Register(ctx, Registration{Username: "other", ExternalID: "ext-1"}); !apperrors.Is(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict for duplicate external id, got %v", err)
	}
	if _, err := service.Register(ctx, Registration{Username: ""}); !apperrors.Is(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error for empty username, got %v", err)
	}
	if _, err := service.Register(ctx, Registration{Username: strings.Repeat("a", 51)}); !apperrors.Is(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error for long username, got %v", err)
	}
}

func TestGetAndLookupByIDs(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Register(ctx, Registration{Username: "first"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	second, err := service.Register(ctx, Registration{Username: "second"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	loaded, err := service.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.Username != "first" {
		t.Fatalf("unexpected username %q", loaded.Username)
	}

	if _, err := service.Get(ctx, 9999); !apperrors.Is(err, apperrors.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	found, err := service.LookupByIDs(ctx, []uint{first.ID, second.ID, 4242})
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(found) != 2 || found[second.ID].Username != "second" {
		t.Fatalf("unexpected lookup result %+v", found)
	}
}

func TestDeriveUsername(t *testing.T) {
	testCases := []struct {
		identity auth.Identity
		want     string
	}{
		{identity: auth.Identity{Subject: "abc", Email: "me@example.com"}, want: "me"},
		{identity: auth.Identity{Subject: "0123456789", Email: ""}, want: "user_01234567"},
		{identity: auth.Identity{Subject: "short", Email: "@example.com"}, want: "user_short"},
	}
	for _, testCase := range testCases {
		if got := DeriveUsername(testCase.identity); got != testCase.want {
			t.Fatalf("DeriveUsername(%+v) = %q, want %q", testCase.identity, got, testCase.want)
		}
	}
}

func TestResolveAcceptsLongSubjects(t *testing.T) {
	service, _ := newTestService(t)

	subject := strings.Repeat("s", 101)
	user, err := service.Resolve(context.Background(), auth.Identity{Subject: subject})
	if err != nil {
		t.Fatalf("resolve rejected a long subject: %v", err)
	}
	if user.ExternalID == nil || *user.ExternalID != subject {
		t.Fatalf("expected full subject to be stored, got %v", user.ExternalID)
	}
	if user.Username != "user_ssssssss" {
		t.Fatalf("unexpected derived username %q", user.Username)
	}

	again, err := service.Resolve(context.Background(), auth.Identity{Subject: subject})
	if err != nil || again.ID != user.ID {
		t.Fatalf("expected the same user on second resolve, got %+v, %v", again, err)
	}
}
