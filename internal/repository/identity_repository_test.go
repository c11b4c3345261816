package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/backoffice-kit/auth-service/internal/domain"
)

func newIdentityRepoForTest(t *testing.T) *GormIdentityRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewIdentityRepository(db)
}

func testIdentity(email string) *domain.Identity {
	return &domain.Identity{
		Email:        email,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "$2a$10$digest",
		AccountType:  domain.AccountTypeStandard,
	}
}

func TestCreateAndFindByEmail(t *testing.T) {
	repo := newIdentityRepoForTest(t)
	ctx := context.Background()

	identity := testIdentity("a@b.c")
	if err := repo.Create(ctx, identity); err != nil {
		t.Fatalf("create: %v", err)
	}
	if identity.ID == "" {
		t.Fatal("expected id assigned on create")
	}

	found, err := repo.FindByEmail(ctx, "a@b.c")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.ID != identity.ID || found.FirstName != "Ada" {
		t.Fatalf("unexpected identity %+v", found)
	}

	byID, err := repo.FindByID(ctx, identity.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != "a@b.c" {
		t.Fatalf("unexpected identity %+v", byID)
	}
}

func TestFindMissesReportNotFound(t *testing.T) {
	repo := newIdentityRepoForTest(t)
	ctx := context.Background()

	if _, err := repo.FindByEmail(ctx, "ghost@b.c"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "no-such-id"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	repo := newIdentityRepoForTest(t)
	ctx := context.Background()

	identity := testIdentity("a@b.c")
	if err := repo.Create(ctx, identity); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdatePassword(ctx, identity.ID, "$2a$10$newdigest"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	found, err := repo.FindByID(ctx, identity.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.PasswordHash != "$2a$10$newdigest" {
		t.Fatalf("password not updated: %q", found.PasswordHash)
	}

	if err := repo.UpdatePassword(ctx, "no-such-id", "x"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestMarkVerified(t *testing.T) {
	repo := newIdentityRepoForTest(t)
	ctx := context.Background()

	identity := testIdentity("a@b.c")
	if err := repo.Create(ctx, identity); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := repo.MarkVerified(ctx, identity.ID, at); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	found, err := repo.FindByID(ctx, identity.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.VerifiedAt == nil || !found.VerifiedAt.Equal(at) {
		t.Fatalf("unexpected verified_at %v", found.VerifiedAt)
	}

	if err := repo.MarkVerified(ctx, "no-such-id", at); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestUpsertWebAuthnCredentialReplacesPrevious(t *testing.T) {
	repo := newIdentityRepoForTest(t)
	ctx := context.Background()

	identity := testIdentity("a@b.c")
	if err := repo.Create(ctx, identity); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := &domain.WebAuthnCredential{
		CredentialID: []byte("cred-1"),
		PublicKey:    []byte("pk-1"),
		SignCount:    1,
		DeviceType:   "single_device",
	}
	if err := repo.UpsertWebAuthnCredential(ctx, identity.ID, first); err != nil {
		t.Fatalf("upsert first: %v", err)
	}

	second := &domain.WebAuthnCredential{
		CredentialID: []byte("cred-2"),
		PublicKey:    []byte("pk-2"),
		SignCount:    5,
		DeviceType:   "multi_device",
	}
	if err := repo.UpsertWebAuthnCredential(ctx, identity.ID, second); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	found, err := repo.FindByID(ctx, identity.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Credential == nil {
		t.Fatal("expected credential preloaded")
	}
	if string(found.Credential.CredentialID) != "cred-2" {
		t.Fatalf("expected replacement credential, got %q", found.Credential.CredentialID)
	}
}

func TestUpdateSignCount(t *testing.T) {
	repo := newIdentityRepoForTest(t)
	ctx := context.Background()

	identity := testIdentity("a@b.c")
	if err := repo.Create(ctx, identity); err != nil {
		t.Fatalf("create: %v", err)
	}
	cred := &domain.WebAuthnCredential{
		CredentialID: []byte("cred-1"),
		PublicKey:    []byte("pk-1"),
		SignCount:    1,
		DeviceType:   "single_device",
	}
	if err := repo.UpsertWebAuthnCredential(ctx, identity.ID, cred); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := repo.UpdateSignCount(ctx, identity.ID, 9); err != nil {
		t.Fatalf("update sign count: %v", err)
	}
	found, err := repo.FindByID(ctx, identity.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Credential.SignCount != 9 {
		t.Fatalf("unexpected sign count %d", found.Credential.SignCount)
	}

	if err := repo.UpdateSignCount(ctx, "no-such-id", 1); !errors.Is(err, domain.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}
