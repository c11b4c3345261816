package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/backoffice-kit/auth-service/internal/domain"
	"github.com/backoffice-kit/auth-service/internal/observability"
)

// GormIdentityRepository implements service.IdentityStore on gorm. Lookup
// misses are reported as domain.ErrIdentityNotFound so callers can fold them
// into the uninformative authentication failure.
type GormIdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *GormIdentityRepository {
	return &GormIdentityRepository{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Identity{}, &domain.WebAuthnCredential{})
}

func (r *GormIdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	var identity domain.Identity
	err := r.db.WithContext(ctx).Preload("Credential").Where("email = ?", email).First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "identity", "find_by_email", "not_found")
			return nil, domain.ErrIdentityNotFound
		}
		observability.RecordRepositoryOperation(ctx, "identity", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "identity", "find_by_email", "success")
	return &identity, nil
}

func (r *GormIdentityRepository) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	var identity domain.Identity
	err := r.db.WithContext(ctx).Preload("Credential").Where("id = ?", id).First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "identity", "find_by_id", "not_found")
			return nil, domain.ErrIdentityNotFound
		}
		observability.RecordRepositoryOperation(ctx, "identity", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "identity", "find_by_id", "success")
	return &identity, nil
}

func (r *GormIdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(identity).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "identity", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "identity", "create", "success")
	return nil
}

func (r *GormIdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&domain.Identity{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "identity", "update_password", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "identity", "update_password", "not_found")
		return domain.ErrIdentityNotFound
	}
	observability.RecordRepositoryOperation(ctx, "identity", "update_password", "success")
	return nil
}

func (r *GormIdentityRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Identity{}).Where("id = ?", id).Update("verified_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

// UpsertWebAuthnCredential replaces the identity's registered credential;
// the model supports exactly one per identity.
func (r *GormIdentityRepository) UpsertWebAuthnCredential(ctx context.Context, identityID string, cred *domain.WebAuthnCredential) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("identity_id = ?", identityID).Delete(&domain.WebAuthnCredential{}).Error; err != nil {
			return err
		}
		cred.IdentityID = identityID
		return tx.Create(cred).Error
	})
}

func (r *GormIdentityRepository) UpdateSignCount(ctx context.Context, identityID string, signCount uint32) error {
	res := r.db.WithContext(ctx).Model(&domain.WebAuthnCredential{}).
		Where("identity_id = ?", identityID).
		Update("sign_count", signCount)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}
