package service

import (
	"context"
	"time"

	"github.com/backoffice-kit/auth-service/internal/domain"
)

// Audit event kinds emitted by the orchestrator. Formatting and persistence
// of audit records belong to the collaborator behind AuditNotifier.
const (
	AuditLoginSucceeded = "login_succeeded"
	AuditLoginPending   = "login_mfa_pending"
	AuditLoginFailed    = "login_failed"
	AuditPasswordReset  = "password_reset"
	AuditTokenRefreshed = "token_refreshed"
	AuditUserInvited    = "user_invited"
)

// SourceContext carries the request origin attached to audit events.
type SourceContext struct {
	IP        string
	UserAgent string
}

// IdentityStore is the narrow credential-storage contract the core consumes.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	Create(ctx context.Context, identity *domain.Identity) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkVerified(ctx context.Context, id string, at time.Time) error
	// UpsertWebAuthnCredential replaces any previously registered credential;
	// the model supports exactly one per identity.
	UpsertWebAuthnCredential(ctx context.Context, identityID string, cred *domain.WebAuthnCredential) error
	UpdateSignCount(ctx context.Context, identityID string, signCount uint32) error
}

// AuditNotifier records authentication events. Calls are fire-and-forget:
// the orchestrator never fails a login because auditing did.
type AuditNotifier interface {
	Record(ctx context.Context, event, identity string, src SourceContext)
}

// MailSender delivers digit codes and invite links. A delivery failure
// surfaces as domain.ErrSendMail, distinct from any authentication error.
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
