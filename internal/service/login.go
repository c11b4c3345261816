package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/backoffice-kit/auth-service/internal/cache"
	"github.com/backoffice-kit/auth-service/internal/domain"
	"github.com/backoffice-kit/auth-service/internal/security"
)

// PendingFactorDigitCode is the marker returned when the second factor is a
// mailed digit code.
const PendingFactorDigitCode = "one-time-password"

// TokenPolicy fixes the lifetime of issued tokens per account class. API
// accounts get long-lived tokens; everyone else gets the standard pair.
type TokenPolicy struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	APIExtension time.Duration
}

func (p TokenPolicy) lifetimes(accountType domain.AccountType) (access, refresh time.Duration) {
	if accountType == domain.AccountTypeAPI {
		return p.APIExtension + p.AccessTTL, p.APIExtension + p.RefreshTTL
	}
	return p.AccessTTL, p.RefreshTTL
}

// TokenPair is the terminal output of every successful authentication path.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult is either a token pair (terminal) or a pending second-factor
// marker carrying the WebAuthn assertion options when that factor applies.
type LoginResult struct {
	Tokens        *TokenPair                    `json:"tokens,omitempty"`
	PendingFactor string                        `json:"pending_factor,omitempty"`
	Assertion     *protocol.CredentialAssertion `json:"assertion,omitempty"`
}

// LoginOrchestrator sequences the verifier, token manager, cache and
// second-factor services to authenticate a principal. It holds no
// authoritative state of its own: everything cross-request lives in the
// session cache so any stateless instance can serve the second call of a
// two-call flow.
type LoginOrchestrator struct {
	identities IdentityStore
	passwords  *security.PasswordHasher
	tokens     *security.TokenManager
	cache      *cache.SessionCache
	digitCodes *DigitCodeService
	webAuthn   *WebAuthnService
	oneTime    *OneTimeLinkService
	audit      AuditNotifier
	mail       MailSender
	policy     TokenPolicy
	allowHost  string
}

type LoginOrchestratorParams struct {
	Identities IdentityStore
	Passwords  *security.PasswordHasher
	Tokens     *security.TokenManager
	Cache      *cache.SessionCache
	DigitCodes *DigitCodeService
	WebAuthn   *WebAuthnService
	OneTime    *OneTimeLinkService
	Audit      AuditNotifier
	Mail       MailSender
	Policy     TokenPolicy
	AllowHost  string
}

func NewLoginOrchestrator(p LoginOrchestratorParams) *LoginOrchestrator {
	return &LoginOrchestrator{
		identities: p.Identities,
		passwords:  p.Passwords,
		tokens:     p.Tokens,
		cache:      p.Cache,
		digitCodes: p.DigitCodes,
		webAuthn:   p.WebAuthn,
		oneTime:    p.OneTime,
		audit:      p.Audit,
		mail:       p.Mail,
		policy:     p.Policy,
		allowHost:  p.AllowHost,
	}
}

// Login verifies the password and either issues tokens directly or parks the
// flow behind a second factor. Tokens are issued and cached before the
// second factor completes; VerifyAuth only releases them. Unknown identity
// and wrong password produce the same failure.
func (o *LoginOrchestrator) Login(ctx context.Context, email, password string, src SourceContext) (*LoginResult, error) {
	identity, err := o.identities.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, err
	}
	if identity == nil || !o.passwords.Verify(password, identity.PasswordHash) {
		o.audit.Record(ctx, AuditLoginFailed, email, src)
		return nil, domain.ErrAuthentication
	}

	pair, err := o.issueTokens(ctx, identity)
	if err != nil {
		return nil, err
	}

	if !identity.MFAEnabled {
		o.audit.Record(ctx, AuditLoginSucceeded, email, src)
		return &LoginResult{Tokens: pair}, nil
	}
	// A password alone is not a successful login for an MFA identity; the
	// success event is recorded by VerifyAuth once the factor completes.
	o.audit.Record(ctx, AuditLoginPending, email, src)

	if identity.Credential != nil {
		options, err := o.webAuthn.BeginAuthentication(ctx, identity)
		if err != nil {
			return nil, err
		}
		return &LoginResult{PendingFactor: "webauthn", Assertion: options}, nil
	}

	code, err := o.digitCodes.Issue(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := o.mail.Send(ctx, email, "2 Factor Auth", digitCodeMailBody(identity.FirstName, code)); err != nil {
		return nil, err
	}
	return &LoginResult{PendingFactor: PendingFactorDigitCode}, nil
}

// VerifyAuth resolves a pending second factor and releases the token pair
// cached by Login. Component errors propagate with their own kinds.
func (o *LoginOrchestrator) VerifyAuth(ctx context.Context, email, digitCode string, assertion []byte, src SourceContext) (*TokenPair, error) {
	switch {
	case digitCode != "":
		if err := o.digitCodes.Verify(ctx, email, digitCode); err != nil {
			return nil, err
		}
	case len(assertion) > 0:
		identity, err := o.identities.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, domain.ErrIdentityNotFound) {
				return nil, domain.ErrAuthentication
			}
			return nil, err
		}
		if err := o.webAuthn.FinishAuthentication(ctx, identity, assertion); err != nil {
			return nil, err
		}
	default:
		return nil, domain.ErrUnsupportedFactor
	}
	pair, err := o.cachedTokens(ctx, email)
	if err != nil {
		return nil, err
	}
	o.audit.Record(ctx, AuditLoginSucceeded, email, src)
	return pair, nil
}

// RefreshToken rotates the session: the presented token must match the
// cached refresh token verbatim, then both tokens are re-issued and the
// session record overwritten. The superseded refresh token stays
// signature-valid but fails the comparison from now on.
func (o *LoginOrchestrator) RefreshToken(ctx context.Context, refreshToken string, src SourceContext) (*TokenPair, error) {
	email, err := o.tokens.Decode(refreshToken, security.ScopeRefresh)
	if err != nil {
		return nil, err
	}
	stored, ok, err := o.cache.RefreshToken(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok || stored != refreshToken {
		return nil, domain.ErrInvalidToken
	}

	// The rotated pair carries the account's own lifetimes, so an API-class
	// session keeps its extended TTLs across rotations.
	identity, err := o.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrAuthentication
		}
		return nil, err
	}
	pair, err := o.issueTokens(ctx, identity)
	if err != nil {
		return nil, err
	}
	o.audit.Record(ctx, AuditTokenRefreshed, email, src)
	return pair, nil
}

// ResetPassword consumes an invite or reset link and installs the new
// password. The link's embedded expiration is enforced in addition to the
// cache TTL. A previously unverified identity becomes verified.
func (o *LoginOrchestrator) ResetPassword(ctx context.Context, linkToken, password, confirmPassword string, src SourceContext) (*TokenPair, error) {
	if password != confirmPassword {
		return nil, domain.ErrPasswordMismatch
	}
	if err := security.CheckPasswordStrength(password); err != nil {
		return nil, err
	}

	payload, err := o.oneTime.ConsumeInvite(ctx, linkToken)
	if err != nil {
		return nil, err
	}
	identity, err := o.identities.FindByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrInviteLink
		}
		return nil, err
	}

	hash, err := o.passwords.Hash(password)
	if err != nil {
		return nil, err
	}
	if err := o.identities.UpdatePassword(ctx, identity.ID, hash); err != nil {
		return nil, err
	}
	if identity.VerifiedAt == nil {
		if err := o.identities.MarkVerified(ctx, identity.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	pair, err := o.issueTokens(ctx, identity)
	if err != nil {
		return nil, err
	}
	o.audit.Record(ctx, AuditPasswordReset, identity.Email, src)
	return pair, nil
}

// InviteUser creates an identity with a throwaway password and mails a
// time-boxed invite link for the onboarding reset flow.
func (o *LoginOrchestrator) InviteUser(ctx context.Context, email, firstName, lastName string, accountType domain.AccountType, src SourceContext) (*domain.Identity, error) {
	if _, err := o.identities.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrIdentityExists
	} else if !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, err
	}

	hash, err := o.passwords.Hash(security.GeneratePassword())
	if err != nil {
		return nil, err
	}
	if accountType == "" {
		accountType = domain.AccountTypeStandard
	}
	identity := &domain.Identity{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: hash,
		AccountType:  accountType,
	}
	if err := o.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	token, err := o.oneTime.IssueInvite(ctx, email)
	if err != nil {
		return nil, err
	}
	link := o.allowHost + "/reset-password/" + token
	if err := o.mail.Send(ctx, email, "App Invite", inviteMailBody(link)); err != nil {
		return nil, err
	}
	o.audit.Record(ctx, AuditUserInvited, email, src)
	return identity, nil
}

func (o *LoginOrchestrator) GenerateOneTimeToken(ctx context.Context, email string) (string, error) {
	identity, err := o.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return "", domain.ErrAuthentication
		}
		return "", err
	}
	return o.oneTime.IssueAccessToken(ctx, identity.ID)
}

// TokenByOneTimeToken exchanges a consumed one-time token for the holder's
// cached session.
func (o *LoginOrchestrator) TokenByOneTimeToken(ctx context.Context, token string) (*TokenPair, error) {
	identityID, err := o.oneTime.ConsumeAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	identity, err := o.identities.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrInvalidOneTimeToken
		}
		return nil, err
	}
	return o.cachedTokens(ctx, identity.Email)
}

// BeginCredentialRegistration starts a WebAuthn registration ceremony for an
// authenticated identity.
func (o *LoginOrchestrator) BeginCredentialRegistration(ctx context.Context, email string) (*protocol.CredentialCreation, error) {
	identity, err := o.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrAuthentication
		}
		return nil, err
	}
	return o.webAuthn.BeginRegistration(ctx, identity)
}

func (o *LoginOrchestrator) FinishCredentialRegistration(ctx context.Context, email string, assertion []byte) (*domain.WebAuthnCredential, error) {
	identity, err := o.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrAuthentication
		}
		return nil, err
	}
	return o.webAuthn.FinishRegistration(ctx, identity, assertion)
}

// BeginCredentialAuthentication is the unauthenticated assertion-options
// endpoint; it requires only the identity's email.
func (o *LoginOrchestrator) BeginCredentialAuthentication(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	identity, err := o.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrAuthentication
		}
		return nil, err
	}
	return o.webAuthn.BeginAuthentication(ctx, identity)
}

func (o *LoginOrchestrator) issueTokens(ctx context.Context, identity *domain.Identity) (*TokenPair, error) {
	accessTTL, refreshTTL := o.policy.lifetimes(identity.AccountType)
	access, err := o.tokens.Encode(identity.Email, security.ScopeAccess, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := o.tokens.Encode(identity.Email, security.ScopeRefresh, refreshTTL)
	if err != nil {
		return nil, err
	}
	if err := o.cache.StoreTokens(ctx, identity.Email, access, refresh, accessTTL, refreshTTL); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (o *LoginOrchestrator) cachedTokens(ctx context.Context, email string) (*TokenPair, error) {
	access, okAccess, err := o.cache.AccessToken(ctx, email)
	if err != nil {
		return nil, err
	}
	refresh, okRefresh, err := o.cache.RefreshToken(ctx, email)
	if err != nil {
		return nil, err
	}
	// The pending login's pre-issued tokens expired out of the cache; the
	// client has to start over.
	if !okAccess || !okRefresh {
		return nil, domain.ErrAuthentication
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
