package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/backoffice-kit/auth-service/internal/cache"
	"github.com/backoffice-kit/auth-service/internal/domain"
)

type WebAuthnConfig struct {
	RPID           string
	RPName         string
	ExpectedOrigin string
	Timeout        time.Duration
}

// WebAuthnService runs registration and authentication ceremonies against
// the identity's single stored credential. Ceremony state lives in the
// session cache under the identity, with TTL equal to the ceremony timeout,
// and is consumed on the first finish attempt.
type WebAuthnService struct {
	wa         *webauthn.WebAuthn
	cache      *cache.SessionCache
	identities IdentityStore
	timeout    time.Duration
}

func NewWebAuthnService(cfg WebAuthnConfig, sessionCache *cache.SessionCache, identities IdentityStore) (*WebAuthnService, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPName,
		RPOrigins:     []string{cfg.ExpectedOrigin},
		Timeouts: webauthn.TimeoutsConfig{
			Login:        webauthn.TimeoutConfig{Enforce: true, Timeout: cfg.Timeout, TimeoutUVD: cfg.Timeout},
			Registration: webauthn.TimeoutConfig{Enforce: true, Timeout: cfg.Timeout, TimeoutUVD: cfg.Timeout},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn relying party: %w", err)
	}
	return &WebAuthnService{wa: wa, cache: sessionCache, identities: identities, timeout: cfg.Timeout}, nil
}

func (s *WebAuthnService) BeginRegistration(ctx context.Context, identity *domain.Identity) (*protocol.CredentialCreation, error) {
	options, session, err := s.wa.BeginRegistration(
		ceremonyUser{identity: identity},
		webauthn.WithConveyancePreference(protocol.PreferDirectAttestation),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if err := s.storeSession(ctx, identity.Email, session); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishRegistration consumes the pending ceremony, verifies the attestation
// and persists the resulting credential, overwriting any prior one.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, identity *domain.Identity, assertion []byte) (*domain.WebAuthnCredential, error) {
	session, err := s.takeSession(ctx, identity.Email)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(assertion))
	if err != nil {
		return nil, domain.ErrWebAuthnVerification
	}
	cred, err := s.wa.CreateCredential(ceremonyUser{identity: identity}, *session, parsed)
	if err != nil {
		return nil, domain.ErrWebAuthnVerification
	}
	return s.persistCredential(ctx, identity, cred)
}

func (s *WebAuthnService) persistCredential(ctx context.Context, identity *domain.Identity, cred *webauthn.Credential) (*domain.WebAuthnCredential, error) {
	stored := credentialFromLibrary(identity.ID, cred)
	if err := s.identities.UpsertWebAuthnCredential(ctx, identity.ID, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// BeginAuthentication requires a previously registered credential; the
// ceremony is restricted to that one credential id.
func (s *WebAuthnService) BeginAuthentication(ctx context.Context, identity *domain.Identity) (*protocol.CredentialAssertion, error) {
	if identity.Credential == nil {
		return nil, domain.ErrCredentialNotFound
	}
	options, session, err := s.wa.BeginLogin(
		ceremonyUser{identity: identity},
		webauthn.WithUserVerification(protocol.VerificationRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("begin authentication: %w", err)
	}
	if err := s.storeSession(ctx, identity.Email, session); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishAuthentication consumes the pending ceremony and verifies the signed
// assertion against the stored public key. An assertion whose sign counter
// does not advance past the stored counter is rejected as a possible clone.
func (s *WebAuthnService) FinishAuthentication(ctx context.Context, identity *domain.Identity, assertion []byte) error {
	if identity.Credential == nil {
		return domain.ErrCredentialNotFound
	}
	session, err := s.takeSession(ctx, identity.Email)
	if err != nil {
		return err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(assertion))
	if err != nil {
		return domain.ErrWebAuthnVerification
	}
	cred, err := s.wa.ValidateLogin(ceremonyUser{identity: identity}, *session, parsed)
	if err != nil {
		return domain.ErrWebAuthnVerification
	}
	return s.settleAuthentication(ctx, identity, cred)
}

// settleAuthentication applies the library's verdict on a verified
// assertion. A clone warning (sign counter that did not advance past the
// stored value) rejects the login; otherwise the stored counter moves to the
// authenticator's.
func (s *WebAuthnService) settleAuthentication(ctx context.Context, identity *domain.Identity, cred *webauthn.Credential) error {
	if cred.Authenticator.CloneWarning {
		return domain.ErrCredentialCloned
	}
	return s.identities.UpdateSignCount(ctx, identity.ID, cred.Authenticator.SignCount)
}

func (s *WebAuthnService) storeSession(ctx context.Context, email string, session *webauthn.SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.cache.SetChallenge(ctx, email, data, s.timeout)
}

func (s *WebAuthnService) takeSession(ctx context.Context, email string) (*webauthn.SessionData, error) {
	data, ok, err := s.cache.TakeChallenge(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	session := &webauthn.SessionData{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("malformed ceremony state: %w", err)
	}
	return session, nil
}

func credentialFromLibrary(identityID string, cred *webauthn.Credential) *domain.WebAuthnCredential {
	deviceType := "single_device"
	if cred.Flags.BackupEligible {
		deviceType = "multi_device"
	}
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	return &domain.WebAuthnCredential{
		IdentityID:      identityID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		DeviceType:      deviceType,
		BackedUp:        cred.Flags.BackupState,
		Transports:      domain.JoinTransports(transports),
	}
}

// ceremonyUser adapts a domain identity to the relying-party user contract.
type ceremonyUser struct {
	identity *domain.Identity
}

func (u ceremonyUser) WebAuthnID() []byte {
	return []byte(u.identity.ID)
}

func (u ceremonyUser) WebAuthnName() string {
	return u.identity.Email
}

func (u ceremonyUser) WebAuthnDisplayName() string {
	return u.identity.FullName()
}

func (u ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	stored := u.identity.Credential
	if stored == nil {
		return nil
	}
	transports := make([]protocol.AuthenticatorTransport, 0)
	for _, t := range stored.TransportList() {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return []webauthn.Credential{{
		ID:              stored.CredentialID,
		PublicKey:       stored.PublicKey,
		AttestationType: stored.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			UserVerified:   true,
			BackupEligible: stored.DeviceType == "multi_device",
			BackupState:    stored.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    stored.AAGUID,
			SignCount: stored.SignCount,
		},
	}}
}
