package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/backoffice-kit/auth-service/internal/cache"
	"github.com/backoffice-kit/auth-service/internal/domain"
	"github.com/backoffice-kit/auth-service/internal/security"
)

// Collision retries are bounded so adversarial collision pressure cannot
// grow the stack or spin forever.
const oneTimeTokenMaxRetries = 5

// InvitePayload is the serialized value an invite link resolves to. The
// expiration is embedded on top of the cache TTL: both checks are enforced.
type InvitePayload struct {
	Email          string    `json:"email"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// OneTimeLinkService issues and consumes the two single-use token families:
// invite/reset links with embedded expirations, and short-lived one-time
// access tokens exchangeable for the holder's session.
type OneTimeLinkService struct {
	cache           *cache.SessionCache
	inviteTTL       time.Duration
	oneTimeTokenTTL time.Duration

	// newKey is swappable in tests to force hash collisions.
	newKey func() (string, error)
}

func NewOneTimeLinkService(sessionCache *cache.SessionCache, inviteTTL, oneTimeTokenTTL time.Duration) *OneTimeLinkService {
	return &OneTimeLinkService{
		cache:           sessionCache,
		inviteTTL:       inviteTTL,
		oneTimeTokenTTL: oneTimeTokenTTL,
		newKey:          randomKey,
	}
}

func (s *OneTimeLinkService) IssueInvite(ctx context.Context, email string) (string, error) {
	token := security.GenerateInviteToken()
	payload, err := json.Marshal(InvitePayload{
		Email:          email,
		ExpirationDate: time.Now().UTC().Add(s.inviteTTL),
	})
	if err != nil {
		return "", err
	}
	if err := s.cache.SetInvite(ctx, token, payload, s.inviteTTL); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeInvite resolves and deletes an invite link. The embedded expiration
// is checked independently of the cache TTL: a payload that outlives its
// timestamp is rejected even if the cache has not purged it yet.
func (s *OneTimeLinkService) ConsumeInvite(ctx context.Context, token string) (*InvitePayload, error) {
	raw, ok, err := s.cache.Invite(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInviteLink
	}
	payload := &InvitePayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, domain.ErrInviteLink
	}
	if time.Now().UTC().After(payload.ExpirationDate) {
		return nil, domain.ErrInviteExpiredSignature
	}
	if err := s.cache.DeleteInvite(ctx, token); err != nil {
		return nil, err
	}
	return payload, nil
}

// IssueAccessToken stores a hashed random key mapping to the identity id.
// On a key collision a new key is drawn, at most oneTimeTokenMaxRetries
// times. The returned token is the hash itself; the pre-image never leaves
// this function.
func (s *OneTimeLinkService) IssueAccessToken(ctx context.Context, identityID string) (string, error) {
	for attempt := 0; attempt < oneTimeTokenMaxRetries; attempt++ {
		key, err := s.newKey()
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256([]byte(key))
		hash := hex.EncodeToString(sum[:])

		exists, err := s.cache.OneTimeTokenExists(ctx, hash)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}
		if err := s.cache.SetOneTimeToken(ctx, hash, identityID, s.oneTimeTokenTTL); err != nil {
			return "", err
		}
		return hash, nil
	}
	return "", errors.New("one-time token keyspace exhausted")
}

// ConsumeAccessToken looks up and deletes the token in one step.
func (s *OneTimeLinkService) ConsumeAccessToken(ctx context.Context, token string) (string, error) {
	identityID, ok, err := s.cache.TakeOneTimeToken(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrInvalidOneTimeToken
	}
	return identityID, nil
}

func randomKey() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
