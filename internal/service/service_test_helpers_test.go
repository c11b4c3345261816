package service

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/backoffice-kit/auth-service/internal/cache"
	"github.com/backoffice-kit/auth-service/internal/domain"
)

func newRedisCacheForTest(t *testing.T) (*miniredis.Miniredis, *cache.SessionCache) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, cache.New(client, "auth")
}

type inMemoryIdentityStore struct {
	mu      sync.Mutex
	byEmail map[string]*domain.Identity
	byID    map[string]*domain.Identity
}

func newInMemoryIdentityStore() *inMemoryIdentityStore {
	return &inMemoryIdentityStore{
		byEmail: map[string]*domain.Identity{},
		byID:    map[string]*domain.Identity{},
	}
}

func (s *inMemoryIdentityStore) add(identity *domain.Identity) *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	s.byEmail[identity.Email] = identity
	s.byID[identity.ID] = identity
	return identity
}

func (s *inMemoryIdentityStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *inMemoryIdentityStore) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *inMemoryIdentityStore) Create(ctx context.Context, identity *domain.Identity) error {
	s.add(identity)
	return nil
}

func (s *inMemoryIdentityStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	identity.PasswordHash = passwordHash
	return nil
}

func (s *inMemoryIdentityStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	identity.VerifiedAt = &at
	return nil
}

func (s *inMemoryIdentityStore) UpsertWebAuthnCredential(ctx context.Context, identityID string, cred *domain.WebAuthnCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[identityID]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	cp := *cred
	cp.IdentityID = identityID
	identity.Credential = &cp
	return nil
}

func (s *inMemoryIdentityStore) UpdateSignCount(ctx context.Context, identityID string, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[identityID]
	if !ok || identity.Credential == nil {
		return domain.ErrCredentialNotFound
	}
	identity.Credential.SignCount = signCount
	return nil
}

type auditRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *auditRecorder) Record(ctx context.Context, event, identity string, src SourceContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *auditRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

type fakeMailer struct {
	mu       sync.Mutex
	sent     []sentMail
	sendErr  error
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *fakeMailer) lastSent() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}
