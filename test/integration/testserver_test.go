package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/backoffice-kit/auth-service/internal/cache"
	"github.com/backoffice-kit/auth-service/internal/http/handler"
	"github.com/backoffice-kit/auth-service/internal/http/router"
	"github.com/backoffice-kit/auth-service/internal/observability"
	"github.com/backoffice-kit/auth-service/internal/repository"
	"github.com/backoffice-kit/auth-service/internal/security"
	"github.com/backoffice-kit/auth-service/internal/service"
)

type capturingMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

type capturedMail struct {
	To      string
	Subject string
	Body    string
}

func (m *capturingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *capturingMailer) last(t *testing.T) capturedMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail captured")
	}
	return m.sent[len(m.sent)-1]
}

type testServer struct {
	baseURL string
	client  *http.Client
	store   *repository.GormIdentityRepository
	cache   *cache.SessionCache
	redis   *miniredis.Miniredis
	mailer  *capturingMailer
	tokens  *security.TokenManager
	hasher  *security.PasswordHasher
	flow    *service.LoginOrchestrator
}

type testServerOptions struct {
	authRateLimitRPM int
}

func newAuthTestServer(t *testing.T) *testServer {
	return newAuthTestServerWithOptions(t, testServerOptions{authRateLimitRPM: 1000})
}

func newAuthTestServerWithOptions(t *testing.T, opts testServerOptions) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	redisServer := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	store := repository.NewIdentityRepository(db)
	sessionCache := cache.New(redisClient, "auth")
	tokens := security.NewTokenManager("abcdefghijklmnopqrstuvwxyz123456")
	hasher := security.NewPasswordHasher()
	mailer := &capturingMailer{}

	webAuthn, err := service.NewWebAuthnService(service.WebAuthnConfig{
		RPID:           "localhost",
		RPName:         "Test",
		ExpectedOrigin: "http://localhost:3000",
		Timeout:        time.Minute,
	}, sessionCache, store)
	if err != nil {
		t.Fatalf("init webauthn: %v", err)
	}

	auditLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	flow := service.NewLoginOrchestrator(service.LoginOrchestratorParams{
		Identities: store,
		Passwords:  hasher,
		Tokens:     tokens,
		Cache:      sessionCache,
		DigitCodes: service.NewDigitCodeService(sessionCache, 3*time.Minute),
		WebAuthn:   webAuthn,
		OneTime:    service.NewOneTimeLinkService(sessionCache, 7*24*time.Hour, 10*time.Minute),
		Audit:      observability.NewSlogAuditNotifier(auditLogger),
		Mail:       mailer,
		Policy: service.TokenPolicy{
			AccessTTL:    2 * time.Hour,
			RefreshTTL:   20 * time.Hour,
			APIExtension: 365 * 24 * time.Hour,
		},
		AllowHost: "http://localhost:3000",
	})

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(flow),
		TokenManager:     tokens,
		CORSOrigins:      []string{"http://localhost:3000"},
		AuthRateLimitRPM: opts.authRateLimitRPM,
		APIRateLimitRPM:  100000,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		cache:   sessionCache,
		redis:   redisServer,
		mailer:  mailer,
		tokens:  tokens,
		hasher:  hasher,
		flow:    flow,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
