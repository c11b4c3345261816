package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache is the shared ephemeral store for everything the login flow
// keeps between requests: the authoritative token pair per identity, pending
// WebAuthn challenges, digit codes and their attempt counters, invite
// payloads and one-time access tokens. Every write carries a TTL; expiry is
// handled lazily by Redis, and a read of an absent or expired key is
// indistinguishable from "never set".
type SessionCache struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *SessionCache {
	if prefix == "" {
		prefix = "auth"
	}
	return &SessionCache{client: client, prefix: prefix}
}

func (c *SessionCache) key(name string) string {
	return fmt.Sprintf("%s:%s", c.prefix, name)
}

// StoreTokens overwrites the identity's session record. The previous refresh
// token, even if still signature-valid, is rejected from here on because the
// refresh endpoint compares against this cached value verbatim.
func (c *SessionCache) StoreTokens(ctx context.Context, email, access, refresh string, accessTTL, refreshTTL time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.key(email+"_access_token"), access, accessTTL)
	pipe.Set(ctx, c.key(email+"_refresh_token"), refresh, refreshTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *SessionCache) AccessToken(ctx context.Context, email string) (string, bool, error) {
	return c.get(ctx, c.key(email+"_access_token"))
}

func (c *SessionCache) RefreshToken(ctx context.Context, email string) (string, bool, error) {
	return c.get(ctx, c.key(email+"_refresh_token"))
}

func (c *SessionCache) SetDigitCode(ctx context.Context, email, code string, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.key(email+"_digit_code"), code, ttl)
	pipe.Set(ctx, c.key(email+"_failed_attempts"), "0", ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *SessionCache) DigitCode(ctx context.Context, email string) (string, bool, error) {
	return c.get(ctx, c.key(email+"_digit_code"))
}

// DeleteDigitCode clears all digit-code state for the identity, code and
// attempt counter both.
func (c *SessionCache) DeleteDigitCode(ctx context.Context, email string) error {
	return c.client.Del(ctx, c.key(email+"_digit_code"), c.key(email+"_failed_attempts")).Err()
}

func (c *SessionCache) FailedAttempts(ctx context.Context, email string) (int, error) {
	raw, ok, err := c.get(ctx, c.key(email+"_failed_attempts"))
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed failed-attempt counter %q: %w", raw, err)
	}
	return n, nil
}

func (c *SessionCache) SetFailedAttempts(ctx context.Context, email string, attempts int, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(email+"_failed_attempts"), strconv.Itoa(attempts), ttl).Err()
}

func (c *SessionCache) SetChallenge(ctx context.Context, email string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key("webauthn_challenge_"+email), data, ttl).Err()
}

// TakeChallenge reads and deletes the pending ceremony state in one step so
// a challenge can never be verified twice.
func (c *SessionCache) TakeChallenge(ctx context.Context, email string) ([]byte, bool, error) {
	raw, err := c.client.GetDel(ctx, c.key("webauthn_challenge_"+email)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(raw), true, nil
}

func (c *SessionCache) SetInvite(ctx context.Context, token string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key("invite_"+token), payload, ttl).Err()
}

func (c *SessionCache) Invite(ctx context.Context, token string) ([]byte, bool, error) {
	raw, ok, err := c.get(ctx, c.key("invite_"+token))
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(raw), true, nil
}

func (c *SessionCache) DeleteInvite(ctx context.Context, token string) error {
	return c.client.Del(ctx, c.key("invite_"+token)).Err()
}

func (c *SessionCache) OneTimeTokenExists(ctx context.Context, hash string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key("one_time_"+hash)).Result()
	return n > 0, err
}

func (c *SessionCache) SetOneTimeToken(ctx context.Context, hash, identityID string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key("one_time_"+hash), identityID, ttl).Err()
}

// TakeOneTimeToken consumes the token: look up and delete in one step.
func (c *SessionCache) TakeOneTimeToken(ctx context.Context, hash string) (string, bool, error) {
	raw, err := c.client.GetDel(ctx, c.key("one_time_"+hash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

func (c *SessionCache) get(ctx context.Context, key string) (string, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}
