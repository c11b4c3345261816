package domain

import (
	"errors"
	"fmt"
)

// Error kinds raised by the authentication core. Each component raises its
// specific kind and the orchestrator propagates them unchanged; translation
// to transport responses happens only at the HTTP boundary.
var (
	// ErrAuthentication is deliberately uninformative: unknown identity and
	// wrong password must be indistinguishable to the caller.
	ErrAuthentication = errors.New("invalid username and/or password")

	ErrExpiredSignature = errors.New("signature has expired")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidScope     = errors.New("invalid scope for token")
	// ErrEncodeToken signals a signing failure and is treated as fatal infra.
	ErrEncodeToken = errors.New("an error occurred while creating the token")

	ErrDigitCode         = errors.New("signature or invalid digit code")
	ErrOTPFailedAttempts = errors.New("too many incorrect entries")

	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrCredentialNotFound   = errors.New("no registered webauthn credential")
	ErrCredentialCloned     = errors.New("credential sign count regression")
	ErrWebAuthnVerification = errors.New("webauthn verification failed")

	ErrInviteLink             = errors.New("invalid invite link")
	ErrInviteExpiredSignature = errors.New("expired invite link")
	ErrInvalidOneTimeToken    = errors.New("invalid one time code")

	ErrPasswordMismatch  = errors.New("passwords do not match")
	ErrUnsupportedFactor = errors.New("unsupported authentication factor")
	ErrIdentityExists    = errors.New("you cannot add an existing user")
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrSendMail          = errors.New("an error occurred while sending email")
)

// PasswordRule identifies the strength rule a candidate password violated.
// Rules are checked in a fixed order and the first violation wins.
type PasswordRule string

const (
	PasswordRuleLength    PasswordRule = "length"
	PasswordRuleUppercase PasswordRule = "uppercase"
	PasswordRuleLowercase PasswordRule = "lowercase"
	PasswordRuleDigit     PasswordRule = "digit"
	PasswordRuleSpecial   PasswordRule = "special"
)

type WeakPasswordError struct {
	Rule PasswordRule
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("password does not satisfy the %s rule", e.Rule)
}
