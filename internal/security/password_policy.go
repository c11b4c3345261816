package security

import (
	"regexp"

	"github.com/backoffice-kit/auth-service/internal/domain"
)

var (
	lengthRegex    = regexp.MustCompile(`.{8,}`)
	uppercaseRegex = regexp.MustCompile(`[A-Z]`)
	lowercaseRegex = regexp.MustCompile(`[a-z]`)
	digitRegex     = regexp.MustCompile(`\d`)
	specialRegex   = regexp.MustCompile(`[!@#$%^&*()]`)
)

// CheckPasswordStrength validates the candidate against the five strength
// rules in fixed order: length, uppercase, lowercase, digit, special. The
// first violated rule is returned; nil means all five passed.
func CheckPasswordStrength(password string) error {
	switch {
	case !lengthRegex.MatchString(password):
		return &domain.WeakPasswordError{Rule: domain.PasswordRuleLength}
	case !uppercaseRegex.MatchString(password):
		return &domain.WeakPasswordError{Rule: domain.PasswordRuleUppercase}
	case !lowercaseRegex.MatchString(password):
		return &domain.WeakPasswordError{Rule: domain.PasswordRuleLowercase}
	case !digitRegex.MatchString(password):
		return &domain.WeakPasswordError{Rule: domain.PasswordRuleDigit}
	case !specialRegex.MatchString(password):
		return &domain.WeakPasswordError{Rule: domain.PasswordRuleSpecial}
	}
	return nil
}
