package domain

import (
	"strings"
	"time"
)

type AccountType string

const (
	AccountTypeStandard AccountType = "standard"
	// AccountTypeAPI marks machine accounts that receive long-lived tokens.
	AccountTypeAPI AccountType = "api"
)

type Identity struct {
	ID           string              `gorm:"primaryKey;size:36" json:"id"`
	Email        string              `gorm:"uniqueIndex;not null;size:255" json:"email"`
	FirstName    string              `gorm:"size:128" json:"first_name"`
	LastName     string              `gorm:"size:128" json:"last_name"`
	PasswordHash string              `gorm:"not null;size:128" json:"-"`
	AccountType  AccountType         `gorm:"size:16;default:standard" json:"account_type"`
	MFAEnabled   bool                `gorm:"not null;default:false" json:"mfa_enabled"`
	VerifiedAt   *time.Time          `json:"verified_at,omitempty"`
	Credential   *WebAuthnCredential `gorm:"foreignKey:IdentityID" json:"-"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (i *Identity) FullName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// WebAuthnCredential is the single hardware credential an identity may hold.
// The model supports exactly one credential per identity; re-registration
// overwrites the previous one.
type WebAuthnCredential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	IdentityID      string    `gorm:"uniqueIndex;not null;size:36" json:"identity_id"`
	CredentialID    []byte    `gorm:"uniqueIndex;not null" json:"-"`
	PublicKey       []byte    `gorm:"not null" json:"-"`
	AttestationType string    `gorm:"size:64" json:"-"`
	AAGUID          []byte    `json:"-"`
	SignCount       uint32    `gorm:"not null;default:0" json:"sign_count"`
	DeviceType      string    `gorm:"size:32" json:"device_type"`
	BackedUp        bool      `gorm:"not null;default:false" json:"backed_up"`
	Transports      string    `gorm:"size:255" json:"transports"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c *WebAuthnCredential) TransportList() []string {
	if c.Transports == "" {
		return nil
	}
	return strings.Split(c.Transports, ",")
}

func JoinTransports(transports []string) string {
	return strings.Join(transports, ",")
}
