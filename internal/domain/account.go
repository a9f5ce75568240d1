package domain

import (
	"time"
)

// Authority is the privilege level of an account.
type Authority string

const (
	AuthorityUser  Authority = "user"
	AuthorityAdmin Authority = "admin"
)

// Account represents a registered account.
type Account struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Authority  Authority `json:"authority"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// IsAdmin reports whether the account holds admin authority.
func (a *Account) IsAdmin() bool {
	return a.Authority == AuthorityAdmin
}

// LoginDetails holds the password credential for an account. The Password
// field carries the peppered Argon2id envelope (hex AES-GCM ciphertext of the
// PHC hash string); Nonce is the hex-encoded AES-GCM nonce for that envelope.
type LoginDetails struct {
	AccountID              string     `json:"account_id"`
	Email                  string     `json:"email"`
	Password               string     `json:"-"`
	Nonce                  string     `json:"-"`
	ActivatedAt            *time.Time `json:"activated_at,omitempty"`
	IncorrectPasswordCount int        `json:"incorrect_password_count"`
	AccountLockedUntil     *time.Time `json:"account_locked_until,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	ModifiedAt             time.Time  `json:"modified_at"`
}

// Activated reports whether the credential has completed email activation.
func (l *LoginDetails) Activated() bool {
	return l.ActivatedAt != nil
}

// LockedAt reports whether the account is locked out at the given instant.
func (l *LoginDetails) LockedAt(now time.Time) bool {
	return l.AccountLockedUntil != nil && l.AccountLockedUntil.After(now)
}

// ActivationCode is a pending email activation code for a credential.
type ActivationCode struct {
	ID           string    `json:"id"`
	LoginDetails string    `json:"login_details"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// PasswordReset is a pending password reset code for a credential.
type PasswordReset struct {
	ID           string    `json:"id"`
	LoginDetails string    `json:"login_details"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// WhitelistEntry marks an email address as allowed to register.
type WhitelistEntry struct {
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}
