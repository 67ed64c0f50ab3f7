package model

import "time"

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Registrar is an accredited client account. Passwords are never stored in plaintext.
type Registrar struct {
	ID          string // unique, e.g. "TheRegistrar"
	PwdHash     []byte // Argon2id(password, SaltAuth)
	SaltAuth    []byte
	Superuser   bool
	AllowedTLDs []string // empty means every TLD
	CreatedAt   time.Time
}

// AllowsTLD reports whether the registrar may operate under tld.
func (r Registrar) AllowsTLD(tld string) bool { return r.Superuser || allows(r.AllowedTLDs, tld) }
