package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/tld-registry/internal/crypto"
	"github.com/and161185/tld-registry/internal/errs"
	"github.com/and161185/tld-registry/internal/limiter"
	"github.com/and161185/tld-registry/internal/metrics"
	"github.com/and161185/tld-registry/internal/model"
	"github.com/and161185/tld-registry/internal/repository"
)

// AuthService defines registrar account and session operations.
type AuthService interface {
	// Register creates a registrar account with secure password hashing.
	Register(ctx context.Context, id, password string, superuser bool, tlds []string) error
	// LoginWithIP applies rate-limiting and authenticates the registrar.
	LoginWithIP(ctx context.Context, id, password, ip string) (model.Tokens, model.Registrar, error)
	// Authenticate verifies an access token and returns the caller it names.
	Authenticate(token string) (Caller, error)
}

type AuthServiceImpl struct {
	registrars repository.RegistrarRepository
	signKey    []byte
	accessTTL  time.Duration
	lim        limiter.Limiter
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewAuthService constructs AuthService with required dependencies. m may be nil.
func NewAuthService(registrars repository.RegistrarRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter, m *metrics.Metrics) *AuthServiceImpl {
	return &AuthServiceImpl{registrars: registrars, signKey: signKey, accessTTL: accessTTL, lim: lim, metrics: m, now: time.Now}
}

// registrarClaims carries the caller's privileges so commands need no account lookup.
type registrarClaims struct {
	jwt.RegisteredClaims
	Superuser bool     `json:"su,omitempty"`
	TLDs      []string `json:"tlds,omitempty"`
}

// Register creates a new registrar record with a per-account salt.
func (s *AuthServiceImpl) Register(ctx context.Context, id, password string, superuser bool, tlds []string) error {
	if id == "" || password == "" {
		return errors.New("empty registrar id/password")
	}
	saltAuth, err := pkgcrypto.RandBytes(16)
	if err != nil {
		return err
	}
	r := &model.Registrar{
		ID:          id,
		PwdHash:     pkgcrypto.HashPassword([]byte(password), saltAuth),
		SaltAuth:    saltAuth,
		Superuser:   superuser,
		AllowedTLDs: tlds,
		CreatedAt:   s.now().UTC(),
	}
	return s.registrars.Create(ctx, r)
}

// LoginWithIP authenticates with rate limiting by (registrar, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, id, password, ip string) (model.Tokens, model.Registrar, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, id, ipHash)
	if err != nil {
		return model.Tokens{}, model.Registrar{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Registrar{}, errs.ErrRateLimited
	}

	r, err := s.registrars.GetByID(ctx, id)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), r.SaltAuth, r.PwdHash) {
		s.metrics.IncrementLoginFailures()
		if blocked, _, ferr := s.lim.Failure(ctx, id, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Registrar{}, errs.ErrRateLimited
		}
		// unknown registrar and wrong password look the same
		return model.Tokens{}, model.Registrar{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, id, ipHash)

	access, exp, err := s.issueAccessToken(*r)
	if err != nil {
		return model.Tokens{}, model.Registrar{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *r, nil
}

// issueAccessToken creates a signed HS256 JWT for the registrar.
func (s *AuthServiceImpl) issueAccessToken(r model.Registrar) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := registrarClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   r.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Superuser: r.Superuser,
		TLDs:      r.AllowedTLDs,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// Authenticate verifies HS256 and expiry, then maps claims to a Caller.
func (s *AuthServiceImpl) Authenticate(token string) (Caller, error) {
	var claims registrarClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Caller{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Caller{}, fmt.Errorf("%w: empty subject", errs.ErrUnauthorized)
	}
	return Caller{RegistrarID: claims.Subject, Superuser: claims.Superuser, AllowedTLDs: claims.TLDs}, nil
}
