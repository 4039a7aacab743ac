package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/google/uuid"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/cache"
	"github.com/expense-tracker/backend/logging"
)

const tokenSubject = "Expense Tracker App"

// KeySize is the required length of the token secret: A128CBC-HS256
// with direct encryption takes a 256-bit key.
const KeySize = 32

// tokenClaims is the encrypted token payload. The whole payload is
// opaque to clients; only the server key can read it.
type tokenClaims struct {
	Subject   string `json:"sub"`
	TokenID   string `json:"jti"`
	Email     string `json:"email"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// IssuedToken pairs the serialized token with its expiry instant so
// callers can set cookie/header lifetimes without re-parsing it.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer mints encrypted bearer tokens and memoizes them per
// principal. The cache entry lives exactly as long as the token itself
// (a fixed deadline, never extended by reads), so a login burst from
// the same principal inside the token window reuses one token instead
// of paying for encryption every time.
type TokenIssuer struct {
	key    []byte
	ttl    time.Duration
	issued *cache.LRU[IssuedToken]

	now func() time.Time
}

func NewTokenIssuer(key []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", KeySize, len(key))
	}
	return &TokenIssuer{
		key:    key,
		ttl:    ttl,
		issued: cache.NewLRU[IssuedToken](0, ttl),
		now:    time.Now,
	}, nil
}

// Issue returns a token for the principal, reusing a cached still-valid
// one when present.
func (i *TokenIssuer) Issue(principal Principal) (IssuedToken, error) {
	if cached, ok := i.issued.Get(principal.Email); ok {
		return cached, nil
	}

	// The exp claim carries whole seconds; truncate the deadline so the
	// cache entry and the claim expire at the same instant.
	now := i.now()
	expiresAt := now.Add(i.ttl).Truncate(time.Second)

	claims := tokenClaims{
		Subject:   tokenSubject,
		TokenID:   uuid.NewString(),
		Email:     principal.Email,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to marshal token claims: %w", err)
	}

	encrypter, err := jose.NewEncrypter(
		jose.A128CBC_HS256,
		jose.Recipient{Algorithm: jose.DIRECT, Key: i.key},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to build token encrypter: %w", err)
	}

	object, err := encrypter.Encrypt(payload)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to encrypt token: %w", err)
	}

	raw, err := object.CompactSerialize()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to serialize token: %w", err)
	}

	token := IssuedToken{Token: raw, ExpiresAt: expiresAt}
	i.issued.SetUntil(principal.Email, token, expiresAt)

	logging.Logger.Debugf("issued token for %s, expires %s", principal.Email, expiresAt.UTC().Format(time.RFC3339))
	return token, nil
}

// TokenValidator parses and decrypts inbound tokens and resolves the
// embedded email to a user id. It is the one place per request where
// the email-to-id binding is established.
type TokenValidator struct {
	key       []byte
	directory *Directory

	now func() time.Time
}

func NewTokenValidator(key []byte, directory *Directory) (*TokenValidator, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", KeySize, len(key))
	}
	return &TokenValidator{key: key, directory: directory, now: time.Now}, nil
}

// Validate returns the principal and user id for a raw token. Failure
// modes: ErrExpiredToken when past (or exactly at) the expiry instant,
// ErrMalformedToken for any parse/decrypt/claims problem, and
// ErrUnknownUser when the email no longer resolves to a user (e.g. a
// deleted account holding a still-unexpired token).
func (v *TokenValidator) Validate(ctx context.Context, rawToken string) (Principal, int64, error) {
	object, err := jose.ParseEncrypted(rawToken)
	if err != nil {
		return Principal{}, 0, fmt.Errorf("%w: %v", appErrors.ErrMalformedToken, err)
	}

	payload, err := object.Decrypt(v.key)
	if err != nil {
		return Principal{}, 0, fmt.Errorf("%w: %v", appErrors.ErrMalformedToken, err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Principal{}, 0, fmt.Errorf("%w: %v", appErrors.ErrMalformedToken, err)
	}
	if claims.Email == "" || claims.ExpiresAt == 0 {
		return Principal{}, 0, fmt.Errorf("%w: missing claims", appErrors.ErrMalformedToken)
	}

	expiresAt := time.Unix(claims.ExpiresAt, 0)
	if !v.now().Before(expiresAt) {
		return Principal{}, 0, fmt.Errorf("%w: expired at %s", appErrors.ErrExpiredToken, expiresAt.UTC().Format(time.RFC3339))
	}

	user, err := v.lookupUser(ctx, claims.Email)
	if err != nil {
		return Principal{}, 0, err
	}

	return Principal{Email: claims.Email}, user.ID, nil
}

// lookupUser does the cache-then-store resolution, without the
// authenticator's retry policy: tokens are short-lived and re-issued
// per login, so staleness tolerance buys nothing here.
func (v *TokenValidator) lookupUser(ctx context.Context, email string) (User, error) {
	if user, ok := v.directory.Peek(email); ok {
		return user, nil
	}

	user, err := v.directory.LoadByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			return User{}, fmt.Errorf("%w: %s", appErrors.ErrUnknownUser, email)
		}
		return User{}, err
	}
	return user, nil
}
