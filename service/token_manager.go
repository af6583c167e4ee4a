package service

import (
	"fmt"
	"time"

	"go-bank-gate/config"
	"go-bank-gate/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var signingMethod = jwt.SigningMethodHS256

// TokenManager signs and verifies access and refresh tokens. It never touches
// the coordination store.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	return &TokenManager{
		secret:     []byte(cfg.SecretKey),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccessToken signs a short-lived token for user. Each token carries a
// random jti so two tokens minted in the same second never collide, which
// keeps a blacklisted token from shadowing a fresh one.
func (m *TokenManager) IssueAccessToken(user *model.User) (string, error) {
	now := m.now()
	claims := &model.AccessClaims{
		Email:     user.Email,
		TokenType: model.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken signs a long-lived token and returns it with its token id.
// Persisting the refresh record is the caller's job.
func (m *TokenManager) IssueRefreshToken(user *model.User) (string, string, error) {
	now := m.now()
	tokenID := uuid.NewString()
	claims := &model.RefreshClaims{
		TokenType: model.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, tokenID, nil
}

// VerifyAccessToken checks signature, expiry and token type. Every failure is
// reported as ErrAuthInvalid.
func (m *TokenManager) VerifyAccessToken(token string) (*model.AccessClaims, error) {
	claims := &model.AccessClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != model.TokenTypeAccess || claims.Subject == "" {
		return nil, ErrAuthInvalid
	}
	return claims, nil
}

// VerifyRefreshToken is VerifyAccessToken for the refresh claim shape.
func (m *TokenManager) VerifyRefreshToken(token string) (*model.RefreshClaims, error) {
	claims := &model.RefreshClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != model.TokenTypeRefresh || claims.Subject == "" || claims.TokenID() == "" {
		return nil, ErrAuthInvalid
	}
	return claims, nil
}

// RefreshTokenIdentity checks signature, algorithm and token type of a refresh
// token but ignores its expiry. It lets logout name the session of a cookie
// that has already expired. Forged or malformed tokens yield ErrAuthInvalid.
func (m *TokenManager) RefreshTokenIdentity(token string) (*model.RefreshClaims, error) {
	claims := &model.RefreshClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrAuthInvalid
	}
	if claims.TokenType != model.TokenTypeRefresh || claims.Subject == "" || claims.TokenID() == "" {
		return nil, ErrAuthInvalid
	}
	return claims, nil
}

func (m *TokenManager) keyFunc(*jwt.Token) (interface{}, error) {
	return m.secret, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return ErrAuthInvalid
	}
	return nil
}

// remaining returns how long a still-valid access token has left to live.
func (m *TokenManager) remaining(claims *model.AccessClaims) time.Duration {
	if claims.ExpiresAt == nil {
		return m.accessTTL
	}
	return claims.ExpiresAt.Sub(m.now())
}
