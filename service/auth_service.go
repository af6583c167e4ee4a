package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-bank-gate/logger"
	"go-bank-gate/model"
	"go-bank-gate/repository"
	"go-bank-gate/store"

	"github.com/sirupsen/logrus"
)

const (
	refreshKeyPrefix   = "refresh:"
	blacklistKeyPrefix = "blacklist:"
)

// AuthService owns the token lifecycle: login, refresh rotation, logout and
// blacklist lookups. All persistent state lives in the coordination store.
type AuthService struct {
	tokens    *TokenManager
	store     store.Store
	users     repository.IUserRepository
	passwords PasswordVerifier
}

func NewAuthService(tokens *TokenManager, st store.Store, users repository.IUserRepository, passwords PasswordVerifier) *AuthService {
	return &AuthService{
		tokens:    tokens,
		store:     st,
		users:     users,
		passwords: passwords,
	}
}

// Tokens exposes the signing primitive for callers that only need to verify.
func (s *AuthService) Tokens() *TokenManager {
	return s.tokens
}

func refreshKey(subjectID, tokenID string) string {
	return refreshKeyPrefix + subjectID + ":" + tokenID
}

func blacklistKey(token string) string {
	return blacklistKeyPrefix + token
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Login authenticates email/password and opens a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.SessionBundle, error) {
	log := logger.Log.WithField("email", email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Info("Login rejected: invalid credentials")
			return nil, ErrAuthInvalid
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		log.WithField("user_id", user.ID).Info("Login rejected: account inactive")
		return nil, ErrAccountInactive
	}

	if !s.passwords.CheckPasswordHash(password, user.PasswordHash) {
		log.Info("Login rejected: invalid credentials")
		return nil, ErrAuthInvalid
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("Failed to record last login")
	}

	bundle, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	log.WithField("user_id", user.ID).Info("User logged in")
	return bundle, nil
}

// RotateRefreshToken redeems a refresh token exactly once and returns a new
// session. The old record is deleted before anything new is issued, so a
// crash after the delete only forces a new login and never leaves two live
// refresh tokens.
func (s *AuthService) RotateRefreshToken(ctx context.Context, presented string) (*model.SessionBundle, error) {
	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return nil, err
	}

	log := logger.Log.WithFields(logrus.Fields{
		"user_id":  claims.Subject,
		"token_id": claims.TokenID(),
	})
	key := refreshKey(claims.Subject, claims.TokenID())

	stored, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("Refresh token not on record: rotated, revoked or replayed")
			return nil, ErrAuthInvalid
		}
		return nil, storeFailure("read refresh token", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		log.Warn("Refresh token does not match stored value")
		return nil, ErrAuthInvalid
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrAuthInvalid
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		log.Info("Refresh rejected: account inactive")
		return nil, ErrAccountInactive
	}

	// Commit point. Only the caller whose delete actually removed the key
	// may continue; concurrent redemptions of the same token lose here.
	removed, err := s.store.Delete(ctx, key)
	if err != nil {
		return nil, storeFailure("delete refresh token", err)
	}
	if removed == 0 {
		log.Warn("Refresh token redeemed concurrently")
		return nil, ErrAuthInvalid
	}

	bundle, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Info("Refresh token rotated")
	return bundle, nil
}

// Logout blacklists accessToken for the rest of its lifetime and revokes
// refresh tokens. With a refreshTokenID only that session is revoked;
// without one every session of the subject is.
func (s *AuthService) Logout(ctx context.Context, subjectID, accessToken, refreshTokenID string) error {
	log := logger.Log.WithField("user_id", subjectID)

	ttl := s.tokens.AccessTTL()
	if claims, err := s.tokens.VerifyAccessToken(accessToken); err == nil {
		ttl = s.tokens.remaining(claims)
	}
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		if err := s.store.SetWithTTL(ctx, blacklistKey(accessToken), subjectID, ttl); err != nil {
			return storeFailure("blacklist access token", err)
		}
	}

	if refreshTokenID != "" {
		if _, err := s.store.Delete(ctx, refreshKey(subjectID, refreshTokenID)); err != nil {
			return storeFailure("delete refresh token", err)
		}
		log.WithField("token_id", refreshTokenID).Info("User logged out of one session")
		return nil
	}

	n, err := s.store.DeleteByPattern(ctx, refreshKey(globEscaper.Replace(subjectID), "*"))
	if err != nil {
		return storeFailure("delete refresh tokens", err)
	}
	log.WithField("revoked", n).Info("User logged out of all sessions")
	return nil
}

// IsAccessTokenBlacklisted reports whether token was revoked by a logout.
func (s *AuthService) IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	_, err := s.store.Get(ctx, blacklistKey(token))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, storeFailure("read blacklist", err)
}

// Authenticate verifies an access token and rejects it if blacklisted.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.AccessClaims, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.IsAccessTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrAuthInvalid
	}
	return claims, nil
}

func (s *AuthService) openSession(ctx context.Context, user *model.User) (*model.SessionBundle, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, tokenID, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetWithTTL(ctx, refreshKey(user.ID, tokenID), refreshToken, s.tokens.RefreshTTL()); err != nil {
		return nil, storeFailure("persist refresh token", err)
	}

	return &model.SessionBundle{
		AccessToken:  accessToken,
		ExpiresIn:    int(s.tokens.AccessTTL() / time.Second),
		User:         user.Summary(),
		RefreshToken: refreshToken,
	}, nil
}
