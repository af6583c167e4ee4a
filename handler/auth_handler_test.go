package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-bank-gate/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCookie = CookieSettings{
	Name:   "refreshToken",
	Path:   "/api/auth",
	Secure: true,
	MaxAge: 7 * 24 * time.Hour,
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == testCookie.Name {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", testCookie.Name)
	return nil
}

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)

	body := `{"email":"jane@example.com","password":"` + testPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rr := httptest.NewRecorder()

	ErrorHandlingMiddleware(h.Login).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var bundle map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bundle))
	assert.NotEmpty(t, bundle["accessToken"])
	assert.EqualValues(t, 900, bundle["expiresIn"])
	assert.NotContains(t, bundle, "refreshToken")
	assert.Equal(t, "Jane", bundle["user"].(map[string]interface{})["firstName"])

	cookie := refreshCookie(t, rr)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, "/api/auth", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 7*24*60*60, cookie.MaxAge)
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{name: "malformed body", body: `{`, wantCode: http.StatusBadRequest, wantMsg: "Invalid request body"},
		{name: "invalid email", body: `{"email":"jane","password":"long-enough"}`, wantCode: http.StatusBadRequest},
		{name: "wrong password", body: `{"email":"jane@example.com","password":"wrong-password"}`, wantCode: http.StatusUnauthorized, wantMsg: "Invalid credentials"},
		{name: "short password is a credential failure", body: `{"email":"jane@example.com","password":"short"}`, wantCode: http.StatusUnauthorized, wantMsg: "Invalid credentials"},
		{name: "empty password", body: `{"email":"jane@example.com","password":""}`, wantCode: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()

			ErrorHandlingMiddleware(h.Login).ServeHTTP(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			if tc.wantMsg != "" {
				var appErr map[string]interface{}
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &appErr))
				assert.Equal(t, tc.wantMsg, appErr["message"])
			}
			assert.Empty(t, rr.Result().Cookies())
		})
	}
}

func TestAuthHandler_Login_StoreDown(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)
	env.mr.Close()

	body := `{"email":"jane@example.com","password":"` + testPassword + `"}`
	rr := httptest.NewRecorder()
	ErrorHandlingMiddleware(h.Login).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAuthHandler_Refresh(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)
	bundle := env.login(t)

	refresh := func(value string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		if value != "" {
			req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: value})
		}
		rr := httptest.NewRecorder()
		ErrorHandlingMiddleware(h.Refresh).ServeHTTP(rr, req)
		return rr
	}

	rr := refresh(bundle.RefreshToken)
	require.Equal(t, http.StatusOK, rr.Code)
	rotated := refreshCookie(t, rr)
	assert.NotEqual(t, bundle.RefreshToken, rotated.Value)

	replay := refresh(bundle.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Equal(t, -1, refreshCookie(t, replay).MaxAge)

	missing := refresh("")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)

	again := refresh(rotated.Value)
	assert.Equal(t, http.StatusOK, again.Code)
}

func authedRequest(t *testing.T, env *testEnv, method, target, accessToken string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	claims, err := env.auth.Authenticate(context.Background(), accessToken)
	require.NoError(t, err)
	return withIdentity(req, claims, accessToken)
}

func TestAuthHandler_Logout_SingleSession(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)
	first := env.login(t)
	second := env.login(t)

	req := authedRequest(t, env, http.MethodPost, "/api/auth/logout", first.AccessToken)
	req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: first.RefreshToken})
	rr := httptest.NewRecorder()
	ErrorHandlingMiddleware(h.Logout).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rr.Body.String())
	assert.Equal(t, -1, refreshCookie(t, rr).MaxAge)

	_, err := env.auth.Authenticate(context.Background(), first.AccessToken)
	assert.Error(t, err)
	_, err = env.auth.RotateRefreshToken(context.Background(), first.RefreshToken)
	assert.Error(t, err)
	_, err = env.auth.RotateRefreshToken(context.Background(), second.RefreshToken)
	assert.NoError(t, err, "other sessions survive a single-session logout")
}

func TestAuthHandler_Logout_AllSessionsWithoutCookie(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)
	first := env.login(t)
	second := env.login(t)

	req := authedRequest(t, env, http.MethodPost, "/api/auth/logout", first.AccessToken)
	req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: "not-a-jwt"})
	rr := httptest.NewRecorder()
	ErrorHandlingMiddleware(h.Logout).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	_, err := env.auth.RotateRefreshToken(context.Background(), second.RefreshToken)
	assert.Error(t, err)
}

func TestAuthHandler_Logout_ExpiredCookieRevokesOnlyItsSession(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)
	first := env.login(t)
	second := env.login(t)

	firstClaims, err := env.auth.Tokens().VerifyRefreshToken(first.RefreshToken)
	require.NoError(t, err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &model.RefreshClaims{
		TokenType: model.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        firstClaims.TokenID(),
			Subject:   env.user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-8 * 24 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := authedRequest(t, env, http.MethodPost, "/api/auth/logout", first.AccessToken)
	req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: expired})
	rr := httptest.NewRecorder()
	ErrorHandlingMiddleware(h.Logout).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	secondClaims, err := env.auth.Tokens().VerifyRefreshToken(second.RefreshToken)
	require.NoError(t, err)
	var refreshKeys []string
	for _, k := range env.mr.Keys() {
		if strings.HasPrefix(k, "refresh:") {
			refreshKeys = append(refreshKeys, k)
		}
	}
	assert.Equal(t, []string{"refresh:" + env.user.ID + ":" + secondClaims.TokenID()}, refreshKeys)

	_, err = env.auth.RotateRefreshToken(context.Background(), second.RefreshToken)
	assert.NoError(t, err, "an expired cookie must not log out other sessions")
}

func TestAuthHandler_Me(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.auth, testCookie)
	bundle := env.login(t)

	rr := httptest.NewRecorder()
	ErrorHandlingMiddleware(h.Me).ServeHTTP(rr, authedRequest(t, env, http.MethodGet, "/api/auth/me", bundle.AccessToken))

	require.Equal(t, http.StatusOK, rr.Code)
	var identity model.Identity
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &identity))
	assert.Equal(t, env.user.ID, identity.UserID)
	assert.Equal(t, env.user.Email, identity.Email)
	assert.Greater(t, identity.ExpiresAt, time.Now().Unix())

	rr = httptest.NewRecorder()
	ErrorHandlingMiddleware(h.Me).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
