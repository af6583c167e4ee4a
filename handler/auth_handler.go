package handler

import (
	"net/http"
	"time"

	"go-bank-gate/common"
	"go-bank-gate/model"
	"go-bank-gate/service"
)

// CookieSettings controls how the refresh token cookie is written.
type CookieSettings struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

type AuthHandler struct {
	Service *service.AuthService
	Cookie  CookieSettings
}

func NewAuthHandler(authService *service.AuthService, cookie CookieSettings) *AuthHandler {
	return &AuthHandler{Service: authService, Cookie: cookie}
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    token,
		Path:     h.Cookie.Path,
		MaxAge:   int(h.Cookie.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Path:     h.Cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Login godoc
// @Summary      Log in
// @Description  Authenticates with email and password. The refresh token is set as an HTTP-only cookie.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials  body      model.LoginRequest  true  "Login credentials"
// @Success      200          {object}  model.SessionBundle
// @Failure      400          {object}  common.AppError
// @Failure      401          {object}  common.AppError
// @Failure      429          {object}  common.TooManyRequestsError
// @Failure      503          {object}  common.AppError
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.LoginRequest
	if appErr := common.ValidateAndDecode(r, &req); appErr != nil {
		return appErr
	}

	bundle, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return toAppError(err, "Invalid credentials")
	}

	h.setRefreshCookie(w, bundle.RefreshToken)
	common.WriteJSON(w, http.StatusOK, bundle)
	return nil
}

// Refresh godoc
// @Summary      Rotate the refresh token
// @Description  Redeems the refresh token cookie once and returns a new session.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  model.SessionBundle
// @Failure      401  {object}  common.AppError
// @Failure      429  {object}  common.TooManyRequestsError
// @Failure      503  {object}  common.AppError
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) *common.AppError {
	cookie, err := r.Cookie(h.Cookie.Name)
	if err != nil || cookie.Value == "" {
		return common.NewAppError(http.StatusUnauthorized, "Refresh token not found", nil)
	}

	bundle, err := h.Service.RotateRefreshToken(r.Context(), cookie.Value)
	if err != nil {
		appErr := toAppError(err, "Invalid or expired token")
		if appErr.Code == http.StatusUnauthorized {
			h.clearRefreshCookie(w)
		}
		return appErr
	}

	h.setRefreshCookie(w, bundle.RefreshToken)
	common.WriteJSON(w, http.StatusOK, bundle)
	return nil
}

// Logout godoc
// @Summary      Log out
// @Description  Revokes the access token and the session named by the refresh cookie, even an expired one. Every session is revoked only when the cookie is absent or not authentic.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.MessageResponse
// @Failure      401  {object}  common.AppError
// @Failure      503  {object}  common.AppError
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) *common.AppError {
	userID, ok := UserIDFromContext(r.Context())
	accessToken, _ := r.Context().Value(AccessTokenKey).(string)
	if !ok || accessToken == "" {
		return common.NewAppError(http.StatusUnauthorized, "Invalid or expired token", nil)
	}

	var refreshTokenID string
	if cookie, err := r.Cookie(h.Cookie.Name); err == nil && cookie.Value != "" {
		// An expired but authentic cookie still names one session.
		if claims, err := h.Service.Tokens().RefreshTokenIdentity(cookie.Value); err == nil && claims.Subject == userID {
			refreshTokenID = claims.TokenID()
		}
	}

	if err := h.Service.Logout(r.Context(), userID, accessToken, refreshTokenID); err != nil {
		return toAppError(err, "Invalid or expired token")
	}

	h.clearRefreshCookie(w)
	common.WriteJSON(w, http.StatusOK, model.MessageResponse{Message: "Logged out successfully"})
	return nil
}

// Me godoc
// @Summary      Current user
// @Description  Returns the identity carried by the access token.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  model.Identity
// @Failure      401  {object}  common.AppError
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) *common.AppError {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		return common.NewAppError(http.StatusUnauthorized, "Invalid or expired token", nil)
	}

	identity := model.Identity{UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Unix()
	}
	common.WriteJSON(w, http.StatusOK, identity)
	return nil
}
