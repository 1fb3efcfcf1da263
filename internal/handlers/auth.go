package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medical-office-server/internal/middleware"
	"medical-office-server/internal/models"
	"medical-office-server/internal/repository"
	"medical-office-server/internal/services"
	"medical-office-server/internal/utils"
)

const refreshCookieName = "refresh_token"

// invalidSession is the only message a failed refresh ever shows, so callers
// cannot tell expiry from a detected replay.
const invalidSession = "invalid or expired session"

type sessionService interface {
	Authenticate(ctx context.Context, email, password, ipAddress string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshValue, ipAddress string) (*services.TokenPair, error)
	Revoke(ctx context.Context, refreshValue, ipAddress string, actor models.Actor) error
}

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, role models.Role) ([]models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	sessions      sessionService
	users         userStore
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions sessionService, users userStore, secureCookies bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, users: users, secureCookies: secureCookies, logger: logger}
}

// RegisterRequest represents the request body for user registration.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role"`
}

// Register handles user registration. Accounts default to the patient role;
// admins are only created by other admins.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	role := models.RolePatient
	if req.Role != "" {
		parsed, err := models.ParseRole(req.Role)
		if err != nil || parsed == models.RoleAdmin {
			utils.BadRequest(c, "Role must be patient or doctor")
			return
		}
		role = parsed
	}

	user := models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      role,
	}
	if err := user.SetPassword(req.Password); err != nil {
		h.logger.Error("hash password failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to register user")
		return
	}

	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			utils.BadRequest(c, "User with this email already exists")
			return
		}
		h.logger.Error("create user failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to register user")
		return
	}

	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	pair, err := h.sessions.Authenticate(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			utils.Unauthorized(c, "Invalid email or password")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to log in")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         pair.User.Sanitize(),
	})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates the presented refresh token. The cookie wins over the
// request body when both are present.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	value, ok := h.presentedRefreshToken(c)
	if !ok {
		return
	}

	pair, err := h.sessions.Refresh(c.Request.Context(), value, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenNotFound),
			errors.Is(err, services.ErrTokenExpired),
			errors.Is(err, services.ErrTokenReuseDetected):
			h.logger.Info("refresh rejected", zap.String("client_ip", c.ClientIP()), zap.Error(err))
			h.clearRefreshCookie(c)
			utils.Unauthorized(c, invalidSession)
		case errors.Is(err, services.ErrConcurrentTokenUpdate):
			utils.Conflict(c, "Session is being refreshed by another request, retry")
		default:
			h.logger.Error("refresh failed", zap.Error(err))
			utils.InternalServerError(c, "Failed to refresh session")
		}
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)
	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Revoke revokes a single refresh token owned by the caller.
func (h *AuthHandler) Revoke(c *gin.Context) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	value, ok := h.presentedRefreshToken(c)
	if !ok {
		return
	}

	err := h.sessions.Revoke(c.Request.Context(), value, c.ClientIP(), actor)
	switch {
	case err == nil:
		h.clearRefreshCookie(c)
		utils.NoContent(c)
	case errors.Is(err, services.ErrTokenNotFound):
		utils.NotFound(c, "Refresh token not found")
	case errors.Is(err, services.ErrTokenAlreadyRevoked):
		utils.BadRequest(c, "Refresh token is already revoked")
	case errors.Is(err, services.ErrTokenExpired):
		utils.BadRequest(c, "Refresh token has expired")
	default:
		h.logger.Error("revoke failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to revoke refresh token")
	}
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.NotFound(c, "User profile not found")
			return
		}
		h.logger.Error("load profile failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to load profile")
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.NotFound(c, "User not found")
			return
		}
		h.logger.Error("load profile failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to update profile")
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.PhoneNumber != "" {
		user.PhoneNumber = req.PhoneNumber
	}

	if err := h.users.Update(c.Request.Context(), user); err != nil {
		h.logger.Error("update profile failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to update profile")
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

func (h *AuthHandler) presentedRefreshToken(c *gin.Context) (string, bool) {
	if value, err := c.Cookie(refreshCookieName); err == nil && value != "" {
		return value, true
	}
	var req RefreshTokenRequest
	if !utils.BindAndValidate(c, &req) {
		return "", false
	}
	return req.RefreshToken, true
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, expiresAt time.Time) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, value, int(time.Until(expiresAt).Seconds()), "/", "", h.secureCookies, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/", "", h.secureCookies, true)
}
