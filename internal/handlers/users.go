package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medical-office-server/internal/models"
	"medical-office-server/internal/repository"
	"medical-office-server/internal/services"
	"medical-office-server/internal/utils"
)

type tokenAuditor interface {
	ListTokens(ctx context.Context, ownerID string) ([]services.TokenAuditEntry, error)
}

// UserHandler handles user-related requests (typically admin operations).
type UserHandler struct {
	users  userStore
	audit  tokenAuditor
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users userStore, audit tokenAuditor, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, audit: audit, logger: logger}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role" binding:"required"`
}

// CreateUser handles creating a new user (admin).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	user := models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      role,
	}
	if err := user.SetPassword(req.Password); err != nil {
		h.logger.Error("hash password failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to create user")
		return
	}

	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			utils.BadRequest(c, "User with this email already exists")
			return
		}
		h.logger.Error("create user failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to create user")
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin), optionally filtered by ?role=.
func (h *UserHandler) GetUsers(c *gin.Context) {
	var role models.Role
	if raw := c.Query("role"); raw != "" {
		parsed, err := models.ParseRole(raw)
		if err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		role = parsed
	}
	h.listUsers(c, role, "Users fetched successfully")
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, ok := h.loadUser(c, c.Param("id"))
	if !ok {
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
type UpdateUserRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" binding:"omitempty,email"`
	Role      string `json:"role"`
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, ok := h.loadUser(c, c.Param("id"))
	if !ok {
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Role != "" {
		role, err := models.ParseRole(req.Role)
		if err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		user.Role = role
	}

	if err := h.users.Update(c.Request.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			utils.BadRequest(c, "New email is already in use")
			return
		}
		h.logger.Error("update user failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to update user")
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user by ID (admin). Users with refresh tokens
// or appointments on record cannot be deleted.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.NotFound(c, "User not found")
			return
		}
		if errors.Is(err, repository.ErrUserInUse) {
			utils.Conflict(c, "User has sessions or appointments on record")
			return
		}
		h.logger.Error("delete user failed", zap.Error(err))
		utils.InternalServerError(c, "Failed to delete user")
		return
	}
	utils.Success(c, "User deleted successfully", nil)
}

// GetDoctors handles fetching all users with the doctor role.
// Accessible to patients for booking appointments.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	h.listUsers(c, models.RoleDoctor, "Doctors fetched successfully")
}

// GetDoctorPatients lists all patients for doctors and admins.
func (h *UserHandler) GetDoctorPatients(c *gin.Context) {
	h.listUsers(c, models.RolePatient, "Patients fetched successfully")
}

// GetRefreshTokens returns a user's refresh tokens with their revocation
// history (admin).
func (h *UserHandler) GetRefreshTokens(c *gin.Context) {
	user, ok := h.loadUser(c, c.Param("id"))
	if !ok {
		return
	}

	entries, err := h.audit.ListTokens(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("list refresh tokens failed", zap.String("user_id", user.ID), zap.Error(err))
		utils.InternalServerError(c, "Failed to fetch refresh tokens")
		return
	}
	utils.Success(c, "Refresh tokens fetched successfully", entries)
}

func (h *UserHandler) loadUser(c *gin.Context, id string) (*models.User, bool) {
	user, err := h.users.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.NotFound(c, "User not found")
			return nil, false
		}
		h.logger.Error("load user failed", zap.String("user_id", id), zap.Error(err))
		utils.InternalServerError(c, "Failed to fetch user")
		return nil, false
	}
	return user, true
}

func (h *UserHandler) listUsers(c *gin.Context, role models.Role, message string) {
	users, err := h.users.List(c.Request.Context(), role)
	if err != nil {
		h.logger.Error("list users failed", zap.String("role", string(role)), zap.Error(err))
		utils.InternalServerError(c, "Failed to fetch users")
		return
	}

	sanitized := make([]models.UserSanitized, len(users))
	for i, u := range users {
		sanitized[i] = u.Sanitize()
	}
	utils.Success(c, message, sanitized)
}
