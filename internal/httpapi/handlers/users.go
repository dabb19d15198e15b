package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"github.com/suPer8Hu/gopherchat/internal/observability"
	"gorm.io/gorm"
)

type createUserReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func userIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) findUser(c *gin.Context, id uint64) (*models.User, bool) {
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "user not found")
			return nil, false
		}
		observability.LoggerFromContext(c.Request.Context()).Error("get user", "user_id", id, "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "db error")
		return nil, false
	}
	return &user, true
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "name, email and password (min 6) required")
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var cnt int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&cnt).Error; err != nil {
		observability.LoggerFromContext(ctx).Error("check email", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "db error")
		return
	}
	if cnt > 0 {
		common.Fail(c, http.StatusBadRequest, common.CodeConflict, "email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "failed to hash password")
		return
	}

	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
	}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		// lost a race with a concurrent signup for the same email
		common.Fail(c, http.StatusBadRequest, common.CodeConflict, "failed to create user (maybe email already exists)")
		return
	}

	common.Created(c, gin.H{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

func (h *Handler) ListUsers(c *gin.Context) {
	users := []models.User{}
	if err := h.DB.WithContext(c.Request.Context()).Order("id ASC").Find(&users).Error; err != nil {
		observability.LoggerFromContext(c.Request.Context()).Error("list users", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "db error")
		return
	}
	common.OK(c, gin.H{"users": users})
}

func (h *Handler) GetUserByID(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	user, ok := h.findUser(c, id)
	if !ok {
		return
	}
	common.OK(c, user)
}

type validateUserReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ValidateUser checks credentials. A mismatch is a normal answer
// (is_valid=false), not an error; a match also returns a bearer token.
func (h *Handler) ValidateUser(c *gin.Context) {
	var req validateUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "email and password required")
		return
	}
	ctx := c.Request.Context()
	invalid := gin.H{"is_valid": false, "message": "Invalid email or password"}

	var user models.User
	err := h.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.OK(c, invalid)
		return
	}
	if err != nil {
		observability.LoggerFromContext(ctx).Error("validate user", "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "db error")
		return
	}

	match, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("stored password hash unreadable", "user_id", user.ID, "error", err)
	}
	if !match {
		common.OK(c, invalid)
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.JWTTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "failed to sign token")
		return
	}
	common.OK(c, gin.H{
		"is_valid": true,
		"message":  "User validated successfully",
		"id":       user.ID,
		"name":     user.Name,
		"email":    user.Email,
		"token":    token,
	})
}

type updatePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req updatePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "old_password and new_password (min 6) required")
		return
	}
	user, ok := h.findUser(c, id)
	if !ok {
		return
	}

	match, _ := auth.CheckPassword(user.PasswordHash, req.OldPassword)
	if !match {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "failed to hash password")
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Model(user).Update("password_hash", hash).Error; err != nil {
		observability.LoggerFromContext(c.Request.Context()).Error("update password", "user_id", id, "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "db error")
		return
	}
	common.OK(c, gin.H{"message": "Password updated successfully"})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, common.CodeUnauthorized, "unauthorized")
		return
	}
	user, ok := h.findUser(c, uid)
	if !ok {
		return
	}
	common.OK(c, user)
}
