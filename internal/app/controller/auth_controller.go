package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/service"
	apperrors "github.com/janicogyle/ccs-membership-sub001/internal/errors"
	"github.com/janicogyle/ccs-membership-sub001/internal/metrics"
	"github.com/janicogyle/ccs-membership-sub001/internal/middleware"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
)

const (
	msgResetRequested = "If the email is registered, a password reset link has been sent"
	msgResetConfirmed = "Password has been reset"
	msgPasswordChange = "Password has been changed"
	msgInvalidBody    = "request body is not valid JSON"
)

type AuthController struct {
	authService          service.AuthService
	passwordResetService service.PasswordResetService
	metrics              metrics.Recorder
}

func NewAuthController(
	authService service.AuthService,
	passwordResetService service.PasswordResetService,
	rec metrics.Recorder,
) *AuthController {
	return &AuthController{
		authService:          authService,
		passwordResetService: passwordResetService,
		metrics:              rec,
	}
}

// Field presence and password length are checked by the services so every
// caller gets the same error codes; binding only rejects malformed JSON.

type RegisterRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	StudentNumber string `json:"student_number"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Register handles account creation
// POST /api/v1/auth/register
func (ctrl *AuthController) Register(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid registration request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, msgInvalidBody)
		return
	}

	account, token, err := ctrl.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:         req.Email,
		Password:      req.Password,
		Name:          req.Name,
		StudentNumber: req.StudentNumber,
	})
	if err != nil {
		respondError(c, log, "Registration failed", err)
		return
	}

	log.Info("Account registered successfully", map[string]interface{}{
		"account_id": account.ID,
	})

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"account":      account.Descriptor(),
		"access_token": token,
	})
}

// Login checks credentials and issues an access token
// POST /api/v1/auth/login
func (ctrl *AuthController) Login(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid login request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, msgInvalidBody)
		return
	}

	account, token, err := ctrl.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		ctrl.recordLogin(err)
		respondError(c, log, "Login failed", err)
		return
	}
	ctrl.recordLogin(nil)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"account":      account.Descriptor(),
		"access_token": token,
	})
}

// GetMe returns the authenticated account
// GET /api/v1/auth/me
func (ctrl *AuthController) GetMe(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	account, err := ctrl.authService.GetAccountByID(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, log, "Failed to load account", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"account": account.Descriptor(),
	})
}

// ChangePassword replaces the password of the authenticated account
// PUT /api/v1/auth/password
func (ctrl *AuthController) ChangePassword(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, msgInvalidBody)
		return
	}

	if err := ctrl.authService.ChangePassword(c.Request.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, log, "Password change failed", err)
		return
	}

	apperrors.RespondWithMessage(c, http.StatusOK, msgPasswordChange)
}

// ForgotPassword issues a reset grant. The response never says whether the
// email is registered.
// POST /api/v1/auth/forgot-password
func (ctrl *AuthController) ForgotPassword(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, msgInvalidBody)
		return
	}

	if err := ctrl.passwordResetService.RequestReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, log, "Password reset request failed", err)
		return
	}
	if ctrl.metrics != nil {
		ctrl.metrics.RecordResetRequest()
	}

	apperrors.RespondWithMessage(c, http.StatusOK, msgResetRequested)
}

// ResetPassword consumes a reset token and sets the new password
// POST /api/v1/auth/reset-password
func (ctrl *AuthController) ResetPassword(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, msgInvalidBody)
		return
	}

	err := ctrl.passwordResetService.ConfirmReset(c.Request.Context(), req.Token, req.Password)
	ctrl.recordResetConfirm(err)
	if err != nil {
		respondError(c, log, "Password reset failed", err)
		return
	}

	apperrors.RespondWithMessage(c, http.StatusOK, msgResetConfirmed)
}

func (ctrl *AuthController) recordLogin(err error) {
	if ctrl.metrics == nil {
		return
	}
	switch apperrors.Classify(err) {
	case apperrors.KindOK:
		ctrl.metrics.RecordLogin(metrics.ResultSuccess)
	case apperrors.KindInfra:
		ctrl.metrics.RecordLogin(metrics.ResultError)
	default:
		ctrl.metrics.RecordLogin(metrics.ResultRejected)
	}
}

func (ctrl *AuthController) recordResetConfirm(err error) {
	if ctrl.metrics == nil {
		return
	}
	switch apperrors.Classify(err) {
	case apperrors.KindOK:
		ctrl.metrics.RecordResetConfirm(metrics.ResultSuccess)
	case apperrors.KindInfra:
		ctrl.metrics.RecordResetConfirm(metrics.ResultError)
	default:
		ctrl.metrics.RecordResetConfirm(metrics.ResultInvalid)
	}
}

// respondError logs err at a level matching its kind and writes the
// classified response. Infrastructure causes stay in the log.
func respondError(c *gin.Context, log *logger.Logger, msg string, err error) {
	kind := apperrors.Classify(err)
	if kind == apperrors.KindInfra {
		log.Error(msg, err)
	} else {
		log.Warn(msg, map[string]interface{}{
			"kind": kind.String(),
		})
	}
	apperrors.Respond(c, err)
}
