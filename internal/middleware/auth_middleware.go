package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	apperrors "github.com/janicogyle/ccs-membership-sub001/internal/errors"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
)

// Context keys for account information
const (
	AccountIDKey    = "account_id"
	AccountEmailKey = "account_email"
	AccountRoleKey  = "account_role"
)

type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

// Authenticate requires a valid bearer access token.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Missing authorization header", nil)
			apperrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Warn("Invalid authorization header format", nil)
			apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenInvalid, "invalid authorization header")
			c.Abort()
			return
		}

		claims, err := util.ValidateToken(parts[1], m.jwtSecret)
		if err != nil {
			log.Warn("Token validation failed", map[string]interface{}{
				"error": err.Error(),
			})
			if errors.Is(err, util.ErrExpiredToken) {
				apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenExpired, "access token expired")
			} else {
				apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthTokenInvalid, "invalid access token")
			}
			c.Abort()
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(AccountEmailKey, claims.Email)
		c.Set(AccountRoleKey, model.AccountRole(claims.Role))

		log.Debug("Account authenticated", map[string]interface{}{
			"account_id": claims.AccountID,
			"role":       claims.Role,
		})

		c.Next()
	}
}

// GetAccountID extracts the authenticated account ID from context
func GetAccountID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(AccountIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func GetAccountEmail(c *gin.Context) (string, bool) {
	v, exists := c.Get(AccountEmailKey)
	if !exists {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

func GetAccountRole(c *gin.Context) (model.AccountRole, bool) {
	v, exists := c.Get(AccountRoleKey)
	if !exists {
		return "", false
	}
	role, ok := v.(model.AccountRole)
	return role, ok
}
