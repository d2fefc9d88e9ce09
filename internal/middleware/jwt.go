package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/invigilo/proctor-backend/internal/response"
	"github.com/invigilo/proctor-backend/internal/service"
)

// ContextKeyClaims is the Gin context key holding the validated JWT claims.
const ContextKeyClaims = "jwt_claims"

// RequireStudentJWT validates a student bearer token and enforces the
// single-active-device rule. Browser WebSocket clients cannot set headers,
// so a ?token= query parameter is accepted as a fallback.
func RequireStudentJWT(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, auth)
		if !ok {
			return
		}
		if claims.TokenType != service.TokenTypeStudent {
			response.AbortFail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
			return
		}

		active, err := auth.IsActiveDevice(c.Request.Context(), claims)
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
		if !active {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireAdminJWT validates an admin bearer token.
func RequireAdminJWT(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, auth)
		if !ok {
			return
		}
		if claims.TokenType != service.TokenTypeAdmin {
			response.AbortFail(c, http.StatusForbidden, response.ErrAdminAccessOnly)
			return
		}
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the validated claims set by the JWT middleware.
func GetClaims(c *gin.Context) *service.Claims {
	v, ok := c.Get(ContextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*service.Claims)
	return claims
}

func authenticate(c *gin.Context, auth *service.AuthService) (*service.Claims, bool) {
	token := extractToken(c)
	if token == "" {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return nil, false
	}
	return claims, true
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
