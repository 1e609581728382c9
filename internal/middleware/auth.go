package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/triage-api/pkg/auth"
)

const (
	ContextStaffID   = "staff_id"
	ContextStaffRole = "staff_role"

	HeaderStaffID = "X-Staff-ID"
)

type AuthMiddleware struct {
	jwt     auth.JWTService
	enabled bool
}

// NewAuthMiddleware with a nil JWT service runs in trusted mode: the actor
// is taken from the X-Staff-ID header.
func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, enabled: jwt != nil}
}

// Authenticate binds the calling staff member to the request.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			if id := strings.TrimSpace(c.GetHeader(HeaderStaffID)); id != "" {
				c.Set(ContextStaffID, id)
			}
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		c.Set(ContextStaffID, claims.StaffID)
		c.Set(ContextStaffRole, string(claims.Role))
		c.Next()
	}
}

// bearerToken also accepts ?access_token= because browsers cannot set
// headers on WebSocket upgrades.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return c.Query("access_token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Status:  "error",
		Code:    http.StatusUnauthorized,
		Message: msg,
		TraceID: c.GetString(ContextRequestID),
	})
}

// StaffID returns the authenticated staff id, or "" in trusted mode without
// the header.
func StaffID(c *gin.Context) string {
	return c.GetString(ContextStaffID)
}
