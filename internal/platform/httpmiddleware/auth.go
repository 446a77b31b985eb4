package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gnlink.local/internal/platform/auth"
)

// parseBearer 格式不对时返回空串。
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthRequired 要求携带有效 JWT，通过后把身份放进 request context。
func AuthRequired(ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			AbortWithError(c, http.StatusUnauthorized, "missing authorization header")
			return
		}
		token := parseBearer(header)
		if token == "" {
			AbortWithError(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		claims, err := ts.Verify(token)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), auth.Identity{
			UserID: claims.UserID,
			Role:   claims.Role,
		}))
		c.Next()
	}
}

func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.GetIdentity(c.Request.Context())
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		if id.Role != role {
			AbortWithError(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
