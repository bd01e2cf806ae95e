package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"quotechat/internal/domain/chat"
)

const principalContextKey = "quotechat.principal"

// principal is the identity the marketplace gateway forwards with each
// request. Token validation happens upstream; this tier trusts the gateway
// headers and only routes on them.
type principal struct {
	UserID     string
	SenderType chat.SenderType
	Token      string
}

// Identity resolves the forwarded identity headers into a principal.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			c.Next()
			return
		}
		senderType := chat.SenderType(strings.ToUpper(strings.TrimSpace(c.GetHeader("X-Sender-Type"))))
		if senderType != chat.SenderExpert {
			senderType = chat.SenderWeb
		}
		c.Set(principalContextKey, principal{
			UserID:     userID,
			SenderType: senderType,
			Token:      extractBearerToken(c.GetHeader("Authorization")),
		})
		c.Next()
	}
}

// requirePrincipal aborts with 401 when no identity was forwarded.
func requirePrincipal(c *gin.Context) (principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return principal{}, false
	}
	p, ok := v.(principal)
	if !ok || p.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}
