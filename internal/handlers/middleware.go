package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userId"

	// wsTokenParam carries the JWT on /ws; browsers cannot set headers on a WebSocket handshake.
	wsTokenParam = "access_token"
)

func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	h.authorize(c, strings.TrimSpace(parts[1]))
}

// wsAuthMiddleware accepts the bearer header or ?access_token=.
func (h *Handler) wsAuthMiddleware(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		if token := strings.TrimSpace(c.Query(wsTokenParam)); token != "" {
			h.authorize(c, token)
			return
		}
	}
	h.userIdMiddleware(c)
}

func (h *Handler) authorize(c *gin.Context, token string) {
	userId, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Debugw("auth_token_rejected", "err", err, "path", c.FullPath())
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(ctxUserID, userId)
	c.Next()
}
