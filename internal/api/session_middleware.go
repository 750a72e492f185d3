// internal/api/session_middleware.go
package api

import (
	"net/http"
	"strings"

	"github.com/Corphon/VogueVault/internal/services"
	"github.com/Corphon/VogueVault/internal/session"
	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	sessionCookie      = "vv_session"
	headerSessionToken = "X-Session-Token"

	ctxSession   = "session"
	ctxRequestID = "request_id"
)

// SessionMiddleware 从 Cookie 或 Bearer 头恢复会话；没有有效令牌时创建新会话并签发令牌
func SessionMiddleware(signer *session.Signer, sessions *services.SessionService) gin.HandlerFunc {
	logger := utils.GetLogger()
	rh := NewResponseHelper()

	return func(c *gin.Context) {
		token := extractToken(c)

		sessionID := ""
		if token != "" {
			claims, err := signer.Validate(token)
			if err != nil {
				logger.Debug("discarding invalid session token", utils.Fields{"error": err, "path": c.Request.URL.Path})
				token = ""
			} else {
				sessionID = claims.SessionID
			}
		}
		if sessionID == "" {
			sessionID = session.NewID()
		}

		sess, _, err := sessions.GetOrCreate(c.Request.Context(), sessionID)
		if err != nil {
			rh.HandleError(c, err)
			c.Abort()
			return
		}

		if token == "" {
			token, err = signer.Issue(sessionID)
			if err != nil {
				rh.InternalError(c, "签发会话令牌失败")
				c.Abort()
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, token, int(session.TokenExpiry.Seconds()), "/", "", false, true)
		}
		c.Header(headerSessionToken, token)

		c.Set(ctxSession, sess)
		c.Next()
	}
}

// extractToken 优先使用 Authorization 头，其次是 Cookie
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); token != "" {
			return token
		}
	}
	if token, err := c.Cookie(sessionCookie); err == nil {
		return token
	}
	// websocket 客户端无法设置请求头
	return c.Query("token")
}

// sessionFrom 获取当前请求的会话
func sessionFrom(c *gin.Context) *services.Session {
	value, exists := c.Get(ctxSession)
	if !exists {
		return nil
	}
	sess, _ := value.(*services.Session)
	return sess
}
