package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Messenger/internal/auth"
	"github.com/Gopher0727/Messenger/pkg/utils"
)

// ContextKey 存放认证上下文的 gin key
const ContextKey = "authContext"

// AuthMiddleware JWT 认证中间件
func AuthMiddleware(tm *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string

		// 1. 尝试从请求头获取 token
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			// 解析 Bearer token
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}

		// 2. 如果请求头没有，尝试从 Query 参数获取 (主要用于 WebSocket)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.JSON(
				http.StatusUnauthorized,
				gin.H{"code": http.StatusUnauthorized, "message": "未提供认证 Token"},
			)
			c.Abort()
			return
		}

		claims, err := tm.ParseToken(token)
		if err != nil {
			c.JSON(
				http.StatusUnauthorized,
				gin.H{"code": http.StatusUnauthorized, "message": "Token 无效或已过期"},
			)
			c.Abort()
			return
		}

		// 将认证上下文存储在 context 中
		c.Set("userID", claims.UserID)
		c.Set("username", claims.UserName)
		c.Set(ContextKey, auth.NewContext(claims.UserID, claims.Roles, claims.Permissions))

		c.Next()
	}
}

// MustAuthContext 取出认证中间件写入的上下文
// 只能在 AuthMiddleware 之后的 handler 里调用
func MustAuthContext(c *gin.Context) (auth.Context, bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return auth.Context{}, false
	}
	ac, ok := v.(auth.Context)
	return ac, ok
}
