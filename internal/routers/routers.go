package routers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Messenger/config"
	"github.com/Gopher0727/Messenger/internal/handlers"
	imiddlewares "github.com/Gopher0727/Messenger/internal/middlewares"
	"github.com/Gopher0727/Messenger/internal/utils"
	"github.com/Gopher0727/Messenger/internal/ws"
	logger "github.com/Gopher0727/Messenger/middleware/log"
	"github.com/Gopher0727/Messenger/pkg/middlewares"
	pkgutils "github.com/Gopher0727/Messenger/pkg/utils"
	"github.com/Gopher0727/Messenger/utils/ratelimit"
)

// Deps 路由依赖
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	TokenManager *pkgutils.TokenManager
	Pool         *utils.WorkerPool
	Limiter      ratelimit.Limiter

	AuthHandler         *handlers.AuthHandler
	MessageHandler      *handlers.MessageHandler
	GroupHandler        *handlers.GroupHandler
	ConversationHandler *handlers.ConversationHandler

	Hub      *ws.Hub
	Presence *ws.Presence
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, d *Deps) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", logger.TraceIDHeader}
	r.Use(cors.New(corsConfig))

	r.Use(logger.GinMiddleware(d.Logger))

	auth := imiddlewares.AuthMiddleware(d.TokenManager)

	// WebSocket 路由 (必须在 AsyncMiddleware 之前注册，避免握手请求被放入 Worker Pool)
	r.GET("/ws", auth, ws.ServeWS(d.Hub, d.Presence, d.Logger.Logger))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"online": d.Hub.OnlineUserCount(),
		})
	})

	// 全局限流与并发控制
	if d.Limiter != nil && d.Config.RateLimit.Enabled {
		r.Use(middlewares.RateLimitMiddleware(d.Limiter,
			d.Config.RateLimit.Limit,
			time.Duration(d.Config.RateLimit.WindowSeconds)*time.Second))
	}
	if d.Config.RateLimit.MaxConcurrency > 0 {
		r.Use(middlewares.MaxConcurrencyMiddleware(d.Config.RateLimit.MaxConcurrency))
	}

	// 异步处理中间件：请求放入 Worker Pool 排队执行
	r.Use(imiddlewares.AsyncMiddleware(d.Pool))

	registerAuthRoutes(r, auth, d.AuthHandler)
	registerMessageRoutes(r, auth, d.MessageHandler)
	registerGroupRoutes(r, auth, d.GroupHandler, d.MessageHandler)
	registerConversationRoutes(r, auth, d.ConversationHandler)
}

func registerAuthRoutes(r *gin.Engine, auth gin.HandlerFunc, h *handlers.AuthHandler) {
	users := r.Group("/api/v1/users")
	{
		users.POST("/register", h.Register) // 注册
		users.POST("/login", h.Login)       // 登录
	}
	users.Use(auth)
	{
		users.POST("/logout", h.Logout) // 登出
	}
}

func registerMessageRoutes(r *gin.Engine, auth gin.HandlerFunc, h *handlers.MessageHandler) {
	messages := r.Group("/api/v1/messages")
	messages.Use(auth)
	{
		messages.POST("", h.SendMessage) // 发送消息（私聊或群聊）

		messages.POST("/:messageId/read", h.MarkAsRead)     // 单条已读
		messages.POST("/:messageId/unread", h.MarkAsUnread) // 单条转未读
		messages.DELETE("/:messageId", h.Delete)            // 软删除
		messages.POST("/:messageId/restore", h.Restore)     // 恢复
		messages.DELETE("/:messageId/hard", h.HardDelete)   // 物理删除
	}

	direct := r.Group("/api/v1/direct")
	direct.Use(auth)
	{
		direct.GET("/:userId/messages", h.GetDirectMessages)      // 私聊历史
		direct.POST("/:userId/read", h.MarkConversationAsRead)    // 会话整体已读
	}
}

func registerGroupRoutes(r *gin.Engine, auth gin.HandlerFunc, h *handlers.GroupHandler, mh *handlers.MessageHandler) {
	groups := r.Group("/api/v1/groups")
	groups.Use(auth)
	{
		groups.POST("", h.Create) // 创建群组

		// 成员管理
		groups.GET("/:groupId/members", h.Members)
		groups.POST("/:groupId/members", h.AddMembers)
		groups.DELETE("/:groupId/members/:userId", h.RemoveMember)
		groups.PATCH("/:groupId/members/:userId/role", h.UpdateMemberRole)

		// 消息相关
		groups.GET("/:groupId/messages", mh.GetGroupMessages)
		groups.POST("/:groupId/read", mh.MarkGroupAsRead)

		// 生命周期
		groups.DELETE("/:groupId", h.Delete)
		groups.POST("/:groupId/restore", h.Restore)
		groups.DELETE("/:groupId/hard", h.HardDelete)
	}
}

func registerConversationRoutes(r *gin.Engine, auth gin.HandlerFunc, h *handlers.ConversationHandler) {
	conversations := r.Group("/api/v1/conversations")
	conversations.Use(auth)
	{
		conversations.GET("", h.List)                     // 会话目录
		conversations.GET("/unread-count", h.UnreadCount) // 未读总数
	}
}
