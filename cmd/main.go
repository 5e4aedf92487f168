package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twmb/murmur3"
	"go.uber.org/zap"

	"github.com/Gopher0727/Messenger/config"
	"github.com/Gopher0727/Messenger/internal/consumer"
	"github.com/Gopher0727/Messenger/internal/fanout"
	"github.com/Gopher0727/Messenger/internal/handlers"
	"github.com/Gopher0727/Messenger/internal/repositories"
	"github.com/Gopher0727/Messenger/internal/routers"
	"github.com/Gopher0727/Messenger/internal/services"
	"github.com/Gopher0727/Messenger/internal/storage"
	"github.com/Gopher0727/Messenger/internal/utils"
	"github.com/Gopher0727/Messenger/internal/ws"
	logger "github.com/Gopher0727/Messenger/middleware/log"
	"github.com/Gopher0727/Messenger/pkg/mq"
	pkgutils "github.com/Gopher0727/Messenger/pkg/utils"
	"github.com/Gopher0727/Messenger/utils/dedup"
	"github.com/Gopher0727/Messenger/utils/hashring"
	"github.com/Gopher0727/Messenger/utils/ratelimit"
	"github.com/Gopher0727/Messenger/utils/snowflake"
)

func main() {
	cfg, err := config.LoadConfig("./config.toml")
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLogger.Close()

	// 初始化 PostgreSQL
	dsn := storage.BuildDSN(cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName)
	postgres, err := storage.InitPostgres(dsn, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns)
	if err != nil {
		appLogger.Fatal("postgres 初始化失败", zap.Error(err))
	}

	// 初始化 Redis
	redisClient, err := storage.InitRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns)
	if err != nil {
		appLogger.Fatal("redis 初始化失败", zap.Error(err))
	}

	// Worker Pool：承接异步请求处理与推送任务
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appLogger.Logger)
	pool.Start()
	defer pool.Stop()

	// 一致性哈希环：用户房间固定归属到网关节点
	ring := hashring.New(128)
	for node, weight := range cfg.Gateway.Nodes {
		ring.Add(node, weight)
	}

	// WebSocket Hub（事件去重缓存吸收 kafka 的重复投递）
	seen := dedup.New(1<<16, 5*time.Minute)
	hub := ws.NewHub(redisClient, ring, cfg.Gateway.NodeID, seen, appLogger.Logger)
	go hub.Run()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunRemote(rootCtx)

	// Kafka Producer：不可用时降级为本地直推
	producer, err := mq.NewEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, appLogger.Logger)
	if err != nil {
		appLogger.Warn("Kafka 生产者初始化失败，推送降级为本地直推", zap.Error(err))
		producer = nil
	} else {
		defer producer.Close()
	}

	var sender fanout.EventSender
	if producer != nil {
		sender = producer
	}
	notifier := fanout.NewNotifier(sender, hub, pool, appLogger.Logger)

	// Kafka Consumer（只有生产者可用时才有消息可消费）
	if producer != nil {
		eventConsumer := consumer.NewEventConsumer(hub, appLogger.Logger)
		if err := consumer.Start(rootCtx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, eventConsumer); err != nil {
			appLogger.Warn("Kafka 消费者启动失败", zap.Error(err))
		}
	}

	// 仓储层
	userRepo := repositories.NewUserRepository(postgres)
	messageRepo := repositories.NewMessageRepository(postgres)
	groupRepo := repositories.NewGroupRepository(postgres)
	convRepo := repositories.NewConversationRepository(postgres)

	// 服务层
	tokenManager := pkgutils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	idGen := snowflake.NewGenerator(int64(murmur3.StringSum32(cfg.Gateway.NodeID)))

	authService := services.NewAuthService(userRepo, tokenManager)
	messageService := services.NewMessageService(messageRepo, groupRepo, userRepo, notifier, idGen)
	groupService := services.NewGroupService(groupRepo, userRepo, notifier)
	convService := services.NewConversationService(convRepo, messageRepo)

	// 处理器
	authHandler := handlers.NewAuthHandler(authService, appLogger.Logger)
	messageHandler := handlers.NewMessageHandler(messageService, appLogger.Logger)
	groupHandler := handlers.NewGroupHandler(groupService, appLogger.Logger)
	convHandler := handlers.NewConversationHandler(convService, appLogger.Logger)

	limiter := ratelimit.NewRedisLimiter(redisClient, appLogger.Logger, cfg.RateLimit.FailOpen)
	presence := ws.NewPresence(redisClient)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	routers.SetupRoutes(r, &routers.Deps{
		Config:              cfg,
		Logger:              appLogger,
		TokenManager:        tokenManager,
		Pool:                pool,
		Limiter:             limiter,
		AuthHandler:         authHandler,
		MessageHandler:      messageHandler,
		GroupHandler:        groupHandler,
		ConversationHandler: convHandler,
		Hub:                 hub,
		Presence:            presence,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		appLogger.Info("服务器启动", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	// 优雅退出：等待信号后停止接收新请求，给在途请求留出时间
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("收到退出信号，开始关闭")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("服务器关闭异常", zap.Error(err))
	}
	appLogger.Info("服务器已退出")
}
