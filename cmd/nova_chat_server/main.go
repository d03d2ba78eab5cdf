package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nova_chat_server/internal/config"
	dao "nova_chat_server/internal/dao/mysql"
	"nova_chat_server/internal/dao/redis"
	"nova_chat_server/internal/handler"
	"nova_chat_server/internal/https_server"
	"nova_chat_server/internal/infrastructure/logger"
	"nova_chat_server/internal/infrastructure/mq"
	"nova_chat_server/internal/router"
	"nova_chat_server/internal/service/auth"
	"nova_chat_server/internal/service/chat"
	"nova_chat_server/internal/service/gate"
	"nova_chat_server/pkg/util/jwt"
	"nova_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 配置必须最先加载，后面所有组件都依赖它
	if err := config.LoadConfig(); err != nil {
		fmt.Printf("load config failed: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GetConfig()

	if err := logger.Init(&cfg.LogConfig, ginMode()); err != nil {
		fmt.Printf("init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zap.L().Sync() }()

	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("init validator translator failed", zap.Error(err))
	}

	jwt.Init(cfg.JWTConfig.Secret, cfg.JWTConfig.AccessTokenExpiry, cfg.JWTConfig.RefreshTokenExpiry)
	snowflake.Init(cfg.SnowflakeConfig.MachineID)

	// 存储层
	dao.Init()
	redis.Init()
	repos := dao.Repos
	cache := redis.GetCacheService()

	// 推送分发：没配 Kafka 就降级为日志输出
	var dispatcher mq.Dispatcher
	if cfg.KafkaConfig.Enabled {
		dispatcher = mq.NewKafkaDispatcher(&cfg.KafkaConfig)
	} else {
		dispatcher = mq.NewLogDispatcher()
	}
	defer func() { _ = dispatcher.Close() }()

	// 服务层
	gateService := gate.NewService(repos.Session, cache, cfg.GatewayConfig.SessionTTLMinutes)
	authService := auth.NewService(repos.User, repos.Device, repos.Session, gateService)
	registry := chat.NewRegistry()
	presence := chat.NewPresenceService(cache, registry, repos.User, cfg.GatewayConfig.PresenceTTLMinutes)
	chatServer := chat.NewChatServer(repos, cache, dispatcher, gateService, presence,
		chat.NewRealScheduler(), &cfg.GatewayConfig)

	// 接入层
	handlers := handler.NewHandlers(authService, chatServer, presence)
	srv := https_server.New(cfg, router.New(handlers, gateService))

	go func() {
		if err := srv.Run(); err != nil {
			zap.L().Fatal("http server exited", zap.Error(err))
		}
	}()

	// 等待退出信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("server shutdown failed", zap.Error(err))
	}
}

// ginMode 开发/生产模式跟随环境变量，默认生产
func ginMode() string {
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		return mode
	}
	return "release"
}
