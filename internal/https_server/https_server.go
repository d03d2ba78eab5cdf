// Package https_server 构建并启动 HTTP(S) 服务
package https_server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nova_chat_server/internal/config"
	"nova_chat_server/internal/infrastructure/logger"
	"nova_chat_server/internal/infrastructure/middleware"
	"nova_chat_server/internal/router"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server HTTP 服务包装，支持优雅关闭
type Server struct {
	httpServer *http.Server
}

// New 装配 gin 引擎和全部中间件
func New(cfg *config.Config, r *router.Router) *Server {
	engine := gin.New()
	engine.Use(logger.GinLogger(), logger.GinRecovery(true))

	// 跨域：WebSocket 客户端和 Web 端共用这套接口
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		MaxAge:           12 * time.Hour,
	}))

	// 配置了 TlsHost 时强制 HTTPS
	if cfg.MainConfig.TlsHost != "" {
		engine.Use(middleware.TlsHandler(cfg.MainConfig.TlsHost))
	}

	r.Register(engine)

	addr := fmt.Sprintf("%s:%d", cfg.MainConfig.Host, cfg.MainConfig.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: engine,
		},
	}
}

// Run 启动监听，阻塞到服务关闭
func (s *Server) Run() error {
	zap.L().Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
