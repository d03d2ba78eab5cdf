// Package router 负责路由注册
// 每个业务域一个注册文件，统一从 Register 入口挂载
package router

import (
	"nova_chat_server/internal/handler"
	"nova_chat_server/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由装配器
type Router struct {
	handlers *handler.Handlers
	gate     middleware.CredentialValidator
}

func New(handlers *handler.Handlers, gate middleware.CredentialValidator) *Router {
	return &Router{handlers: handlers, gate: gate}
}

// Register 挂载全部路由
func (r *Router) Register(engine *gin.Engine) {
	auth := middleware.JWTAuth(r.gate)
	r.registerAuthRoutes(engine, auth)
	r.registerUserRoutes(engine, auth)
	r.registerMessageRoutes(engine, auth)
	r.registerPresenceRoutes(engine, auth)
	r.registerWsRoutes(engine)
}
