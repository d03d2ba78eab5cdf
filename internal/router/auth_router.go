package router

import "github.com/gin-gonic/gin"

// registerAuthRoutes 认证相关路由
func (r *Router) registerAuthRoutes(engine *gin.Engine, auth gin.HandlerFunc) {
	group := engine.Group("/auth")
	{
		group.POST("/register", r.handlers.Auth.Register)
		group.POST("/login", r.handlers.Auth.Login)
		group.POST("/refresh", r.handlers.Auth.Refresh)
		group.POST("/logout", auth, r.handlers.Auth.Logout)
		group.POST("/logout-all", auth, r.handlers.Auth.LogoutAll)
	}
}
