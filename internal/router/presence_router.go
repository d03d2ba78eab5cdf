package router

import "github.com/gin-gonic/gin"

// registerPresenceRoutes 在线状态查询路由
func (r *Router) registerPresenceRoutes(engine *gin.Engine, auth gin.HandlerFunc) {
	engine.POST("/presence/query", auth, r.handlers.Presence.Query)
}
