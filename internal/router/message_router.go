package router

import "github.com/gin-gonic/gin"

// registerMessageRoutes 消息历史路由
func (r *Router) registerMessageRoutes(engine *gin.Engine, auth gin.HandlerFunc) {
	group := engine.Group("/messages", auth)
	{
		group.GET("/:conversation_uuid", r.handlers.Message.History)
		group.POST("/hide", r.handlers.Message.Hide)
	}
}
