package router

import "github.com/gin-gonic/gin"

// registerWsRoutes WebSocket 接入路由
// 升级请求不挂认证中间件，凭证在升级后的第一帧校验
func (r *Router) registerWsRoutes(engine *gin.Engine) {
	engine.GET("/ws", func(c *gin.Context) {
		r.handlers.Ws.Connect(c.Writer, c.Request)
	})
}
