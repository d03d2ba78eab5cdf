package router

import "github.com/gin-gonic/gin"

// registerUserRoutes 用户资料与设备管理路由
func (r *Router) registerUserRoutes(engine *gin.Engine, auth gin.HandlerFunc) {
	group := engine.Group("/users", auth)
	{
		group.GET("/me", r.handlers.User.Me)
		group.GET("/me/devices", r.handlers.User.Devices)
		group.POST("/me/devices/remove", r.handlers.User.RemoveDevice)
	}
}
