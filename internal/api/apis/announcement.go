package apis

import (
	"lostfound/internal/api/handler"

	"github.com/gin-gonic/gin"
)

// RegisterAnnouncementRoutes 注册公告相关路由
func RegisterAnnouncementRoutes(router *gin.RouterGroup, announcementHandler *handler.AnnouncementHandler) {
	router.GET("/options", announcementHandler.GetOptions)

	announcements := router.Group("/announcements")
	{
		announcements.GET("", announcementHandler.GetAnnouncements)
		announcements.GET("/recent", announcementHandler.GetRecentAnnouncements)
		announcements.GET("/:id", announcementHandler.GetAnnouncementByID)
		announcements.POST("", announcementHandler.CreateAnnouncement)
		announcements.POST("/:id/resolve", announcementHandler.ResolveAnnouncement)
		announcements.POST("/delete", announcementHandler.DeleteAnnouncement)
	}
}
