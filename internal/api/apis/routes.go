package apis

import (
	"lostfound/internal/api/handler"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有API路由
func RegisterRoutes(v1 *gin.RouterGroup, announcementHandler *handler.AnnouncementHandler) {
	RegisterAnnouncementRoutes(v1, announcementHandler)
}
