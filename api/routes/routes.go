package routes

import (
    "github.com/gin-gonic/gin"

    "github.com/docshield/document-redactor/api/handlers"
    "github.com/docshield/document-redactor/api/middleware"
)

// SetupRoutes 配置所有路由,路径沿用前端已依赖的形状
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
    // 全局中间件
    r.Use(middleware.CORS())

    r.GET("/health", func(c *gin.Context) {
        c.JSON(200, gin.H{"status": "ok"})
    })

    api := r.Group("/api")
    {
        api.POST("/upload", h.Redaction.Upload)
        api.POST("/redact", h.Redaction.Redact)
        api.GET("/download/:fileId", h.Redaction.Download)
        api.POST("/analyze-document", h.Redaction.Analyze)
        api.GET("/get_supported_languages", h.Redaction.Languages)
    }
}
