package middleware

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-contrib/cors"
)

// CORS allows the redaction editor frontend to call the API from another
// origin. Content-Disposition is exposed so downloads keep their filename.
func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.AllowOrigins = strings.Split(origins, ",")
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	config.ExposeHeaders = []string{"Content-Disposition"}

	return cors.New(config)
}
