package routes

import (
	"civicconnect-be/controllers"
	"civicconnect-be/middlewares"
	"civicconnect-be/models"

	"github.com/gin-gonic/gin"
)

func AnalyticsRoutes(r *gin.RouterGroup, d *controllers.Deps) {
	analytics := r.Group("/analytics", middlewares.AuthMiddleware(d.Issuer), middlewares.RequireRole(models.RoleAdmin))
	{
		analytics.GET("/trends", d.GetTrends)
		analytics.GET("/top-areas", d.GetTopAreas)
	}
}
