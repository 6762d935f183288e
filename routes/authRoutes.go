package routes

import (
	"civicconnect-be/controllers"
	"civicconnect-be/middlewares"

	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(r *gin.RouterGroup, d *controllers.Deps) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", d.RegisterUser)
		auth.POST("/login", d.LoginUser)
		auth.GET("/me", middlewares.AuthMiddleware(d.Issuer), d.GetMe)
	}
}
