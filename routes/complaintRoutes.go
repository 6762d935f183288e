package routes

import (
	"civicconnect-be/controllers"
	"civicconnect-be/middlewares"
	"civicconnect-be/models"

	"github.com/gin-gonic/gin"
)

// ComplaintRoutes sets up the complaint routes. Role and ownership checks
// live in the handlers; only delete is gated here as well.
func ComplaintRoutes(r *gin.RouterGroup, d *controllers.Deps, limiter gin.HandlerFunc) {
	complaints := r.Group("/complaints", middlewares.AuthMiddleware(d.Issuer))
	{
		complaints.GET("", d.GetComplaints)
		complaints.GET("/category/count", d.CategoryCount)
		complaints.GET("/:id", d.GetComplaint)
		complaints.POST("", limiter, d.CreateComplaint)
		complaints.PATCH("/:id", d.UpdateComplaint)
		complaints.PUT("/:id/upvote", d.UpvoteComplaint)
		complaints.DELETE("/:id", middlewares.RequireRole(models.RoleAdmin), d.DeleteComplaint)
	}
}
