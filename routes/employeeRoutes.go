package routes

import (
	"civicconnect-be/controllers"
	"civicconnect-be/middlewares"
	"civicconnect-be/models"

	"github.com/gin-gonic/gin"
)

func EmployeeRoutes(r *gin.RouterGroup, d *controllers.Deps) {
	employee := r.Group("/employee", middlewares.AuthMiddleware(d.Issuer))

	admin := employee.Group("", middlewares.RequireRole(models.RoleAdmin))
	{
		admin.GET("", d.ListEmployees)
		admin.GET("/by-empid/:empId", d.GetEmployeeByCode)
	}

	self := employee.Group("", middlewares.RequireRole(models.RoleEmployee))
	{
		self.GET("/tasks", d.GetTasks)
		self.GET("/tasks/:id", d.GetTask)
		self.PUT("/tasks/:id/status", d.UpdateTaskStatus)
		self.PUT("/duty", d.ToggleDuty)
		self.PUT("/location", d.UpdateLocation)
		self.GET("/stats", d.GetTaskStats)
	}
}
