package router

import "github.com/gin-gonic/gin"

func (r *Router) userRoutes(version *gin.RouterGroup) {
	users := version.Group("/users")
	{
		// Public routes (no authentication required)
		users.POST("/register", r.authHandler.Register)
		users.POST("/login", r.authHandler.Login)
		users.POST("/refresh", r.authHandler.Refresh)

		// Protected routes (valid access token required)
		protected := users.Group("")
		protected.Use(r.authMw.RequireAuth())
		{
			protected.POST("/logout", r.authHandler.Logout)
			protected.GET("/me", r.userHandler.Me)
			protected.POST("/change-password", r.userHandler.ChangePassword)
			protected.POST("/change-fullname", r.userHandler.ChangeFullName)
			protected.PATCH("/avatar", r.userHandler.ChangeAvatar)
			protected.PATCH("/cover-image", r.userHandler.ChangeCoverImage)
		}
	}
}
