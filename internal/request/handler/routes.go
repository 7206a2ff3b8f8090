package handler

import (
	"github.com/JiaqinWu/CGHPI-Request-System/internal/auth"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the /api/v1 routes on r.
func RegisterRoutes(r gin.IRouter, h *Handlers, tokens *auth.TokenManager) {
	v1 := r.Group("/api/v1")
	{
		v1.GET("/options", h.Request.Options)

		// Role selection and login end any session sent with them.
		open := v1.Group("/session", middleware.OptionalSession(tokens))
		{
			open.POST("/role", h.Session.SelectRole)
			open.POST("/login", h.Session.Login)
		}

		authorized := v1.Group("", middleware.SessionAuth(tokens))
		{
			authorized.GET("/session", h.Session.Current)
			authorized.POST("/session/logout", h.Session.Logout)
			authorized.POST("/requests", h.Request.Create)

			coordinator := authorized.Group("", middleware.RequireCoordinator())
			{
				coordinator.GET("/requests", h.Request.List)
				coordinator.GET("/requests/export", h.Dashboard.Export)
				coordinator.GET("/requests/:ticket", h.Request.Get)
				coordinator.GET("/requests/:ticket/history", h.Request.History)
				coordinator.PUT("/requests/:ticket/status", h.Request.UpdateStatus)
				coordinator.GET("/dashboard/metrics", h.Dashboard.Metrics)
				coordinator.POST("/cache/refresh", h.Dashboard.RefreshCache)
				coordinator.GET("/events", h.Events.Stream)
			}
		}
	}
}
