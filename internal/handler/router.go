package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mdesk/internal/middleware"
)

type RouterDeps struct {
	Search      *SearchHandler
	Assistant   *AssistantHandler
	Scopes      middleware.ScopeResolver
	JWTSecret   []byte
	AskInterval time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		c.String(200, "ok")
	})

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret), middleware.OwnerScope(deps.Scopes))
	authGroup.GET("/search", deps.Search.Search)

	assistant := authGroup.Group("/assistant")
	assistant.POST("/ask", middleware.RateLimit(deps.AskInterval), deps.Assistant.Ask)
	assistant.GET("/conversations", deps.Assistant.ListConversations)
	assistant.GET("/conversations/:id/turns", deps.Assistant.ListTurns)
}
