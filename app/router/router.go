package router

import (
	"advisorhub/app/handler"
	"advisorhub/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	taskHandler    *handler.TaskHandler
	ruleHandler    *handler.RuleHandler
	webhookHandler *handler.WebhookHandler
}

// NewRouter creates a new Router
func NewRouter(taskHandler *handler.TaskHandler, ruleHandler *handler.RuleHandler, webhookHandler *handler.WebhookHandler) *Router {
	return &Router{
		taskHandler:    taskHandler,
		ruleHandler:    ruleHandler,
		webhookHandler: webhookHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks are unauthenticated by design; deduplication and
	// user resolution gate what they can cause.
	webhooks := engine.Group("/webhooks")
	{
		webhooks.POST("/gmail", r.webhookHandler.Gmail)
		webhooks.POST("/hubspot", r.webhookHandler.Hubspot)
		webhooks.POST("/calendar", r.webhookHandler.Calendar)
	}

	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		v1.POST("/tasks", r.taskHandler.Enqueue)
		v1.GET("/tasks", r.taskHandler.List)
		v1.GET("/tasks/stats", r.taskHandler.Stats)
		v1.GET("/tasks/:task_id", r.taskHandler.Get)
		v1.POST("/tasks/:task_id/execute", r.taskHandler.ExecuteNow)

		v1.POST("/rules", r.ruleHandler.Create)
		v1.GET("/rules", r.ruleHandler.List)
		v1.POST("/rules/defaults", r.ruleHandler.CreateDefaults)
		v1.PATCH("/rules/:rule_id", r.ruleHandler.Update)
		v1.DELETE("/rules/:rule_id", r.ruleHandler.Delete)
	}
}
