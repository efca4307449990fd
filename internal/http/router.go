// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"opsconsole/internal/http/middleware"
)

func (s *Server) register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api", s.auth())

	admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/reconcile/:domain", s.admin.Reconcile)
	admin.POST("/thumbnails", s.admin.Thumbnail)

	records := api.Group("/:domain")
	records.POST("/records", s.records.Create)
	records.GET("/records", s.records.List)
	records.GET("/records/:id", s.records.Get)
	records.POST("/records/:id/status", s.records.Transition)
	records.POST("/records/:id/note", s.records.Note)
	records.POST("/records/:id/complete", s.records.Complete)
	records.GET("/records/:id/events", s.records.Events)
	records.GET("/history/:kind", s.records.History)
}
