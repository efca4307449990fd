// README: API gateway; builds the gin engine and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"opsconsole/internal/http/handlers"
	"opsconsole/internal/http/middleware"
	"opsconsole/internal/infra"
	"opsconsole/internal/modules/lifecycle"
)

type ServerDeps struct {
	Lifecycle  *lifecycle.Service
	Events     handlers.EventReader
	Thumbnails handlers.ThumbnailRequester
	// Verifier nil disables token verification and treats every caller as a
	// local admin.
	Verifier infra.TokenVerifier
	Metrics  http.Handler
	Logger   *zap.Logger
}

type Server struct {
	records  *handlers.RecordHandler
	admin    *handlers.AdminHandler
	verifier infra.TokenVerifier
	metrics  http.Handler
	log      *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		records:  handlers.NewRecordHandler(deps.Lifecycle, deps.Events),
		admin:    handlers.NewAdminHandler(deps.Lifecycle, deps.Thumbnails),
		verifier: deps.Verifier,
		metrics:  deps.Metrics,
		log:      logger,
	}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))
	s.register(r)
	return r
}

func (s *Server) auth() gin.HandlerFunc {
	if s.verifier == nil {
		return middleware.DevAuth()
	}
	return middleware.Auth(s.verifier)
}
