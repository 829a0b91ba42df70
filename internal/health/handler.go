package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler serves the relay's health endpoint. The relay has no external
// dependencies (no database, no message bus, no downstream service) so
// there is nothing to probe beyond the process itself being able to
// answer HTTP requests.
type Handler struct{}

// NewHandler creates a new health check handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Health handles GET /health, returning a plain "ok" body once the
// process is accepting connections.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
