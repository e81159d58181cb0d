package settings

import (
	"strings"

	apphttp "engagement_backend/internal/http"
	"engagement_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module exposes profile cache invalidation after agent_settings rows are
// edited out of band.
type Module struct {
	provider *Provider
}

func NewModule(provider *Provider) *Module {
	return &Module{provider: provider}
}

func (m *Module) Name() string { return "settings" }

// RegisterRoutes mounts POST /settings/:locationId/refresh. Use "*" to drop
// every cached location.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Internal.POST("/settings/:locationId/refresh", m.refresh)
}

func (m *Module) refresh(c *gin.Context) {
	locationID := strings.TrimSpace(c.Param("locationId"))
	m.provider.Refresh(locationID)
	httpkit.OK(c, gin.H{"refreshed": locationID})
}

var _ apphttp.Module = (*Module)(nil)
