package http

import "github.com/gin-gonic/gin"

// Module is a bounded context that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext hands modules the pre-built route groups.
//
//	V1        /api/v1, no auth
//	Webhooks  /api/v1/webhook, shared secret and rate limit
//	Internal  /api/v1, shared secret only
type RouterContext struct {
	Engine   *gin.Engine
	V1       *gin.RouterGroup
	Webhooks *gin.RouterGroup
	Internal *gin.RouterGroup
}
