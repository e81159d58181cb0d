// Package conversation provides the conversation orchestration bounded context.
// This file defines the module that wires the repository, the engine and the
// HTTP handlers together.
package conversation

import (
	"engagement_backend/internal/conversation/handler"
	"engagement_backend/internal/conversation/repository"
	"engagement_backend/internal/conversation/service"
	apphttp "engagement_backend/internal/http"
	"engagement_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the conversation bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates the module. deps.Store is always the Postgres repository.
func NewModule(pool *pgxpool.Pool, deps service.Deps, val *validator.Validator) *Module {
	repo := repository.New(pool)
	deps.Store = repo
	svc := service.NewService(deps)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversation"
}

// Service returns the orchestration engine.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the CRM webhooks and the contact read endpoint.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/inbound", m.handler.HandleInbound)
	ctx.Webhooks.POST("/bump", m.handler.HandleBump)
	ctx.Webhooks.POST("/booking", m.handler.HandleBooking)
	ctx.Webhooks.POST("/opt-out", m.handler.HandleOptOut)
	ctx.Webhooks.POST("/manual-reply", m.handler.HandleManualReply)

	ctx.Internal.GET("/contacts/:externalId", m.handler.GetContact)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
