// Package automation provides the automation engine: change detection,
// the trigger orchestrator and the administration of automation definitions.
package automation

import (
	"fmt"

	"recruitment_backend/internal/automation/archive"
	"recruitment_backend/internal/automation/changes"
	"recruitment_backend/internal/automation/handler"
	"recruitment_backend/internal/automation/registry"
	"recruitment_backend/internal/automation/repository"
	"recruitment_backend/internal/automation/service"
	"recruitment_backend/internal/automation/transport"
	"recruitment_backend/internal/events"
	apphttp "recruitment_backend/internal/http"
	"recruitment_backend/platform/config"
	"recruitment_backend/platform/distlock"
	"recruitment_backend/platform/invalidation"
	"recruitment_backend/platform/logger"
	"recruitment_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the automation bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	service      *service.Service
	orchestrator *service.Orchestrator
	registry     *registry.Registry
	tracker      *changes.Tracker
	deliveries   *repository.Deliveries
	log          *logger.Logger
}

// NewModule wires repositories, the registry cache and the orchestrator.
// The locker serializes processing per entity; pass a distlock.Chain to
// cover several processes.
func NewModule(
	pool *pgxpool.Pool,
	cfg config.AutomationConfig,
	val *validator.Validator,
	bus events.Bus,
	broadcaster invalidation.Broadcaster,
	mailer service.Mailer,
	locker distlock.Locker,
	log *logger.Logger,
) (*Module, error) {
	if err := transport.RegisterValidations(val); err != nil {
		return nil, fmt.Errorf("register automation validations: %w", err)
	}

	automations := repository.NewAutomations(pool)
	deliveries := repository.NewDeliveries(pool)
	loader := repository.NewLoader(pool, cfg.GetDefaultLocale())
	reg := registry.New(automations, cfg.GetRegistryCacheTTL())
	tracker := changes.NewTracker(pool, bus, log)

	orchestrator := service.NewOrchestrator(reg, loader, deliveries, mailer, locker, service.OrchestratorOptions{
		Concurrency:   cfg.GetAutomationConcurrency(),
		PublicBaseURL: cfg.GetPublicBaseURL(),
		DefaultLocale: cfg.GetDefaultLocale(),
	}, log)

	svc := service.New(automations, deliveries, loader, tracker, broadcaster, service.PreviewOptions{
		PublicBaseURL: cfg.GetPublicBaseURL(),
		DefaultLocale: cfg.GetDefaultLocale(),
	}, log)

	broadcaster.OnNotice(service.ScopeAutomations, func(invalidation.Notice) {
		reg.Invalidate()
	})

	return &Module{
		handler:      handler.New(svc, val),
		service:      svc,
		orchestrator: orchestrator,
		registry:     reg,
		tracker:      tracker,
		deliveries:   deliveries,
		log:          log,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "automation"
}

// SetArchive stores every rendered message before it is sent and enables
// archive download links.
func (m *Module) SetArchive(a *archive.Archive) {
	m.orchestrator.SetArchive(a)
	m.service.SetArchive(a)
}

// RegisterHandlers subscribes to entity changes. With a non-nil forward
// handler, changes are handed to it (typically the durable queue) instead
// of being processed in this process.
func (m *Module) RegisterHandlers(bus events.Bus, forward events.Handler) {
	name := events.EntityChanged{}.EventName()
	if forward != nil {
		bus.Subscribe(name, forward)
		m.log.Info("entity changes forwarded to the automation queue")
		return
	}
	bus.Subscribe(name, m.orchestrator)
}

// Tracker returns the change tracker that writers use to publish committed
// entity changes.
func (m *Module) Tracker() *changes.Tracker {
	return m.tracker
}

// Service returns the automation administration service.
func (m *Module) Service() *service.Service {
	return m.service
}

// Orchestrator returns the trigger orchestrator.
func (m *Module) Orchestrator() *service.Orchestrator {
	return m.orchestrator
}

// Deliveries exposes delivery maintenance to the scheduler.
func (m *Module) Deliveries() repository.DeliveryMaintenance {
	return m.deliveries
}

// RegisterRoutes mounts automation routes. Reads are tenant scoped; writes
// require the admin role.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	read := ctx.Protected.Group("/automations")
	read.GET("", m.handler.List)
	read.GET("/deliveries", m.handler.ListDeliveries)
	read.GET("/deliveries/:id/archive", m.handler.DeliveryArchive)
	read.GET("/:id", m.handler.Get)

	write := ctx.Admin.Group("/automations")
	write.POST("", m.handler.Create)
	write.POST("/entity-events", m.handler.NotifyEntityEvent)
	write.PUT("/:id", m.handler.Update)
	write.DELETE("/:id", m.handler.Delete)
	write.POST("/:id/preview", m.handler.Preview)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
