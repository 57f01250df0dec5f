// Package mail provides the mail gateway and the administration of provider
// configurations.
package mail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apphttp "recruitment_backend/internal/http"
	"recruitment_backend/internal/mail/credentials"
	"recruitment_backend/internal/mail/domain"
	"recruitment_backend/internal/mail/gateway"
	"recruitment_backend/internal/mail/handler"
	"recruitment_backend/internal/mail/provider"
	"recruitment_backend/internal/mail/repository"
	"recruitment_backend/internal/mail/service"
	"recruitment_backend/internal/mail/transport"
	"recruitment_backend/platform/config"
	"recruitment_backend/platform/invalidation"
	"recruitment_backend/platform/logger"
	"recruitment_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the mail bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	gateway *gateway.Gateway
}

// NewModule wires the configuration repository, the credential cipher and
// the gateway. Invalidation notices from any process drop cached senders.
func NewModule(pool *pgxpool.Pool, cfg config.MailConfig, val *validator.Validator, broadcaster invalidation.Broadcaster, log *logger.Logger) (*Module, error) {
	if err := transport.RegisterValidations(val); err != nil {
		return nil, fmt.Errorf("register mail validations: %w", err)
	}
	cipher, err := credentials.New(cfg.GetMailCredentialsSecret())
	if err != nil {
		return nil, fmt.Errorf("mail credentials: %w", err)
	}

	repo := repository.New(pool)
	client := &http.Client{Timeout: 30 * time.Second}
	factory := func(ctx context.Context, c domain.Configuration, creds domain.Credentials) (provider.Sender, error) {
		return provider.New(ctx, c, creds, client)
	}
	gw := gateway.New(repo, cipher, factory, gateway.Options{
		MaxAttempts: cfg.GetMailMaxAttempts(),
		BaseDelay:   cfg.GetMailRetryBaseDelay(),
		MaxDelay:    cfg.GetMailRetryMaxDelay(),
		CacheTTL:    cfg.GetMailConfigCacheTTL(),
	}, log)

	broadcaster.OnNotice(service.ScopeMailConfigurations, func(n invalidation.Notice) {
		if n.Key == "" {
			gw.InvalidateAll()
			return
		}
		if id, err := uuid.Parse(n.Key); err == nil {
			gw.Invalidate(&id)
		}
	})

	svc := service.New(repo, cipher, broadcaster, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		gateway: gw,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "mail"
}

// Gateway returns the delivery gateway used by the automation engine.
func (m *Module) Gateway() *gateway.Gateway {
	return m.gateway
}

// RegisterRoutes mounts mail configuration routes. Every route requires
// the admin role.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/mail-configurations")
	group.GET("", m.handler.List)
	group.POST("", m.handler.Create)
	group.GET("/:id", m.handler.Get)
	group.PUT("/:id", m.handler.Update)
	group.DELETE("/:id", m.handler.Delete)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
