// Package mailtemplate provides administration of reusable mail templates.
package mailtemplate

import (
	"fmt"

	apphttp "recruitment_backend/internal/http"
	"recruitment_backend/internal/mailtemplate/handler"
	"recruitment_backend/internal/mailtemplate/repository"
	"recruitment_backend/internal/mailtemplate/service"
	"recruitment_backend/internal/mailtemplate/transport"
	"recruitment_backend/platform/logger"
	"recruitment_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the mail template module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) (*Module, error) {
	if err := transport.RegisterValidations(val); err != nil {
		return nil, fmt.Errorf("register mail template validations: %w", err)
	}
	svc := service.New(repository.New(pool), log)
	return &Module{handler: handler.New(svc, val)}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "mailtemplate"
}

// RegisterRoutes mounts template routes; writes require the admin role.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	read := ctx.Protected.Group("/mail-templates")
	read.GET("", m.handler.List)
	read.GET("/:id", m.handler.Get)

	write := ctx.Admin.Group("/mail-templates")
	write.POST("", m.handler.Create)
	write.PUT("/:id", m.handler.Update)
}

var _ apphttp.Module = (*Module)(nil)
