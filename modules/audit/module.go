package audit

import (
	"github.com/iota-uz/loan-sdk/modules/audit/infrastructure/persistence"
	"github.com/iota-uz/loan-sdk/modules/audit/presentation/controllers"
	"github.com/iota-uz/loan-sdk/modules/audit/services"
	"github.com/iota-uz/loan-sdk/pkg/application"
)

type ModuleOptions struct {
	FailMutation bool
	// Resources exposed under /api/{resource}/{id}/audit, resource -> table.
	Resources   map[string]string
	PageSize    int
	MaxPageSize int
}

func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	recorder := services.NewRecorder(
		persistence.NewAuditEventRepository(),
		services.RecorderOptions{FailMutation: m.opts.FailMutation},
	)
	app.RegisterServices(recorder)
	app.RegisterControllers(
		controllers.NewAuditController(recorder, controllers.AuditControllerOptions{
			Resources:   m.opts.Resources,
			PageSize:    m.opts.PageSize,
			MaxPageSize: m.opts.MaxPageSize,
		}),
	)
	return nil
}

func (m *Module) Name() string {
	return "audit"
}
