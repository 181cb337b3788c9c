package modules

import (
	"fmt"

	"github.com/iota-uz/loan-sdk/modules/audit"
	"github.com/iota-uz/loan-sdk/modules/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/application"
	"github.com/iota-uz/loan-sdk/pkg/configuration"
	"github.com/iota-uz/loan-sdk/pkg/taskqueue"
	"github.com/iota-uz/loan-sdk/pkg/xmlspec"
)

type BuiltInOptions struct {
	Configuration *configuration.Configuration
	Spec          xmlspec.Spec
	Queue         taskqueue.Enqueuer
	Router        *taskqueue.Router
}

// BuiltInModules returns audit followed by loan; loan resolves the audit
// recorder at registration.
func BuiltInModules(opts BuiltInOptions) []application.Module {
	conf := opts.Configuration
	return []application.Module{
		audit.NewModule(audit.ModuleOptions{
			FailMutation: conf.Audit.FailMutation,
			Resources:    map[string]string{"loan": services.LoanTable},
			PageSize:     conf.PageSize,
			MaxPageSize:  conf.MaxPageSize,
		}),
		loan.NewModule(loan.ModuleOptions{
			Spec:          opts.Spec,
			Queue:         opts.Queue,
			Router:        opts.Router,
			MaxFiles:      conf.Import.MaxFiles,
			MaxUploadSize: conf.Import.MaxUploadSize,
			PageSize:      conf.PageSize,
			MaxPageSize:   conf.MaxPageSize,
		}),
	}
}

// Load registers modules in order.
func Load(app application.Application, modules ...application.Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", module.Name(), err)
		}
	}
	return nil
}
