package loan

import (
	"fmt"

	auditservices "github.com/iota-uz/loan-sdk/modules/audit/services"
	"github.com/iota-uz/loan-sdk/modules/loan/infrastructure/persistence"
	"github.com/iota-uz/loan-sdk/modules/loan/presentation/controllers"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/application"
	"github.com/iota-uz/loan-sdk/pkg/taskqueue"
	"github.com/iota-uz/loan-sdk/pkg/xmlspec"
)

type ModuleOptions struct {
	Spec xmlspec.Spec
	// Queue schedules upload jobs; Router receives the upload topic handler.
	Queue         taskqueue.Enqueuer
	Router        *taskqueue.Router
	MaxFiles      int
	MaxUploadSize int64
	PageSize      int
	MaxPageSize   int
}

// NewModule wires the loan services. The audit module must be registered
// first.
func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	if m.opts.Queue == nil || m.opts.Router == nil {
		return fmt.Errorf("loan module: task queue and router are required")
	}
	recorder := app.Service(auditservices.Recorder{}).(*auditservices.Recorder)
	loanRepo := persistence.NewLoanRepository()

	importer, err := services.NewImporter(loanRepo, recorder, services.ImporterOptions{Spec: m.opts.Spec})
	if err != nil {
		return err
	}
	uploadService := services.NewUploadService(
		persistence.NewXMLUploadRepository(),
		importer,
		m.opts.Queue,
		services.UploadServiceOptions{
			MaxFiles: m.opts.MaxFiles,
			MaxSize:  m.opts.MaxUploadSize,
		},
	)
	uploadService.Register(m.opts.Router)
	loanService := services.NewLoanService(loanRepo, recorder)

	app.RegisterServices(importer, uploadService, loanService)
	app.RegisterControllers(
		controllers.NewLoanController(loanService, m.opts.PageSize, m.opts.MaxPageSize),
		controllers.NewUploadController(uploadService, controllers.UploadControllerOptions{
			MaxRequestSize: m.opts.MaxUploadSize * int64(max(m.opts.MaxFiles, 1)),
			PageSize:       m.opts.PageSize,
			MaxPageSize:    m.opts.MaxPageSize,
		}),
	)
	return nil
}

func (m *Module) Name() string {
	return "loan"
}
