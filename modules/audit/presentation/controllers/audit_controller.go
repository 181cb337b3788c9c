package controllers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iota-uz/loan-sdk/modules/audit/domain/auditevent"
	"github.com/iota-uz/loan-sdk/modules/audit/services"
	"github.com/iota-uz/loan-sdk/pkg/application"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/httpapi"
)

type AuditControllerOptions struct {
	// Resources maps a URL resource name to its audited table, producing
	// GET /api/{resource}/{id}/audit.
	Resources   map[string]string
	PageSize    int
	MaxPageSize int
}

type AuditController struct {
	recorder *services.Recorder
	opts     AuditControllerOptions
	basePath string
}

func NewAuditController(recorder *services.Recorder, opts AuditControllerOptions) application.Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &AuditController{
		recorder: recorder,
		opts:     opts,
		basePath: "/api/audit",
	}
}

func (c *AuditController) Key() string {
	return c.basePath
}

func (c *AuditController) Register(r *mux.Router) {
	r.HandleFunc(c.basePath, c.List).Methods(http.MethodGet)

	resources := make([]string, 0, len(c.opts.Resources))
	for resource := range c.opts.Resources {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	for _, resource := range resources {
		table := c.opts.Resources[resource]
		r.HandleFunc("/api/"+resource+"/{id}/audit", c.listForRow(table)).Methods(http.MethodGet)
	}
}

func (c *AuditController) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := &auditevent.FindParams{
		TableName: strings.TrimSpace(q.Get("table")),
		RowPK:     strings.TrimSpace(q.Get("row_pk")),
	}
	if op := strings.TrimSpace(q.Get("operation")); op != "" {
		parsed, err := auditevent.ParseOperation(strings.ToUpper(op))
		if err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_OPERATION", err.Error(), nil)
			return
		}
		params.Operation = parsed
	}
	c.respond(w, r, params)
}

func (c *AuditController) listForRow(table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.respond(w, r, &auditevent.FindParams{
			TableName: table,
			RowPK:     mux.Vars(r)["id"],
		})
	}
}

func (c *AuditController) respond(w http.ResponseWriter, r *http.Request, params *auditevent.FindParams) {
	page := composables.UsePaginated(r, c.opts.PageSize, c.opts.MaxPageSize)
	params.Limit = page.Limit
	params.Offset = page.Offset

	events, total, err := c.recorder.List(r.Context(), params)
	if err != nil {
		_ = httpapi.WriteServiceError(w, r, err)
		return
	}

	resp := AuditListResponse{
		Items: make([]AuditEventDTO, 0, len(events)),
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for _, e := range events {
		resp.Items = append(resp.Items, toAuditEventDTO(e))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}
