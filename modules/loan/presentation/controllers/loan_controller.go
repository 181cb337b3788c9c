package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/application"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/constants"
	"github.com/iota-uz/loan-sdk/pkg/httpapi"
)

type LoanService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error)
	List(ctx context.Context, params *loan.FindParams) ([]*loan.Loan, int64, error)
	Create(ctx context.Context, l *loan.Loan) (*loan.Loan, error)
	Update(ctx context.Context, id uuid.UUID, upd services.LoanUpdate) (*loan.Loan, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type LoanController struct {
	service     LoanService
	basePath    string
	pageSize    int
	maxPageSize int
}

func NewLoanController(service LoanService, pageSize, maxPageSize int) application.Controller {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &LoanController{
		service:     service,
		basePath:    "/api/loan",
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
	}
}

func (c *LoanController) Key() string {
	return c.basePath
}

func (c *LoanController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.List).Methods(http.MethodGet)
	router.HandleFunc("", c.Create).Methods(http.MethodPost)
	router.HandleFunc("/{id:[0-9a-fA-F-]{36}}", c.Get).Methods(http.MethodGet)
	router.HandleFunc("/{id:[0-9a-fA-F-]{36}}", c.Update).Methods(http.MethodPatch)
	router.HandleFunc("/{id:[0-9a-fA-F-]{36}}", c.Delete).Methods(http.MethodDelete)
}

func (c *LoanController) List(w http.ResponseWriter, r *http.Request) {
	page := composables.UsePaginated(r, c.pageSize, c.maxPageSize)
	params := &loan.FindParams{
		ExternalID: strings.TrimSpace(r.URL.Query().Get("external_id")),
		Source:     loan.Source(strings.TrimSpace(r.URL.Query().Get("source"))),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	loans, total, err := c.service.List(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := LoanListResponse{
		Items: make([]LoanDTO, 0, len(loans)),
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for _, l := range loans {
		dto := toLoanDTO(l)
		dto.Sections = nil
		resp.Items = append(resp.Items, dto)
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *LoanController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	l, err := c.service.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toLoanDTO(l))
}

func (c *LoanController) Create(w http.ResponseWriter, r *http.Request) {
	var dto CreateLoanDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := constants.Validate.Struct(&dto); err != nil {
		_ = httpapi.WriteValidationError(w, r, err, jsonFieldName(dto))
		return
	}
	entity, err := dto.ToEntity()
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := c.service.Create(r.Context(), entity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toLoanDTO(saved))
}

func (c *LoanController) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var dto UpdateLoanDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := constants.Validate.Struct(&dto); err != nil {
		_ = httpapi.WriteValidationError(w, r, err, jsonFieldName(dto))
		return
	}
	upd, err := dto.ToUpdate()
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := c.service.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toLoanDTO(saved))
}

func (c *LoanController) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := c.service.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
