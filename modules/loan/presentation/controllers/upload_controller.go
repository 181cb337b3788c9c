package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/application"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/httpapi"
)

const formField = "file"

type UploadService interface {
	Submit(ctx context.Context, files []services.UploadFile) ([]*xmlupload.Upload, error)
	Get(ctx context.Context, id uuid.UUID) (*xmlupload.Upload, error)
	List(ctx context.Context, params *xmlupload.FindParams) ([]*xmlupload.Upload, int64, error)
}

type UploadControllerOptions struct {
	// MaxRequestSize bounds the whole multipart body.
	MaxRequestSize int64
	PageSize       int
	MaxPageSize    int
}

type UploadController struct {
	service  UploadService
	opts     UploadControllerOptions
	basePath string
}

func NewUploadController(service UploadService, opts UploadControllerOptions) application.Controller {
	if opts.MaxRequestSize <= 0 {
		opts.MaxRequestSize = 32 << 20
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	return &UploadController{
		service:  service,
		opts:     opts,
		basePath: "/api/xml-upload",
	}
}

func (c *UploadController) Key() string {
	return c.basePath
}

func (c *UploadController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.Submit).Methods(http.MethodPost)
	router.HandleFunc("", c.List).Methods(http.MethodGet)
	router.HandleFunc("/{id:[0-9a-fA-F-]{36}}", c.Get).Methods(http.MethodGet)
}

func (c *UploadController) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, c.opts.MaxRequestSize)
	if err := r.ParseMultipartForm(c.opts.MaxRequestSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = httpapi.WriteError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", err.Error(), nil)
			return
		}
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "expected multipart/form-data", nil)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[formField]
	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, err)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}
		files = append(files, services.UploadFile{Name: fh.Filename, Data: data})
	}

	created, err := c.service.Submit(r.Context(), files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]UploadDTO, 0, len(created))
	for _, u := range created {
		out = append(out, toUploadDTO(u))
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, out)
}

func (c *UploadController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	u, err := c.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toUploadDTO(u))
}

func (c *UploadController) List(w http.ResponseWriter, r *http.Request) {
	page := composables.UsePaginated(r, c.opts.PageSize, c.opts.MaxPageSize)
	params := &xmlupload.FindParams{Limit: page.Limit, Offset: page.Offset}
	if status := xmlupload.Status(strings.TrimSpace(r.URL.Query().Get("status"))); status != "" {
		if !status.Valid() {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status "+string(status), nil)
			return
		}
		params.Status = status
	}
	uploads, total, err := c.service.List(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := UploadListResponse{
		Items: make([]UploadDTO, 0, len(uploads)),
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for _, u := range uploads {
		resp.Items = append(resp.Items, toUploadDTO(u))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}
