package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/loan-sdk/pkg/application"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/configuration"
	"github.com/iota-uz/loan-sdk/pkg/httpapi"
)

type whoamiController struct{}

func (whoamiController) Key() string { return "/api/whoami" }

func (whoamiController) Register(r *mux.Router) {
	r.HandleFunc("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		rc, _ := composables.UseRequestContext(r.Context())
		_ = httpapi.WriteJSON(w, http.StatusOK, rc)
	}).Methods(http.MethodGet)
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	conf := &configuration.Configuration{
		Origin:          "http://localhost:3200",
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
		UserAgentMaxLen: 8,
		Audit: configuration.AuditOptions{
			ActorIDHeader:   "X-Actor-ID",
			ActorNameHeader: "X-Actor-Name",
		},
	}
	app := application.New(&application.ApplicationOptions{Logger: logger})
	app.RegisterControllers(whoamiController{})

	srv, err := Default(&DefaultOptions{Logger: logger, Configuration: conf, Application: app})
	require.NoError(t, err)
	return srv.Handler()
}

func TestDefault_AttachesRequestContext(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("X-Real-IP", "10.0.0.7")
	req.Header.Set("X-Actor-ID", "u-42")
	req.Header.Set("X-Actor-Name", "Ops")
	req.Header.Set("User-Agent", "a-very-long-agent")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))

	var rc composables.RequestContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rc))
	assert.Equal(t, "req-1", rc.RequestID)
	assert.Equal(t, "10.0.0.7", rc.IP)
	assert.Equal(t, "a-very-l", rc.UserAgent)
	require.NotNil(t, rc.Actor)
	assert.Equal(t, "u-42", rc.Actor.ID)
	assert.Equal(t, "Ops", rc.Actor.Name)
}

func TestDefault_FallbacksAreJSON(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "NOT_FOUND", env.Code)
	assert.NotEmpty(t, env.Meta["request_id"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/whoami", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "METHOD_NOT_ALLOWED", env.Code)
}
