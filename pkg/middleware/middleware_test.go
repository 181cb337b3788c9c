package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/loan-sdk/pkg/composables"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestWithLogger_AssignsRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UseRequestID(r.Context())
		require.True(t, ok)
		seen = id
		require.NotNil(t, composables.UseLogger(r.Context()))
	}), WithLogger(quietLogger(), DefaultLoggerOptions()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/loan", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/api/loan", nil))
	require.NotEqual(t, seen, rec2.Header().Get("X-Request-Id"))
}

func TestWithLogger_RecoversPanicAsJSONOnAPI(t *testing.T) {
	t.Parallel()

	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), WithLogger(quietLogger(), DefaultLoggerOptions()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/loan/1", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestRequestParams_BuildsRequestContext(t *testing.T) {
	t.Parallel()

	var rc *composables.RequestContext
	opts := DefaultRequestParamsOptions()
	opts.UserAgentMaxLen = 5
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		rc, ok = composables.UseRequestContext(r.Context())
		require.True(t, ok)
	}), WithLogger(quietLogger(), DefaultLoggerOptions()), RequestParams(opts))

	req := httptest.NewRequest(http.MethodPost, "/api/loan", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Real-IP", "203.0.113.7")
	req.Header.Set("X-Actor-ID", "17")
	req.Header.Set("X-Actor-Name", "jdoe")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, rc)
	require.Equal(t, rec.Header().Get("X-Request-Id"), rc.RequestID)
	require.Equal(t, "203.0.113.7", rc.IP)
	require.Equal(t, "Mozil", rc.UserAgent)
	require.Equal(t, &composables.Actor{ID: "17", Name: "jdoe"}, rc.Actor)
}

func TestRequestParams_AnonymousHasNoActor(t *testing.T) {
	t.Parallel()

	var actor *composables.Actor
	called := false
	h := RequestParams(DefaultRequestParamsOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		actor = composables.UseActor(r.Context())
		rc, _ := composables.UseRequestContext(r.Context())
		require.NotEmpty(t, rc.RequestID)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
	require.Nil(t, actor)
}

func TestRateLimit_Rejects(t *testing.T) {
	t.Parallel()

	h := RateLimit(RateLimitConfig{RequestsPerPeriod: 1, Store: NewMemoryStore()})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/loan", nil))
	require.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/loan", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.True(t, strings.Contains(second.Body.String(), "RATE_LIMITED"))
}
