package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/loan-sdk/pkg/composables"
)

type RequestParamsOptions struct {
	RealIPHeader    string
	ActorIDHeader   string
	ActorNameHeader string
	UserAgentMaxLen int
}

func DefaultRequestParamsOptions() RequestParamsOptions {
	return RequestParamsOptions{
		RealIPHeader:    "X-Real-IP",
		ActorIDHeader:   "X-Actor-ID",
		ActorNameHeader: "X-Actor-Name",
		UserAgentMaxLen: 255,
	}
}

// RequestParams attaches composables.Params and the audit RequestContext for
// the lifetime of one request. The actor comes from headers set by the
// authenticating proxy; a request without them has no actor.
func RequestParams(opts RequestParamsOptions) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID, ok := UseRequestID(r.Context())
			if !ok {
				requestID = uuid.New().String()
			}
			ip := getRealIP(r, opts.RealIPHeader)
			ua := composables.TruncateUserAgent(r.UserAgent(), opts.UserAgentMaxLen)

			var actor *composables.Actor
			if id := strings.TrimSpace(r.Header.Get(opts.ActorIDHeader)); id != "" && opts.ActorIDHeader != "" {
				actor = &composables.Actor{ID: id}
				if opts.ActorNameHeader != "" {
					actor.Name = strings.TrimSpace(r.Header.Get(opts.ActorNameHeader))
				}
			}

			ctx := composables.WithParams(r.Context(), &composables.Params{
				IP:        ip,
				UserAgent: ua,
				RequestID: requestID,
				Request:   r,
				Writer:    w,
			})
			ctx = composables.WithRequestContext(ctx, &composables.RequestContext{
				RequestID: requestID,
				Actor:     actor,
				IP:        ip,
				UserAgent: ua,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
