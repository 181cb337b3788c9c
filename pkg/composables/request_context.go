package composables

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iota-uz/loan-sdk/pkg/constants"
)

// Actor identifies whoever caused a mutation. A nil *Actor means "no actor".
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RequestContext is the attribution carried from an inbound request (or a
// background task invocation) down to the audit recorder.
type RequestContext struct {
	RequestID string `json:"request_id"`
	Actor     *Actor `json:"actor,omitempty"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// NewRequestContext builds a context snapshot with a fresh request id and the
// user agent truncated to maxUA runes.
func NewRequestContext(actor *Actor, ip, userAgent string, maxUA int) *RequestContext {
	return &RequestContext{
		RequestID: uuid.NewString(),
		Actor:     actor,
		IP:        ip,
		UserAgent: TruncateUserAgent(userAgent, maxUA),
	}
}

func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, constants.RequestContextKey, rc)
}

// UseRequestContext returns the request context attached to ctx.
// Background code that was not handed one explicitly gets false.
func UseRequestContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(constants.RequestContextKey).(*RequestContext)
	if !ok || rc == nil {
		return nil, false
	}
	return rc, true
}

// UseActor returns the current actor or nil.
func UseActor(ctx context.Context) *Actor {
	rc, ok := UseRequestContext(ctx)
	if !ok {
		return nil
	}
	return rc.Actor
}

// Snapshot returns a copy that is safe to serialize into a task payload.
func (rc *RequestContext) Snapshot() *RequestContext {
	if rc == nil {
		return nil
	}
	out := *rc
	if rc.Actor != nil {
		a := *rc.Actor
		out.Actor = &a
	}
	return &out
}

// TruncateUserAgent cuts ua to at most max runes. max <= 0 disables truncation.
func TruncateUserAgent(ua string, max int) string {
	if max <= 0 || utf8.RuneCountInString(ua) <= max {
		return ua
	}
	n := 0
	for i := range ua {
		if n == max {
			return ua[:i]
		}
		n++
	}
	return ua
}
