package llm

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// WithReportID tags outgoing model requests with the report they belong to.
func WithReportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func ReportIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// reportHeaderTransport adds X-Report-ID to model requests so proxy logs can
// be matched to reports.
type reportHeaderTransport struct {
	base http.RoundTripper
}

func (t *reportHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if id := ReportIDFromContext(req.Context()); id != "" && req.Header.Get("X-Report-ID") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("X-Report-ID", id)
	}
	return base.RoundTrip(req)
}
