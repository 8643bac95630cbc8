// Package httplogger provides a http.RoundTripper middleware that logs outgoing
// HTTP requests and responses at debug level.
package httplogger

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// New returns a http.RoundTripper that logs every request made through t.
//
// If scrub is not nil, it is applied to request URLs before they are
// logged. Use it to hide secrets embedded into URLs, such as bot tokens.
// A nil t means [http.DefaultTransport].
func New(t http.RoundTripper, l *slog.Logger, scrub *strings.Replacer) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	if l == nil {
		l = slog.Default()
	}
	return &loggingTransport{transport: t, logger: l, scrub: scrub}
}

type loggingTransport struct {
	transport http.RoundTripper
	logger    *slog.Logger
	scrub     *strings.Replacer
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	url := r.URL.String()
	if t.scrub != nil {
		url = t.scrub.Replace(url)
	}

	start := time.Now()
	resp, err := t.transport.RoundTrip(r)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("url", url),
		slog.Duration("took", time.Since(start)),
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
	}
	if err != nil {
		msg := err.Error()
		if t.scrub != nil {
			msg = t.scrub.Replace(msg)
		}
		attrs = append(attrs, slog.String("err", msg))
	}
	t.logger.LogAttrs(context.Background(), slog.LevelDebug, "http request", attrs...)

	return resp, err
}
