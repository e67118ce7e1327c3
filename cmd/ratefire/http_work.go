package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/ratefire/internal/httpclient"
	"github.com/torosent/ratefire/internal/runner"
	"github.com/torosent/ratefire/internal/tracing"
)

const maxErrorBodyChars = 1024

// httpWork sends the configured request once per tick.
type httpWork struct {
	sender    *httpclient.Sender
	tracer    trace.Tracer
	propagate bool
}

func newHTTPWork(sender *httpclient.Sender, provider *tracing.Provider) *httpWork {
	return &httpWork{
		sender:    sender,
		tracer:    provider.Tracer(),
		propagate: provider.ShouldPropagate(),
	}
}

func (w *httpWork) Do(ctx context.Context, tick runner.Tick) runner.Outcome {
	started := time.Now()
	builder := w.sender.Builder()
	ctx, span := tracing.StartRequestSpan(ctx, w.tracer, builder.Method().String(), builder.Target(), tick.Seq)

	var opts []httpclient.RequestOption
	if w.propagate {
		opts = append(opts, func(req *http.Request) {
			tracing.InjectHTTPHeaders(req.Context(), req.Header)
		})
	}

	resp, err := w.sender.Send(ctx, opts...)
	if err != nil {
		tracing.EndSpan(span, 0, err)
		return runner.Failure(started, err)
	}

	out := classify(resp)
	out.Started = started
	out.Latency = resp.Latency
	tracing.EndSpan(span, resp.Status, out.Err)
	return out
}

// classify maps a response to an outcome: any 2XX status is a success.
func classify(resp *httpclient.Response) runner.Outcome {
	out := runner.Outcome{Class: runner.ClassSuccess, Result: resp}
	if resp.Status < 200 || resp.Status > 299 {
		body := strings.TrimSpace(string(resp.Body))
		if len(body) > maxErrorBodyChars {
			body = body[:maxErrorBodyChars]
		}
		out.Class = runner.ClassFailure
		out.Err = &runner.HTTPError{StatusCode: resp.Status, Body: body}
	}
	return out
}
