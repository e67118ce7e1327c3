// Package report turns executed outcomes into log lines and metrics.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/torosent/ratefire/internal/httpclient"
	"github.com/torosent/ratefire/internal/metrics"
	"github.com/torosent/ratefire/internal/runner"
)

const (
	// MaxBodyChars is how many characters of a body are logged before truncation.
	MaxBodyChars    = 500
	truncatedMarker = "... (truncated)"
	noneMarker      = "(None)"
)

// Request describes the configured request, logged alongside every failure.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Options configure a Reporter.
type Options struct {
	Logger       logrus.FieldLogger
	Collector    *metrics.Collector
	Exporter     *metrics.Exporter // optional
	Request      Request
	LogSuccesses bool
}

// Reporter records every executed tick and logs it.
type Reporter struct {
	log          logrus.FieldLogger
	collector    *metrics.Collector
	exporter     *metrics.Exporter
	request      Request
	headersJSON  string
	requestBody  string
	logSuccesses bool
}

func New(opts Options) *Reporter {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Reporter{
		log:          log,
		collector:    collector,
		exporter:     opts.Exporter,
		request:      opts.Request,
		headersJSON:  toJSON(opts.Request.Headers),
		requestBody:  DisplayBody(opts.Request.Body),
		logSuccesses: opts.LogSuccesses,
	}
}

// Collector returns the collector receiving every sample.
func (r *Reporter) Collector() *metrics.Collector { return r.collector }

// Report implements runner.Reporter.
func (r *Reporter) Report(tick runner.Tick, out runner.Outcome) {
	resp, _ := out.Result.(*httpclient.Response)
	status := 0
	if resp != nil {
		status = resp.Status
	}

	sample := metrics.Sample{
		Latency:    out.Latency,
		Lag:        out.Lag(tick),
		StatusCode: status,
		Err:        out.Err,
	}
	if sample.Err == nil && !out.Success() {
		sample.Err = errors.New("unclassified failure")
	}
	r.collector.Record(sample)
	if r.exporter != nil {
		r.exporter.Observe(sample)
	}

	entry := r.log.WithFields(logrus.Fields{
		"seq":        tick.Seq,
		"latency_ms": float64(out.Latency.Microseconds()) / 1000,
	})
	entry.WithField("lag_ms", float64(sample.Lag.Microseconds())/1000).Debug("tick completed")

	if out.Success() {
		if r.logSuccesses {
			entry.Infof("SUCCESS: %d", status)
		}
		return
	}
	r.logFailure(entry, out, resp, status)
}

func (r *Reporter) logFailure(entry logrus.FieldLogger, out runner.Outcome, resp *httpclient.Response, status int) {
	url := r.request.URL
	fields := logrus.Fields{
		"request_method":  r.request.Method,
		"request_url":     r.request.URL,
		"request_headers": r.headersJSON,
		"request_body":    r.requestBody,
		"response_status": status,
	}
	if resp != nil {
		if resp.URL != "" {
			url = resp.URL
		}
		fields["response_headers"] = headerJSON(resp.Header)
		fields["response_body"] = DisplayBody(compactJSON(resp.Body))
	} else {
		fields["response_headers"] = "{}"
		fields["response_body"] = noneMarker
	}
	if out.Err != nil {
		fields["error"] = out.Err.Error()
	}
	entry.WithFields(fields).Errorf("FAILURE: %d (URL: %s)", status, url)
}

// DisplayBody renders a body for logs: "(None)" when empty, otherwise at most
// MaxBodyChars characters followed by a truncation marker.
func DisplayBody(body string) string {
	if body == "" {
		return noneMarker
	}
	return Truncate(body, MaxBodyChars)
}

// Truncate shortens s to limit characters and appends "... (truncated)" when it was longer.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + truncatedMarker
}

// compactJSON strips insignificant whitespace from JSON bodies so more of them fits in a log line.
func compactJSON(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		return gjson.GetBytes(body, "@ugly").Raw
	}
	return string(body)
}

func headerJSON(h http.Header) string {
	if len(h) == 0 {
		return "{}"
	}
	flat := make(map[string]string, len(h))
	for k := range h {
		flat[k] = h.Get(k)
	}
	return toJSON(flat)
}

func toJSON(v map[string]string) string {
	if len(v) == 0 {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
