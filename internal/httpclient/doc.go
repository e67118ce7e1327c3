// Package httpclient builds and sends the single configured HTTP request.
//
// [NewRequestBuilder] resolves the request once at startup: canonical headers, the
// method, and a [BodySource] that is only attached for POST, PUT and PATCH.
// [Sender] builds a fresh request per tick, sends it, and keeps up to
// [MaxResponseBody] bytes of the response for reporting:
//
//	client, err := httpclient.NewClient(cfg.Timeout, cfg.HTTP2)
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	resp, err := httpclient.NewSender(client, builder).Send(ctx)
//
// Non-2XX responses are returned as responses, not errors. Classification is up to the caller.
package httpclient
