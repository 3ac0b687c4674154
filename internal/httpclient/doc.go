// Package httpclient builds the HTTP requests and client used to deliver
// snapshots to a collector.
//
// # Request Building
//
// Use [NewRequestBuilder] to create a builder from configuration. Each call to
// Build produces a fresh POST carrying the supplied JSON body:
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, payload)
//
// Configured headers and the User-Agent are applied to every request;
// credentials are added later by the sink. The body can be replayed through
// req.GetBody.
//
// # HTTP Client
//
// [NewClient] returns a client with pooled keep-alive connections. Deliveries
// are usually bounded by a per-attempt context rather than the client timeout:
//
//	client := httpclient.NewClient(5 * time.Second)
//	resp, err := client.Do(req)
package httpclient
