// Package httpclient provides a configurable HTTP client with built-in
// authentication, TLS, and resilience (retry, circuit breaker, rate
// limiting).
//
// # Basic Usage
//
//	client, _ := httpclient.New(httpclient.Config{
//	    BaseURL: "https://api.example.com",
//	    Timeout: 30 * time.Second,
//	    Auth:    httpclient.BearerAuth("my-token"),
//	})
//
//	resp, err := client.Do(ctx, httpclient.Request{
//	    Method: http.MethodGet,
//	    Path:   "/users/123",
//	})
//
// # REST Convenience
//
// The httpclient/rest subpackage decodes JSON responses into a typed
// Response[T]:
//
//	rc, _ := rest.New(httpclient.Config{BaseURL: "https://api.example.com"})
//	resp, err := rest.Post[SeriesResponse](ctx, rc, "/query", body)
//
// # With Resilience
//
//	client, _ := httpclient.New(httpclient.Config{
//	    BaseURL:        "https://api.example.com",
//	    Retry:          httpclient.DefaultRetryConfig(),
//	    CircuitBreaker: httpclient.DefaultCircuitBreakerConfig("historical-source"),
//	})
package httpclient
