// Package httpclient is the HTTP client shared by the outbound transports.
//
// It owns request building, authentication and status classification. It
// deliberately has no retry or circuit breaker of its own: callers run it
// under the delivery engine or the two-phase coordinator, which own both.
//
//	client, _ := httpclient.New(httpclient.Config{
//	    BaseURL: "https://api.mail.example",
//	    Timeout: 10 * time.Second,
//	    Auth:    httpclient.BearerAuth(apiKey),
//	})
//	resp, err := client.Do(ctx, httpclient.Request{Method: http.MethodPost, Path: "/send", Body: msg})
//	if httpclient.IsRetryable(err) { ... }
package httpclient
