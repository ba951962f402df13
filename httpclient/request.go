package httpclient

import "net/http"

// Request describes an outbound HTTP request.
type Request struct {
	Method string
	// Path is appended to BaseURL unless it is an absolute URL.
	Path    string
	Headers map[string]string
	Query   map[string]string
	// Body accepts []byte, string, or any value to be JSON-encoded.
	Body any
	// Auth overrides the client-level auth.
	Auth *AuthConfig
}

// Response is the result of an HTTP request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
