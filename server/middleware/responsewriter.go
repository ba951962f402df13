package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/kbukum/resilience-core/errors"
)

// maxErrorPrefix bounds how much of an error response is kept for logging.
// The envelope code comes first and is well inside it.
const maxErrorPrefix = 1024

// responseRecorder captures what the request logger reports: the status, the
// body size and, for 4xx and 5xx responses, the leading bytes of the error
// envelope.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
	errPrefix   []byte
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.wroteHeader {
		rr.status = code
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.wroteHeader = true
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	if rr.status >= 400 && len(rr.errPrefix) < maxErrorPrefix {
		keep := min(n, maxErrorPrefix-len(rr.errPrefix))
		rr.errPrefix = append(rr.errPrefix, b[:keep]...)
	}
	return n, err
}

// errorCode returns the envelope code of an error response, or "" when the
// body is not an envelope or was cut before the code could be read.
func (rr *responseRecorder) errorCode() string {
	if len(rr.errPrefix) == 0 {
		return ""
	}
	var resp apperrors.ErrorResponse
	if err := json.Unmarshal(rr.errPrefix, &resp); err != nil {
		return ""
	}
	return string(resp.Error.Code)
}

func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}
