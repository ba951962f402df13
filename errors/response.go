package errors

import (
	stderrors "errors"
)

// ErrorResponse is the error envelope of the HTTP API.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is what a client sees of an AppError. The cause is never
// included; RequestID ties the response to the server's log line instead.
type ErrorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Status    int                    `json:"status"`
	Retryable bool                   `json:"retryable"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts an AppError to its envelope.
func (e *AppError) ToResponse() ErrorResponse {
	return e.ResponseFor("")
}

// ResponseFor converts an AppError to its envelope tagged with requestID.
func (e *AppError) ResponseFor(requestID string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:      e.Code,
			Message:   e.Message,
			Status:    e.HTTPStatus,
			Retryable: e.Retryable,
			RequestID: requestID,
			Details:   e.Details,
		},
	}
}

// From returns the AppError in err's chain, or wraps err as an internal
// error whose message does not reveal the cause. nil stays nil.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
