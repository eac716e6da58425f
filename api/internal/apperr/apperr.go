package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a pipeline failure.
type Code string

const (
	CodeDecode         Code = "DECODE_FAILED"
	CodeRecognition    Code = "RECOGNITION_FAILED"
	CodeModelService   Code = "MODEL_SERVICE_FAILED"
	CodeJSONRecovery   Code = "JSON_RECOVERY_FAILED"
	CodeStorage        Code = "STORAGE_FAILED"
	CodeInvalidRequest Code = "INVALID_REQUEST"
)

// Error is a coded pipeline error. Message is what the caller sees, Cause is
// kept for logs and errors.Is/As.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func Decode(cause error) *Error {
	return &Error{Code: CodeDecode, Message: "cannot decode image", Cause: cause}
}

func Recognition(cause error) *Error {
	return &Error{Code: CodeRecognition, Message: "text recognition failed", Cause: cause}
}

func ModelService(engine string, cause error) *Error {
	return &Error{Code: CodeModelService, Message: fmt.Sprintf("%s completion failed", engine), Cause: cause}
}

func JSONRecovery(cause error) *Error {
	return &Error{Code: CodeJSONRecovery, Message: "model reply is not valid JSON", Cause: cause}
}

func Storage(cause error) *Error {
	return &Error{Code: CodeStorage, Message: "cannot persist last result", Cause: cause}
}

// InvalidRequest is a caller mistake other than a bad image, such as an
// unknown model name.
func InvalidRequest(cause error) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "invalid request", Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error to a conventional status code. Only used when the
// API is configured to report failures with real status codes.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeDecode, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeRecognition, CodeModelService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
