package core

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline or retrieval failure.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeAlreadyCompleted    Code = "ALREADY_COMPLETED"
	CodeExpired             Code = "EXPIRED"
	CodeObjectNotFound      Code = "OBJECT_NOT_FOUND"
	CodeSizeMismatch        Code = "SIZE_MISMATCH"
	CodeContentTypeMismatch Code = "CONTENT_TYPE_MISMATCH"
	CodeETagMismatch        Code = "ETAG_MISMATCH"
	CodeMaterialDuplicate   Code = "MATERIAL_DUPLICATE"
	CodeUnsupportedType     Code = "UNSUPPORTED_TYPE"
	CodeParseFailed         Code = "PARSE_FAILED"
	CodeChunkFailed         Code = "CHUNK_FAILED"
	CodeMetadataInvalid     Code = "METADATA_INVALID"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeQueueUnavailable    Code = "QUEUE_UNAVAILABLE"
)

// CodedError carries a taxonomy code plus optional structured detail
// (e.g. the existing material id on a duplicate upload).
type CodedError struct {
	Code    Code
	Message string
	Detail  map[string]string
	Err     error
}

func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Err }

// Errf builds a CodedError with a formatted message.
func Errf(code Code, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapErr attaches a code to an underlying error.
func WrapErr(code Code, err error, message string) *CodedError {
	return &CodedError{Code: code, Message: message, Err: err}
}

// WithDetail adds one detail entry and returns the same error for chaining.
func (e *CodedError) WithDetail(key, value string) *CodedError {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

// CodeOf extracts the taxonomy code from err, or "" if err is not coded.
func CodeOf(err error) Code {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
