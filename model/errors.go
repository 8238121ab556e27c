package model

import (
	"errors"
	"fmt"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/registrar"
)

type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrInvalidDigest     ErrorCode = "INVALID_DIGEST"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrAlreadyRegistered ErrorCode = "ALREADY_REGISTERED"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrSubmissionFailed  ErrorCode = "SUBMISSION_FAILED"
	ErrRPC               ErrorCode = "RPC_ERROR"
	ErrSuperseded        ErrorCode = "SUPERSEDED"
	ErrInternal          ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error *CodedError `json:"error"`
}

// ErrorFrom maps a domain error onto a CodedError. A *CodedError passes
// through unchanged.
func ErrorFrom(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, digest.ErrInvalid), errors.Is(err, receipt.ErrInvalidDigest):
		return NewError(ErrInvalidDigest, err.Error())
	case errors.Is(err, registrar.ErrAlreadyRegistered):
		return NewError(ErrAlreadyRegistered, err.Error())
	case receipt.IsNotFound(err):
		return NewError(ErrNotFound, err.Error())
	case receipt.IsImmutable(err):
		return NewError(ErrConflict, err.Error())
	}
	switch fault.KindOf(err) {
	case fault.KindDigest:
		return NewError(ErrInvalidRequest, err.Error())
	case fault.KindSubmission:
		return NewError(ErrSubmissionFailed, err.Error())
	case fault.KindRPC, fault.KindRPCTransient:
		return NewError(ErrRPC, err.Error())
	}
	return NewError(ErrInternal, err.Error())
}
