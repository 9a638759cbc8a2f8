// Package apperr defines the error taxonomy shared by every layer of
// the cloud wallet: a closed set of classified codes with a free-form
// detail, so the HTTP surface and the workers can branch on the code
// without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error into one of the taxonomy entries.
type Code int

const (
	CodeBadRequest Code = iota
	CodeIncorrectAccountID
	CodeAccountNotFound
	CodeDuplicateAccountID
	CodeInvalidTransactionID
	CodeDuplicateTransactionID
	CodeInsufficientBalance
	CodeAccountIsBusy
	CodeAccessDenied
	CodePreviousTxFailed
	CodeRelayerSendError
	CodeTaskRejectedByRelayer
	CodeWeb3Error
	CodeStateSyncError
	CodeDataBaseRead
	CodeDataBaseWrite
	CodeInternal
	CodeReportNotFound
	CodeConfigError
)

var codeNames = map[Code]string{
	CodeBadRequest:            "BadRequest",
	CodeIncorrectAccountID:    "IncorrectAccountId",
	CodeAccountNotFound:       "AccountNotFound",
	CodeDuplicateAccountID:    "DuplicateAccountId",
	CodeInvalidTransactionID:  "InvalidTransactionId",
	CodeDuplicateTransactionID: "DuplicateTransactionId",
	CodeInsufficientBalance:   "InsufficientBalance",
	CodeAccountIsBusy:         "AccountIsBusy",
	CodeAccessDenied:          "AccessDenied",
	CodePreviousTxFailed:      "PreviousTxFailed",
	CodeRelayerSendError:      "RelayerSendError",
	CodeTaskRejectedByRelayer: "TaskRejectedByRelayer",
	CodeWeb3Error:             "Web3Error",
	CodeStateSyncError:        "StateSyncError",
	CodeDataBaseRead:          "DataBaseRead",
	CodeDataBaseWrite:         "DataBaseWrite",
	CodeInternal:              "InternalError",
	CodeReportNotFound:        "ReportNotFound",
	CodeConfigError:           "ConfigError",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Error is the concrete error type carrying a Code, a free-form detail,
// and an optional wrapped cause.
type Error struct {
	Code   Code
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with the given code and detail message.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Wrap builds an Error that carries err as its cause. Returns nil if
// err is nil, so call sites can wrap unconditionally.
func Wrap(code Code, err error, detail string) *Error {
	if err == nil {
		return nil
	}
	if detail == "" {
		detail = err.Error()
	} else {
		detail = fmt.Sprintf("%s: %s", detail, err.Error())
	}
	return &Error{Code: code, Detail: detail, cause: err}
}

// As extracts an *Error from err, if any wraps it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the Code carried by err, or CodeInternal if err does not
// wrap an *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a Code onto its response status: client mistakes are
// 400, failed auth is 401, everything else is 500.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeIncorrectAccountID, CodeAccountNotFound,
		CodeDuplicateAccountID, CodeInvalidTransactionID, CodeDuplicateTransactionID,
		CodeInsufficientBalance:
		return http.StatusBadRequest
	case CodeAccessDenied:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
