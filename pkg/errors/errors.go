package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error carrying a stable code for API consumers and an
// optional internal cause for logging.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is reports whether target is an AppError with the same code, so copies produced by
// WithInternal or WithMessage still match the sentinel they were derived from.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return false
	}
	var other *AppError
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(format string, args ...any) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = fmt.Sprintf(format, args...)
	return &cpy
}

// Generic errors.
var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// Quiz errors. Every one of them is local to the channel that triggered it.
var (
	ErrEmptyPool = &AppError{
		Code:       "quiz.empty_pool",
		Message:    "No songs match the selected filters",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInsufficientPool = &AppError{
		Code:       "quiz.insufficient_pool",
		Message:    "Not enough distinct songs for the requested number of rounds",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrSessionAlreadyActive = &AppError{
		Code:       "quiz.session_active",
		Message:    "A quiz is already running in this channel",
		StatusCode: http.StatusConflict,
	}

	ErrNoActiveSession = &AppError{
		Code:       "quiz.no_session",
		Message:    "No quiz is running in this channel",
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidConfig = &AppError{
		Code:       "quiz.invalid_config",
		Message:    "Invalid quiz configuration",
		StatusCode: http.StatusBadRequest,
	}

	ErrSessionFailed = &AppError{
		Code:       "quiz.session_failed",
		Message:    "The quiz ended because of an internal error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrNotHost = &AppError{
		Code:       "quiz.not_host",
		Message:    "Only the host can do that",
		StatusCode: http.StatusForbidden,
	}

	ErrInvalidPhase = &AppError{
		Code:       "quiz.invalid_phase",
		Message:    "The quiz is not in a state that allows this action",
		StatusCode: http.StatusConflict,
	}

	ErrNothingToReplay = &AppError{
		Code:       "quiz.nothing_to_replay",
		Message:    "No previous quiz to replay in this channel",
		StatusCode: http.StatusNotFound,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
