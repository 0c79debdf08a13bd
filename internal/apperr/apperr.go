package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error codes surfaced to API callers.
const (
	CodeSchemaReflection = "SCHEMA_REFLECTION"
	CodeValidation       = "VALIDATION_FAILED"
	CodeMutation         = "MUTATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInternal         = "INTERNAL_ERROR"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	Err     error         `json:"-"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// SchemaReflection reports a failed catalog query or a missing catalog object.
func SchemaReflection(msg string, err error) *AppError {
	return &AppError{Code: CodeSchemaReflection, Status: 500, Message: msg, Err: err}
}

// Validation reports the first offending input. field is the label shown to the
// operator and may be empty for payload-wide problems.
func Validation(field, rule, msg string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Status:  422,
		Message: msg,
		Details: []ErrorDetail{{Field: field, Rule: rule, Message: msg}},
	}
}

func Mutation(msg string, err error) *AppError {
	return &AppError{Code: CodeMutation, Status: 500, Message: msg, Err: err}
}

func NotFound(kind, name string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s %s not found", kind, name),
	}
}

func Conflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Status: 409, Message: msg}
}

func Invalid(msg string) *AppError {
	return &AppError{Code: CodeInvalidPayload, Status: 400, Message: msg}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: 401, Message: msg}
}

func Forbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Status: 403, Message: msg}
}

// Postgres SQLSTATE codes the API distinguishes.
const (
	pgDuplicateTable  = "42P07"
	pgDuplicateColumn = "42701"
	pgDuplicateObject = "42710"
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
	pgUndefinedObject = "42704"
)

// FromDB classifies a failed DDL/DML statement. Errors that already carry a kind
// are returned unchanged.
func FromDB(msg string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDuplicateTable, pgDuplicateColumn, pgDuplicateObject, pgUniqueViolation:
			detail := pgErr.Message
			if pgErr.Detail != "" {
				detail = pgErr.Detail
			}
			return &AppError{Code: CodeConflict, Status: 409, Message: msg + ": " + detail, Err: err}
		case pgUndefinedTable, pgUndefinedColumn, pgUndefinedObject:
			return &AppError{Code: CodeNotFound, Status: 404, Message: msg + ": " + pgErr.Message, Err: err}
		}
	}
	return Mutation(msg, err)
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
