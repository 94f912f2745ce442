package errors

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Kind tags the outcome of an operation so the HTTP layer can choose a status
// without inspecting error text.
type Kind int

const (
	KindOK Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindNotFound
	KindInfra
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "infra"
	}
}

// Error is a domain failure carrying its kind, a client-facing code and a
// message that is safe to show.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Classify maps any error onto a Kind. Domain errors keep their own kind,
// gorm and driver errors are recognized by type or message, and everything
// else is an infrastructure failure.
func Classify(err error) Kind {
	if err == nil {
		return KindOK
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKey(err) {
		return KindConflict
	}

	return KindInfra
}

// Describe returns the code and message to put in a failure body. Errors
// that are not domain errors collapse to a fixed internal-error body so that
// store details never leave the process.
func Describe(err error) (code, message string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}

	switch Classify(err) {
	case KindNotFound:
		return ResourceNotFound, "resource not found"
	case KindConflict:
		return ResourceAlreadyExists, "resource already exists"
	}
	return InternalServerError, "internal server error"
}

// isDuplicateKey matches unique violations from Postgres (23505) and SQLite.
func isDuplicateKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
