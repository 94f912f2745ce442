package service

import (
	apperrors "github.com/janicogyle/ccs-membership-sub001/internal/errors"
)

// Domain errors. Messages are safe to return to clients as-is.
var (
	ErrMissingField       = apperrors.New(apperrors.KindValidation, apperrors.ValidationRequired, "required field is missing")
	ErrInvalidEmail       = apperrors.New(apperrors.KindValidation, apperrors.ValidationInvalidFormat, "email address is invalid")
	ErrWeakPassword       = apperrors.New(apperrors.KindValidation, apperrors.ValidationTooShort, "password is too short")
	ErrPasswordTooLong    = apperrors.New(apperrors.KindValidation, apperrors.ValidationTooLong, "password is too long")
	ErrInvalidResetToken  = apperrors.New(apperrors.KindValidation, apperrors.AuthResetTokenInvalid, "invalid or expired token")
	ErrInvalidCredentials = apperrors.New(apperrors.KindAuth, apperrors.AuthInvalidCredentials, "invalid credentials")
	ErrEmailAlreadyExists = apperrors.New(apperrors.KindConflict, apperrors.AuthEmailAlreadyExists, "email or student number already registered")
	ErrAccountNotFound    = apperrors.New(apperrors.KindNotFound, apperrors.ResourceNotFound, "account not found")
)
