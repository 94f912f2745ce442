package util

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// IsValidEmail reports whether email is a syntactically valid address,
// using the same rule as gin's `binding:"email"` tag.
func IsValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
