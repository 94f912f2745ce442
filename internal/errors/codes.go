package errors

// Error codes returned in the "error" field of failure bodies.
// Format: CATEGORY_DETAIL. Clients map these to localized messages.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized       = "AUTH_UNAUTHORIZED"        // login required
	AuthInvalidCredentials = "AUTH_INVALID_CREDENTIALS" // wrong email or password
	AuthTokenExpired       = "AUTH_TOKEN_EXPIRED"       // access token expired
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"       // malformed or forged access token
	AuthEmailAlreadyExists = "AUTH_EMAIL_EXISTS"        // duplicate email on registration
	AuthResetTokenInvalid  = "AUTH_RESET_TOKEN_INVALID" // unknown, expired or consumed reset token

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput  = "VALIDATION_INVALID_INPUT"
	ValidationInvalidFormat = "VALIDATION_INVALID_FORMAT"
	ValidationRequired      = "VALIDATION_REQUIRED"
	ValidationTooShort      = "VALIDATION_TOO_SHORT"
	ValidationTooLong       = "VALIDATION_TOO_LONG"

	// ==================== Resource (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"

	// ==================== Rate limit (RATE_) ====================
	RateLimitExceeded = "RATE_LIMIT_EXCEEDED"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError = "INTERNAL_SERVER_ERROR"
)
