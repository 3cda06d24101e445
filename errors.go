package auth

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
)

// Business codes reported in the error body next to the HTTP status.
const (
	BusinessCodeAccountLocked   = 302
	BusinessCodeAccountDisabled = 303
	BusinessCodeBadCredentials  = 304
	BusinessCodeNotFound        = 305
	BusinessCodeConflict        = 306
	BusinessCodeNotAuthorized   = 307
)

const (
	TextCodeConflict              = "IDENTIFIER_CONFLICT"
	TextCodeNotFound              = "NOT_FOUND"
	TextCodeInvalidToken          = "INVALID_TOKEN"
	TextCodeSignatureInvalid      = "TOKEN_SIGNATURE_INVALID"
	TextCodeMissingToken          = "MISSING_TOKEN"
	TextCodeRefreshNotAllowed     = "REFRESH_TOKEN_NOT_ALLOWED"
	TextCodeOperationNotPermitted = "OPERATION_NOT_PERMITTED"
	TextCodeDeliveryFailed        = "ACTIVATION_DELIVERY_FAILED"
	TextCodeAlreadyActive         = "ACCOUNT_ALREADY_ACTIVE"
	TextCodeValidation            = "VALIDATION_FAILED"
	TextCodeAuthorityGranted      = "AUTHORITY_ALREADY_GRANTED"
	TextCodeUnknownAuthority      = "UNKNOWN_AUTHORITY"
)

var (
	ErrIdentifierTaken        = newError("an account with this identifier already exists", errors.CategoryConflict, errors.CodeConflict, TextCodeConflict)
	ErrInvalidCredentials     = newError("login and / or password is incorrect", errors.CategoryAuth, errors.CodeUnauthorized, errors.TextCodeInvalidCredentials)
	ErrAccountLocked          = newError("user account is locked", errors.CategoryAuth, errors.CodeForbidden, errors.TextCodeAccountLocked)
	ErrAccountDisabled        = newError("user account is disabled", errors.CategoryAuth, errors.CodeForbidden, errors.TextCodeAccountDisabled)
	ErrTooManyLoginAttempts   = newError("too many login attempts, try again later", errors.CategoryRateLimit, errors.CodeTooManyRequests, errors.TextCodeTooManyAttempts)
	ErrCredentialNotFound     = newError("user not found", errors.CategoryNotFound, errors.CodeNotFound, TextCodeNotFound)
	ErrRoleNotFound           = newError("role not found", errors.CategoryNotFound, errors.CodeNotFound, TextCodeNotFound)
	ErrActivationCodeNotFound = newError("invalid activation token", errors.CategoryNotFound, errors.CodeNotFound, TextCodeNotFound)
	ErrActivationCodeConsumed = newError("activation token has already been used", errors.CategoryNotFound, errors.CodeNotFound, errors.TextCodeTokenAlreadyUsed)
	ErrActivationCodeExpired  = newError("activation token has expired", errors.CategoryBadInput, errors.CodeBadRequest, errors.TextCodeVerificationExpired)
	ErrActivationDelivery     = newError("activation code could not be delivered", errors.CategoryExternal, http.StatusBadGateway, TextCodeDeliveryFailed)
	ErrAccountAlreadyActive   = newError("account is already active", errors.CategoryConflict, errors.CodeConflict, TextCodeAlreadyActive)
	ErrTokenExpired           = newError("token expired", errors.CategoryAuth, errors.CodeUnauthorized, errors.TextCodeTokenExpired)
	ErrRefreshTokenExpired    = newError("refresh token has expired", errors.CategoryAuth, errors.CodeUnauthorized, errors.TextCodeTokenExpired)
	ErrTokenMalformed         = newError("token is malformed", errors.CategoryAuth, errors.CodeUnauthorized, errors.TextCodeTokenMalformed)
	ErrTokenSignatureInvalid  = newError("token signature is invalid", errors.CategoryAuth, errors.CodeUnauthorized, TextCodeSignatureInvalid)
	ErrInvalidToken           = newError("invalid token", errors.CategoryAuth, errors.CodeUnauthorized, TextCodeInvalidToken)
	ErrInvalidRefreshToken    = newError("invalid refresh token", errors.CategoryAuth, errors.CodeUnauthorized, TextCodeInvalidToken)
	ErrMissingToken           = newError("no token provided", errors.CategoryAuth, errors.CodeUnauthorized, TextCodeMissingToken)
	ErrMissingRefreshToken    = newError("refresh token is required", errors.CategoryBadInput, errors.CodeBadRequest, TextCodeMissingToken)
	ErrRefreshTokenNotAllowed = newError("refresh token not allowed", errors.CategoryAuth, errors.CodeUnauthorized, TextCodeRefreshNotAllowed)
	ErrAuthorityGranted       = newError("user already holds this authority", errors.CategoryConflict, errors.CodeConflict, TextCodeAuthorityGranted)
	ErrUnknownAuthority       = newError("unknown authority", errors.CategoryBadInput, errors.CodeBadRequest, TextCodeUnknownAuthority)
	ErrOperationNotPermitted  = newError("you are not authorized to perform this operation", errors.CategoryAuthz, errors.CodeForbidden, TextCodeOperationNotPermitted)
	ErrEmptyPassword          = newError("password must not be empty", errors.CategoryValidation, errors.CodeBadRequest, errors.TextCodeEmptyPassword)
)

func newError(message string, category errors.Category, code int, textCode string) *errors.Error {
	return errors.New(message, category).WithCode(code).WithTextCode(textCode)
}

// IsError reports whether err carries the same category and text code as target.
// Sentinels are cloned whenever metadata is attached, so pointer equality is
// not enough.
func IsError(err error, target *errors.Error) bool {
	if err == nil || target == nil {
		return false
	}
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.Category == target.Category && rich.TextCode == target.TextCode
}

// ErrorStatus maps an error to the HTTP status it should be reported with.
func ErrorStatus(err error) int {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return http.StatusInternalServerError
	}

	if rich.Code >= 400 && rich.Code < 600 {
		return rich.Code
	}

	switch rich.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the uniform error body returned to clients.
type ErrorResponse struct {
	Code        int               `json:"code"`
	Description string            `json:"description"`
	Message     string            `json:"message"`
	Timestamp   int64             `json:"timestamp"`
	Errors      map[string]string `json:"errors,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// NewErrorResponse builds the external representation of err. Internal
// failures never leak their source message.
func NewErrorResponse(err error, now time.Time) ErrorResponse {
	status := ErrorStatus(err)
	res := ErrorResponse{
		Code:        status,
		Description: http.StatusText(status),
		Message:     "internal error",
		Timestamp:   now.UnixMilli(),
	}

	var rich *errors.Error
	if !errors.As(err, &rich) {
		return res
	}

	if code := businessCode(rich); code != 0 {
		res.Code = code
	}
	if rich.TextCode != "" {
		res.Description = rich.TextCode
	}
	if rich.Category != errors.CategoryInternal {
		res.Message = rich.Message
	}
	if len(rich.ValidationErrors) > 0 {
		res.Errors = rich.ValidationMap()
	}
	if len(rich.Metadata) > 0 {
		res.Metadata = rich.Metadata
	}
	return res
}

func businessCode(err *errors.Error) int {
	switch {
	case err.TextCode == errors.TextCodeAccountLocked, err.TextCode == errors.TextCodeTooManyAttempts:
		return BusinessCodeAccountLocked
	case err.TextCode == errors.TextCodeAccountDisabled:
		return BusinessCodeAccountDisabled
	case err.TextCode == errors.TextCodeInvalidCredentials:
		return BusinessCodeBadCredentials
	case err.Category == errors.CategoryNotFound && err.TextCode == TextCodeNotFound:
		return BusinessCodeNotFound
	case err.Category == errors.CategoryConflict:
		return BusinessCodeConflict
	case err.TextCode == TextCodeMissingToken, err.Category == errors.CategoryAuthz:
		return BusinessCodeNotAuthorized
	}
	return 0
}
