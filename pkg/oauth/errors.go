package oauth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration indicates the handler configuration is invalid.
	ErrInvalidConfiguration = errors.New("oauth: invalid configuration")

	// ErrInvalidAuthority indicates an authority URL could not be parsed or is not allowed.
	ErrInvalidAuthority = errors.New("oauth: invalid authority")

	// ErrStateMismatch indicates the state returned by the server does not match the request.
	ErrStateMismatch = errors.New("oauth: state mismatch")

	// ErrInteractionRequired indicates the server requires an interactive flow.
	ErrInteractionRequired = errors.New("oauth: interaction required")

	// ErrServerError indicates the authorization server returned an error.
	ErrServerError = errors.New("oauth: server error")

	// ErrClientInfoDecoding indicates the client_info payload could not be decoded.
	ErrClientInfoDecoding = errors.New("oauth: client info decoding failed")

	// ErrInvalidCacheEnvironment indicates the token environment is not trusted by the authority.
	ErrInvalidCacheEnvironment = errors.New("oauth: invalid cache environment")

	// ErrEmptyToken indicates an empty token was passed for claims extraction.
	ErrEmptyToken = errors.New("oauth: empty token")

	// ErrTokenParsing indicates a token could not be parsed into claims.
	ErrTokenParsing = errors.New("oauth: token parsing failed")

	// ErrMissingConfirmationKey indicates a PoP access token has no cnf.kid claim.
	ErrMissingConfirmationKey = errors.New("oauth: missing confirmation key")

	// ErrSigningKeyNotFound indicates no signing key exists for the requested key id.
	ErrSigningKeyNotFound = errors.New("oauth: signing key not found")

	// ErrCloudDiscoveryFailed indicates instance discovery metadata could not be fetched.
	ErrCloudDiscoveryFailed = errors.New("oauth: cloud discovery failed")

	// ErrMissingIDToken indicates the token response carries no id_token.
	ErrMissingIDToken = errors.New("oauth: missing id token")
)

// Known interaction-required markers returned in error and suberror.
var (
	interactionRequiredErrorCodes = []string{
		"interaction_required",
		"consent_required",
		"login_required",
	}

	interactionRequiredSubErrors = []string{
		"message_only",
		"additional_action",
		"basic_action",
		"user_password_expired",
		"consent_required",
	}
)

// StateMismatchError is returned when the state in an authorization response
// does not match the state sent with the request. This usually means a
// forged or stale redirect.
type StateMismatchError struct {
	Expected string
	Received string
}

func (e *StateMismatchError) Error() string {
	if e.Received == "" {
		return fmt.Sprintf("%s: no state received", ErrStateMismatch)
	}
	return ErrStateMismatch.Error()
}

// Is reports whether target is ErrStateMismatch.
func (e *StateMismatchError) Is(target error) bool { return target == ErrStateMismatch }

// InteractionRequiredAuthError signals that the caller must fall back to an
// interactive flow. Fields are the server values, verbatim.
type InteractionRequiredAuthError struct {
	Code        string
	Description string
	SubError    string
}

func (e *InteractionRequiredAuthError) Error() string {
	return formatServerFields(ErrInteractionRequired, e.Code, e.Description, e.SubError)
}

// Is reports whether target is ErrInteractionRequired.
func (e *InteractionRequiredAuthError) Is(target error) bool { return target == ErrInteractionRequired }

// ServerError carries whatever error fields the authorization server supplied.
type ServerError struct {
	Code        string
	Description string
	SubError    string
}

func (e *ServerError) Error() string {
	return formatServerFields(ErrServerError, e.Code, e.Description, e.SubError)
}

// Is reports whether target is ErrServerError.
func (e *ServerError) Is(target error) bool { return target == ErrServerError }

// ClientInfoDecodingError is returned when client_info is malformed. The raw
// payload is deliberately not retained.
type ClientInfoDecodingError struct {
	Reason string
	Err    error
}

func (e *ClientInfoDecodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrClientInfoDecoding, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrClientInfoDecoding, e.Reason)
}

// Is reports whether target is ErrClientInfoDecoding.
func (e *ClientInfoDecodingError) Is(target error) bool { return target == ErrClientInfoDecoding }

// Unwrap returns the underlying decode error.
func (e *ClientInfoDecodingError) Unwrap() error { return e.Err }

// InvalidCacheEnvironmentError is returned when the environment a token would
// be cached under is not in the authority's trusted cloud discovery metadata.
type InvalidCacheEnvironmentError struct {
	Environment string
	Authority   string
}

func (e *InvalidCacheEnvironmentError) Error() string {
	if e.Environment == "" {
		return fmt.Sprintf("%s: no cloud discovery metadata for authority %s", ErrInvalidCacheEnvironment, e.Authority)
	}
	return fmt.Sprintf("%s: environment %s is not trusted by authority %s", ErrInvalidCacheEnvironment, e.Environment, e.Authority)
}

// Is reports whether target is ErrInvalidCacheEnvironment.
func (e *InvalidCacheEnvironmentError) Is(target error) bool {
	return target == ErrInvalidCacheEnvironment
}

// TokenParsingError is returned when a token cannot be parsed into claims.
type TokenParsingError struct {
	Err error
}

func (e *TokenParsingError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTokenParsing, e.Err)
}

// Is reports whether target is ErrTokenParsing.
func (e *TokenParsingError) Is(target error) bool { return target == ErrTokenParsing }

// Unwrap returns the underlying parser error.
func (e *TokenParsingError) Unwrap() error { return e.Err }

// IsInteractionRequired reports whether err tells the caller to retry interactively.
func IsInteractionRequired(err error) bool {
	return errors.Is(err, ErrInteractionRequired)
}

// classifyServerError builds the error for a server response carrying any of
// error, error_description or suberror. It returns nil when all are empty.
func classifyServerError(code, description, subError string) error {
	if code == "" && description == "" && subError == "" {
		return nil
	}
	if isInteractionRequired(code, subError) {
		return &InteractionRequiredAuthError{Code: code, Description: description, SubError: subError}
	}
	return &ServerError{Code: code, Description: description, SubError: subError}
}

func isInteractionRequired(code, subError string) bool {
	if code != "" && containsFold(interactionRequiredErrorCodes, code) {
		return true
	}
	return subError != "" && containsFold(interactionRequiredSubErrors, subError)
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func formatServerFields(sentinel error, code, description, subError string) string {
	var b strings.Builder
	b.WriteString(sentinel.Error())
	if code != "" {
		b.WriteString(": ")
		b.WriteString(code)
	}
	if description != "" {
		b.WriteString(": ")
		b.WriteString(description)
	}
	if subError != "" {
		b.WriteString(" (suberror: ")
		b.WriteString(subError)
		b.WriteString(")")
	}
	return b.String()
}
