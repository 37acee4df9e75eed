package oauth

import (
	"net/url"
	"strings"
)

// AuthorizationCodeResponse is the authorization server redirect payload.
// Empty fields were absent from the redirect.
type AuthorizationCodeResponse struct {
	Code             string
	ClientInfo       string
	State            string
	Error            string
	ErrorDescription string
	SubError         string
}

// ParseAuthorizationCodeResponse reads the response fields from a redirect
// query or fragment.
func ParseAuthorizationCodeResponse(values url.Values) *AuthorizationCodeResponse {
	return &AuthorizationCodeResponse{
		Code:             values.Get("code"),
		ClientInfo:       values.Get("client_info"),
		State:            values.Get("state"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
		SubError:         values.Get("suberror"),
	}
}

// AuthorizationResponseValidator checks an authorization-code redirect
// against the state of the request that started it.
type AuthorizationResponseValidator struct {
	clientInfo ClientInfoDecoder
}

// NewAuthorizationResponseValidator creates a validator. A nil decoder uses
// a ClientInfoCodec with the default base64 decoder.
func NewAuthorizationResponseValidator(decoder ClientInfoDecoder) *AuthorizationResponseValidator {
	if decoder == nil {
		decoder = NewClientInfoCodec(nil)
	}
	return &AuthorizationResponseValidator{clientInfo: decoder}
}

// Validate checks the state first, then the server error fields, then that
// client_info (when present) decodes.
func (v *AuthorizationResponseValidator) Validate(resp *AuthorizationCodeResponse, expectedState string) error {
	if resp == nil {
		return &StateMismatchError{Expected: expectedState}
	}

	if !statesMatch(resp.State, expectedState) {
		return &StateMismatchError{Expected: expectedState, Received: resp.State}
	}

	if err := classifyServerError(resp.Error, resp.ErrorDescription, resp.SubError); err != nil {
		return err
	}

	if resp.ClientInfo != "" {
		if _, err := v.clientInfo.Decode(resp.ClientInfo); err != nil {
			return err
		}
	}

	return nil
}

// statesMatch compares URI-decoded states ignoring case, so %3d and %3D
// compare equal. Missing state on either side never matches.
func statesMatch(received, expected string) bool {
	if received == "" || expected == "" {
		return false
	}
	return strings.EqualFold(unescapeState(received), unescapeState(expected))
}

func unescapeState(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}
