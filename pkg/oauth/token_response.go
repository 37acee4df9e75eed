package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenResponse is a token endpoint response. A field that was absent, null
// or empty in the wire response holds its zero value, so presence is tested
// with != "" (or > 0 for the lifetimes).
type TokenResponse struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string

	// ExpiresIn and ExtExpiresIn are lifetimes in seconds.
	ExpiresIn    int64
	ExtExpiresIn int64

	FamilyID   string
	ClientInfo string
}

// tokenResponseWire accepts numbers or numeric strings for the lifetimes.
type tokenResponseWire struct {
	IDToken          *string     `json:"id_token"`
	AccessToken      *string     `json:"access_token"`
	RefreshToken     *string     `json:"refresh_token"`
	TokenType        *string     `json:"token_type"`
	Scope            *string     `json:"scope"`
	ExpiresIn        json.Number `json:"expires_in"`
	ExtExpiresIn     json.Number `json:"ext_expires_in"`
	FamilyID         *string     `json:"foci"`
	FamilyIDAlt      *string     `json:"family_id"`
	ClientInfo       *string     `json:"client_info"`
	Error            *string     `json:"error"`
	ErrorDescription *string     `json:"error_description"`
	SubError         *string     `json:"suberror"`
}

// ParseTokenResponse decodes a token endpoint body. A body carrying error
// fields is returned as *InteractionRequiredAuthError or *ServerError.
func ParseTokenResponse(data []byte) (*TokenResponse, error) {
	var wire tokenResponseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &TokenParsingError{Err: stripJSONDetail(err)}
	}

	if err := classifyServerError(deref(wire.Error), deref(wire.ErrorDescription), deref(wire.SubError)); err != nil {
		return nil, err
	}

	expiresIn, err := parseLifetime(wire.ExpiresIn.String())
	if err != nil {
		return nil, &TokenParsingError{Err: fmt.Errorf("expires_in: %w", err)}
	}
	extExpiresIn, err := parseLifetime(wire.ExtExpiresIn.String())
	if err != nil {
		return nil, &TokenParsingError{Err: fmt.Errorf("ext_expires_in: %w", err)}
	}

	return &TokenResponse{
		IDToken:      deref(wire.IDToken),
		AccessToken:  deref(wire.AccessToken),
		RefreshToken: deref(wire.RefreshToken),
		TokenType:    deref(wire.TokenType),
		Scope:        deref(wire.Scope),
		ExpiresIn:    expiresIn,
		ExtExpiresIn: extExpiresIn,
		FamilyID:     coalesce(deref(wire.FamilyID), deref(wire.FamilyIDAlt)),
		ClientInfo:   deref(wire.ClientInfo),
	}, nil
}

// TokenResponseFromOAuth2 converts the result of an x/oauth2 exchange. The
// id_token, client_info, foci, scope and ext_expires_in fields are read from
// the token extras. A nil token yields an empty response.
func TokenResponseFromOAuth2(tok *oauth2.Token) (*TokenResponse, error) {
	if tok == nil {
		return &TokenResponse{}, nil
	}

	if err := checkLifetime(tok.ExpiresIn); err != nil {
		return nil, &TokenParsingError{Err: fmt.Errorf("expires_in: %w", err)}
	}
	extExpiresIn, err := extraLifetime(tok, "ext_expires_in")
	if err != nil {
		return nil, &TokenParsingError{Err: fmt.Errorf("ext_expires_in: %w", err)}
	}

	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		IDToken:      extraString(tok, "id_token"),
		ClientInfo:   extraString(tok, "client_info"),
		Scope:        extraString(tok, "scope"),
		FamilyID:     coalesce(extraString(tok, "foci"), extraString(tok, "family_id")),
		ExpiresIn:    tok.ExpiresIn,
		ExtExpiresIn: extExpiresIn,
	}

	if resp.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		if remaining := int64(time.Until(tok.Expiry).Seconds()); remaining > 0 {
			resp.ExpiresIn = remaining
		}
	}

	return resp, nil
}

// extraString reads a string extra. Form-encoded responses surface numeric
// values such as foci as numbers, so those are formatted back.
func extraString(tok *oauth2.Token, key string) string {
	switch v := tok.Extra(key).(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func extraLifetime(tok *oauth2.Token, key string) (int64, error) {
	switch v := tok.Extra(key).(type) {
	case nil:
		return 0, nil
	case int64:
		return v, checkLifetime(v)
	case float64:
		return parseLifetime(strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		return parseLifetime(v)
	case json.Number:
		return parseLifetime(v.String())
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// maxLifetimeSeconds is the longest lifetime representable as a time.Duration.
const maxLifetimeSeconds = math.MaxInt64 / int64(time.Second)

var (
	errNegativeLifetime = errors.New("negative lifetime")
	errLifetimeRange    = errors.New("lifetime out of range")
)

// parseLifetime reads a lifetime in seconds that may have been sent quoted
// or as a float. An empty value is 0.
func parseLifetime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, checkLifetime(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	switch {
	case f < 0:
		return 0, errNegativeLifetime
	case f > float64(maxLifetimeSeconds):
		return 0, errLifetimeRange
	}
	return int64(f), nil
}

func checkLifetime(seconds int64) error {
	switch {
	case seconds < 0:
		return errNegativeLifetime
	case seconds > maxLifetimeSeconds:
		return errLifetimeRange
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
