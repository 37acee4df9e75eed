package oauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is a typed view of the claims carried by an id_token or a
// JWT access token. Raw keeps every claim as decoded.
type TokenClaims struct {
	Issuer   string
	Subject  string
	Audience []string

	// TenantID is the tid claim.
	TenantID string

	// ObjectID is the oid claim.
	ObjectID string

	PreferredUsername string
	UPN               string
	Emails            []string
	Name              string
	Nonce             string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// Confirmation is the cnf claim of a PoP-bound access token.
	Confirmation *ConfirmationClaim

	Raw jwt.MapClaims
}

// ConfirmationClaim identifies the key a PoP token is bound to.
type ConfirmationClaim struct {
	KeyID string
}

// Username returns the first non-empty of preferred_username, upn and emails[0].
func (c *TokenClaims) Username() string {
	if c == nil {
		return ""
	}
	var email string
	if len(c.Emails) > 0 {
		email = c.Emails[0]
	}
	return coalesce(c.PreferredUsername, c.UPN, email)
}

// LocalAccountID returns oid, falling back to sub.
func (c *TokenClaims) LocalAccountID() string {
	if c == nil {
		return ""
	}
	return coalesce(c.ObjectID, c.Subject)
}

// ClaimsExtractor parses an encoded token into claims.
type ClaimsExtractor interface {
	ExtractTokenClaims(encodedToken string) (*TokenClaims, error)
}

// UnverifiedClaimsExtractor decodes JWT payloads without checking signatures.
// Tokens received directly from the token endpoint over TLS are trusted by
// transport; use JWKSClaimsExtractor when signatures must be checked.
type UnverifiedClaimsExtractor struct{}

// ExtractTokenClaims decodes the payload of encodedToken.
func (UnverifiedClaimsExtractor) ExtractTokenClaims(encodedToken string) (*TokenClaims, error) {
	if strings.TrimSpace(encodedToken) == "" {
		return nil, ErrEmptyToken
	}

	token, _, err := jwt.NewParser().ParseUnverified(encodedToken, jwt.MapClaims{})
	if err != nil {
		return nil, &TokenParsingError{Err: err}
	}

	return claimsFromJWT(token)
}

// claimsFromJWT extracts TokenClaims from a parsed JWT token.
func claimsFromJWT(token *jwt.Token) (*TokenClaims, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &TokenParsingError{Err: fmt.Errorf("unexpected claims type %T", token.Claims)}
	}

	tc := &TokenClaims{Raw: claims}

	extractStringClaim(claims, "iss", &tc.Issuer)
	extractStringClaim(claims, "sub", &tc.Subject)
	extractStringClaim(claims, "tid", &tc.TenantID)
	extractStringClaim(claims, "oid", &tc.ObjectID)
	extractStringClaim(claims, "preferred_username", &tc.PreferredUsername)
	extractStringClaim(claims, "upn", &tc.UPN)
	extractStringClaim(claims, "name", &tc.Name)
	extractStringClaim(claims, "nonce", &tc.Nonce)

	tc.Audience = stringOrSlice(claims["aud"])
	tc.Emails = stringOrSlice(claims["emails"])

	if iat, ok := claims["iat"].(float64); ok {
		tc.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		tc.ExpiresAt = time.Unix(int64(exp), 0)
	}

	if cnf, ok := claims["cnf"].(map[string]interface{}); ok {
		conf := &ConfirmationClaim{}
		extractStringClaim(cnf, "kid", &conf.KeyID)
		tc.Confirmation = conf
	}

	return tc, nil
}

// stringOrSlice reads a claim that may be a string or an array of strings.
func stringOrSlice(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	}
	return nil
}

// extractStringClaim is a helper to extract string claims from a map.
func extractStringClaim(claims map[string]interface{}, key string, dest *string) {
	if val, ok := claims[key].(string); ok {
		*dest = val
	}
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
