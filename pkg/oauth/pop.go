package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HTTPBinding is the request a PoP token will be presented with. The zero
// value binds no request.
type HTTPBinding struct {
	Method string
	URI    string
}

// PoPAssembly is the payload signed to produce a PoP token.
type PoPAssembly struct {
	AccessToken string
	Timestamp   int64
	Method      string
	Host        string
	Path        string
	Nonce       string
}

// NewPoPAssembly binds accessToken to binding. The method is upper-cased and
// the URI split into host and path; an empty binding leaves them unset.
func NewPoPAssembly(accessToken string, binding HTTPBinding, nonce string, now time.Time) (*PoPAssembly, error) {
	a := &PoPAssembly{
		AccessToken: accessToken,
		Timestamp:   now.Unix(),
		Method:      strings.ToUpper(strings.TrimSpace(binding.Method)),
		Nonce:       nonce,
	}

	if binding.URI != "" {
		u, err := url.Parse(binding.URI)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid request uri: %v", ErrInvalidConfiguration, err)
		}
		a.Host = u.Host
		a.Path = u.EscapedPath()
	}

	return a, nil
}

// Claims returns the JWT payload of the assembly.
func (a *PoPAssembly) Claims() jwt.MapClaims {
	claims := jwt.MapClaims{
		"at":    a.AccessToken,
		"ts":    a.Timestamp,
		"nonce": a.Nonce,
	}
	if a.Method != "" {
		claims["m"] = a.Method
	}
	if a.Host != "" {
		claims["u"] = a.Host
	}
	if a.Path != "" {
		claims["p"] = a.Path
	}
	return claims
}

// signPoPToken assembles and signs a PoP token with the key kid.
func signPoPToken(ctx context.Context, crypto CryptoProvider, accessToken, kid string, binding HTTPBinding, now time.Time) (string, error) {
	assembly, err := NewPoPAssembly(accessToken, binding, crypto.CreateNewGUID(), now)
	if err != nil {
		return "", err
	}
	return crypto.SignJWT(ctx, assembly.Claims(), kid)
}

// RequestConfirmation is the req_cnf value sent with a PoP token request.
type RequestConfirmation struct {
	// KeyID is the thumbprint of the signing key; pass it to SignJWT.
	KeyID string

	// Encoded is the base64url JSON {"kid": KeyID}.
	Encoded string
}

// GenerateRequestConfirmation creates a signing key and the req_cnf value
// that asks the authority to bind the token to it.
func GenerateRequestConfirmation(ctx context.Context, crypto CryptoProvider) (*RequestConfirmation, error) {
	if crypto == nil {
		return nil, fmt.Errorf("%w: crypto provider is required", ErrInvalidConfiguration)
	}

	kid, err := crypto.GetPublicKeyThumbprint(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"kid": kid})
	if err != nil {
		return nil, err
	}

	return &RequestConfirmation{
		KeyID:   kid,
		Encoded: crypto.Base64Encode(string(payload)),
	}, nil
}
