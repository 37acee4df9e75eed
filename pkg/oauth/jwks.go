package oauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSOptions configures signature-checking claims extraction.
type JWKSOptions struct {
	// ClockSkew allows for clock drift when checking exp/nbf/iat.
	ClockSkew time.Duration

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Audience, when set, must be contained in the aud claim.
	Audience string
}

// JWKSClaimsExtractor verifies token signatures against a remote JWKS before
// extracting claims.
type JWKSClaimsExtractor struct {
	jwks   keyfunc.Keyfunc
	opts   JWKSOptions
	cancel context.CancelFunc
}

// NewJWKSClaimsExtractor fetches the key sets at jwksURLs and keeps them
// refreshed in the background until Close is called.
func NewJWKSClaimsExtractor(ctx context.Context, jwksURLs []string, opts JWKSOptions) (*JWKSClaimsExtractor, error) {
	if len(jwksURLs) == 0 {
		return nil, fmt.Errorf("%w: jwks url is required", ErrInvalidConfiguration)
	}
	for _, u := range jwksURLs {
		if strings.TrimSpace(u) == "" {
			return nil, fmt.Errorf("%w: jwks url is required", ErrInvalidConfiguration)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	jwks, err := keyfunc.NewDefaultCtx(ctx, jwksURLs)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: jwks: %v", ErrInvalidConfiguration, err)
	}

	if opts.ClockSkew <= 0 {
		opts.ClockSkew = 60 * time.Second
	}

	return &JWKSClaimsExtractor{
		jwks:   jwks,
		opts:   opts,
		cancel: cancel,
	}, nil
}

// ExtractTokenClaims verifies encodedToken and returns its claims.
func (e *JWKSClaimsExtractor) ExtractTokenClaims(encodedToken string) (*TokenClaims, error) {
	if strings.TrimSpace(encodedToken) == "" {
		return nil, ErrEmptyToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			"RS256", "RS384", "RS512",
			"ES256", "ES384", "ES512",
			"PS256", "PS384", "PS512",
		}),
		jwt.WithLeeway(e.opts.ClockSkew),
	}
	if e.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(e.opts.Issuer))
	}
	if e.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(e.opts.Audience))
	}

	token, err := jwt.Parse(encodedToken, e.jwks.Keyfunc, parserOpts...)
	if err != nil {
		return nil, &TokenParsingError{Err: err}
	}
	if !token.Valid {
		return nil, &TokenParsingError{Err: jwt.ErrTokenSignatureInvalid}
	}

	return claimsFromJWT(token)
}

// Close stops the background JWKS refresh.
func (e *JWKSClaimsExtractor) Close() {
	if e.cancel != nil {
		e.cancel()
	}
}
