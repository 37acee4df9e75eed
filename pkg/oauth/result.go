package oauth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// AuthenticationResult is what the caller receives for a token response.
type AuthenticationResult struct {
	// AccessToken is the raw bearer token, the signed PoP token, or "" when
	// the response carried no access token.
	AccessToken string

	// TokenType is "Bearer" or "PoP".
	TokenType string

	// Scopes is never nil.
	Scopes []string

	// ExpiresOn and ExtExpiresOn are nil without an access token.
	ExpiresOn    *time.Time
	ExtExpiresOn *time.Time

	// FamilyID is the refresh token family, or "".
	FamilyID string

	Account       *AccountEntity
	IDToken       string
	IDTokenClaims *TokenClaims
	TenantID      string
	UniqueID      string
	Authority     string
}

// OAuth2Token converts the result for use with golang.org/x/oauth2 clients.
// The id_token is available through Extra("id_token").
func (r *AuthenticationResult) OAuth2Token() *oauth2.Token {
	if r == nil {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken: r.AccessToken,
		TokenType:   r.TokenType,
	}
	if r.ExpiresOn != nil {
		tok.Expiry = *r.ExpiresOn
	}
	extra := map[string]interface{}{}
	if r.IDToken != "" {
		extra["id_token"] = r.IDToken
	}
	if r.FamilyID != "" {
		extra["foci"] = r.FamilyID
	}
	return tok.WithExtra(extra)
}

// AuthenticationResultBuilder materializes results from cache records.
type AuthenticationResultBuilder struct {
	crypto CryptoProvider
	now    func() time.Time
}

// NewAuthenticationResultBuilder creates a builder. crypto signs PoP tokens
// and may be nil when only bearer tokens are expected.
func NewAuthenticationResultBuilder(crypto CryptoProvider) *AuthenticationResultBuilder {
	return &AuthenticationResultBuilder{crypto: crypto, now: time.Now}
}

// Build creates the result for record. For PoP tokens binding names the
// request the token will be sent with.
func (b *AuthenticationResultBuilder) Build(ctx context.Context, record *CacheRecord, authority Authority, binding HTTPBinding) (*AuthenticationResult, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: cache record is nil", ErrInvalidConfiguration)
	}

	result := &AuthenticationResult{
		TokenType:     TokenTypeBearer,
		Scopes:        []string{},
		IDTokenClaims: record.IDTokenClaims,
		Account:       record.Account,
	}

	if authority != nil {
		result.Authority = authority.CanonicalAuthority()
	}
	if record.IDToken != nil {
		result.IDToken = record.IDToken.Secret
	}
	if record.Account != nil {
		result.TenantID = record.Account.TenantID
	}
	if record.IDTokenClaims != nil {
		result.UniqueID = record.IDTokenClaims.LocalAccountID()
	}
	if record.RefreshToken != nil {
		result.FamilyID = record.RefreshToken.FamilyID
	}

	at := record.AccessToken
	if at == nil {
		return result, nil
	}

	if len(at.Scopes) > 0 {
		result.Scopes = append([]string(nil), at.Scopes...)
	}
	expiresOn, extExpiresOn := at.ExpiresOn, at.ExtendedExpiresOn
	result.ExpiresOn = &expiresOn
	result.ExtExpiresOn = &extExpiresOn

	if !at.IsPoP() {
		result.AccessToken = at.Secret
		return result, nil
	}

	if b.crypto == nil {
		return nil, fmt.Errorf("%w: crypto provider is required for pop tokens", ErrInvalidConfiguration)
	}
	signed, err := signPoPToken(ctx, b.crypto, at.Secret, at.KeyID, binding, b.now())
	if err != nil {
		return nil, err
	}
	result.AccessToken = signed
	result.TokenType = resultTokenTypePoP

	return result, nil
}
