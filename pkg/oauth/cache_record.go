package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CacheRecordBuilderOptions supplies the collaborators of a CacheRecordBuilder.
// Nil fields use the package defaults.
type CacheRecordBuilderOptions struct {
	ClaimsExtractor ClaimsExtractor

	// AccessTokenClaimsExtractor reads cnf.kid from PoP access tokens. The
	// default does not verify signatures.
	AccessTokenClaimsExtractor ClaimsExtractor

	ClientInfoDecoder ClientInfoDecoder
	AccountFactory    AccountFactory

	// Now returns the issuance time stamped on access tokens.
	Now func() time.Time
}

// CacheRecordBuilder turns token responses into cache records.
type CacheRecordBuilder struct {
	clientID   string
	claims     ClaimsExtractor
	atClaims   ClaimsExtractor
	clientInfo ClientInfoDecoder
	accounts   AccountFactory
	now        func() time.Time
}

// NewCacheRecordBuilder creates a builder for tokens issued to clientID.
func NewCacheRecordBuilder(clientID string, opts CacheRecordBuilderOptions) *CacheRecordBuilder {
	b := &CacheRecordBuilder{
		clientID:   clientID,
		claims:     opts.ClaimsExtractor,
		atClaims:   opts.AccessTokenClaimsExtractor,
		clientInfo: opts.ClientInfoDecoder,
		accounts:   opts.AccountFactory,
		now:        opts.Now,
	}
	if b.claims == nil {
		b.claims = UnverifiedClaimsExtractor{}
	}
	if b.atClaims == nil {
		b.atClaims = UnverifiedClaimsExtractor{}
	}
	if b.clientInfo == nil {
		b.clientInfo = NewClientInfoCodec(nil)
	}
	if b.accounts == nil {
		b.accounts = DefaultAccountFactory{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Build validates resp against authority and assembles its cache record.
// Nothing is returned when the token environment is not trusted.
func (b *CacheRecordBuilder) Build(ctx context.Context, resp *TokenResponse, authority Authority) (*CacheRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp == nil || resp.IDToken == "" {
		return nil, ErrMissingIDToken
	}
	if authority == nil {
		return nil, fmt.Errorf("%w: authority is required", ErrInvalidAuthority)
	}

	idClaims, err := b.claims.ExtractTokenClaims(resp.IDToken)
	if err != nil {
		return nil, err
	}

	if err := checkCacheEnvironment(authority, idClaims); err != nil {
		return nil, err
	}

	clientInfo, err := b.clientInfo.Decode(resp.ClientInfo)
	if err != nil {
		return nil, err
	}

	account, err := b.accounts.CreateAccount(idClaims, clientInfo, resp.ClientInfo, authority)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: account factory returned no account", ErrInvalidConfiguration)
	}

	record := &CacheRecord{
		Account:       account,
		IDToken:       newIDTokenEntity(account.HomeAccountID, account.Environment, resp.IDToken, b.clientID, account.TenantID),
		IDTokenClaims: idClaims,
	}

	if resp.AccessToken != "" {
		record.AccessToken, err = b.accessToken(resp, account)
		if err != nil {
			return nil, err
		}
	}

	if resp.RefreshToken != "" {
		record.RefreshToken = newRefreshTokenEntity(account.HomeAccountID, account.Environment, resp.RefreshToken, b.clientID, resp.FamilyID)
	}

	return record, nil
}

func (b *CacheRecordBuilder) accessToken(resp *TokenResponse, account *AccountEntity) (*AccessTokenEntity, error) {
	scopes := strings.Fields(resp.Scope)
	if scopes == nil {
		scopes = []string{}
	}

	if err := checkLifetime(resp.ExpiresIn); err != nil {
		return nil, &TokenParsingError{Err: fmt.Errorf("expires_in: %w", err)}
	}
	if err := checkLifetime(resp.ExtExpiresIn); err != nil {
		return nil, &TokenParsingError{Err: fmt.Errorf("ext_expires_in: %w", err)}
	}

	now := b.now()
	extExpiresIn := resp.ExtExpiresIn
	if extExpiresIn <= 0 {
		extExpiresIn = resp.ExpiresIn
	}

	at := &AccessTokenEntity{
		CredentialEntity: CredentialEntity{
			HomeAccountID:  account.HomeAccountID,
			Environment:    account.Environment,
			CredentialType: CredentialTypeAccessToken,
			ClientID:       b.clientID,
			Secret:         resp.AccessToken,
			Realm:          account.TenantID,
			Target:         strings.Join(scopes, " "),
			TokenType:      TokenTypeBearer,
		},
		Scopes:            scopes,
		CachedAt:          now,
		ExpiresOn:         now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		ExtendedExpiresOn: now.Add(time.Duration(extExpiresIn) * time.Second),
	}

	if strings.EqualFold(resp.TokenType, TokenTypePoP) {
		atClaims, err := b.atClaims.ExtractTokenClaims(resp.AccessToken)
		if err != nil {
			return nil, err
		}
		if atClaims.Confirmation == nil || atClaims.Confirmation.KeyID == "" {
			return nil, ErrMissingConfirmationKey
		}
		at.CredentialType = CredentialTypeAccessTokenWithAuthScheme
		at.TokenType = TokenTypePoP
		at.KeyID = atClaims.Confirmation.KeyID
	}

	return at, nil
}

// checkCacheEnvironment requires the authority host, and the issuer host when
// the issuer is a URL, to be aliases of the authority's cloud metadata.
func checkCacheEnvironment(authority Authority, claims *TokenClaims) error {
	host := authority.Host()
	metadata := authority.CloudDiscoveryMetadata(host)
	if metadata == nil || !metadata.Contains(host) {
		return &InvalidCacheEnvironmentError{Environment: host, Authority: authority.CanonicalAuthority()}
	}

	if issuerHost := issuerEnvironment(claims.Issuer); issuerHost != "" && !metadata.Contains(issuerHost) {
		return &InvalidCacheEnvironmentError{Environment: issuerHost, Authority: authority.CanonicalAuthority()}
	}

	return nil
}

// issuerEnvironment returns the host of iss, or "" when iss is not an
// absolute URL.
func issuerEnvironment(iss string) string {
	u, err := url.Parse(iss)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}
