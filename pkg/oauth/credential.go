package oauth

import (
	"strings"
	"time"
)

// CredentialType identifies the kind of cached credential.
type CredentialType string

const (
	CredentialTypeIDToken                   CredentialType = "IdToken"
	CredentialTypeAccessToken               CredentialType = "AccessToken"
	CredentialTypeAccessTokenWithAuthScheme CredentialType = "AccessToken_With_AuthScheme"
	CredentialTypeRefreshToken              CredentialType = "RefreshToken"
)

// Token types as reported by the token endpoint and exposed on results.
const (
	TokenTypeBearer = "Bearer"
	TokenTypePoP    = "pop"

	// resultTokenTypePoP is the casing AuthenticationResult uses for PoP.
	resultTokenTypePoP = "PoP"
)

// Credential is any entity stored in the credential cache.
type Credential interface {
	CacheKey() string
}

// CredentialEntity holds the fields shared by every credential.
type CredentialEntity struct {
	HomeAccountID  string
	Environment    string
	CredentialType CredentialType
	ClientID       string
	Secret         string
	Realm          string
	Target         string
	FamilyID       string
	TokenType      string
	KeyID          string
}

// CacheKey returns homeAccountId-environment-credentialType-clientOrFamilyId-realm-target,
// lower-cased, with the token type appended for non-bearer access tokens.
func (c *CredentialEntity) CacheKey() string {
	clientOrFamily := c.ClientID
	if c.CredentialType == CredentialTypeRefreshToken && c.FamilyID != "" {
		clientOrFamily = c.FamilyID
	}

	parts := []string{
		c.HomeAccountID,
		c.Environment,
		string(c.CredentialType),
		clientOrFamily,
		c.Realm,
		c.Target,
	}
	if c.TokenType != "" && !strings.EqualFold(c.TokenType, TokenTypeBearer) {
		parts = append(parts, c.TokenType)
	}
	return strings.ToLower(strings.Join(parts, "-"))
}

// IDTokenEntity is the cached form of an id_token.
type IDTokenEntity struct {
	CredentialEntity
}

// AccessTokenEntity is the cached form of an access token.
type AccessTokenEntity struct {
	CredentialEntity

	// Scopes granted to this token, in server order.
	Scopes []string

	CachedAt          time.Time
	ExpiresOn         time.Time
	ExtendedExpiresOn time.Time
}

// IsPoP reports whether the token is bound to a proof-of-possession key.
func (a *AccessTokenEntity) IsPoP() bool {
	return strings.EqualFold(a.TokenType, TokenTypePoP)
}

// RefreshTokenEntity is the cached form of a refresh token.
type RefreshTokenEntity struct {
	CredentialEntity
}

// CacheRecord is the set of cache-ready entities derived from one token
// response. AccessToken and RefreshToken are nil when the response did not
// carry them.
type CacheRecord struct {
	Account      *AccountEntity
	IDToken      *IDTokenEntity
	AccessToken  *AccessTokenEntity
	RefreshToken *RefreshTokenEntity

	// IDTokenClaims are the claims the record was built from.
	IDTokenClaims *TokenClaims
}

func newIDTokenEntity(homeAccountID, environment, idToken, clientID, tenantID string) *IDTokenEntity {
	return &IDTokenEntity{
		CredentialEntity: CredentialEntity{
			HomeAccountID:  homeAccountID,
			Environment:    environment,
			CredentialType: CredentialTypeIDToken,
			ClientID:       clientID,
			Secret:         idToken,
			Realm:          tenantID,
		},
	}
}

func newRefreshTokenEntity(homeAccountID, environment, refreshToken, clientID, familyID string) *RefreshTokenEntity {
	return &RefreshTokenEntity{
		CredentialEntity: CredentialEntity{
			HomeAccountID:  homeAccountID,
			Environment:    environment,
			CredentialType: CredentialTypeRefreshToken,
			ClientID:       clientID,
			Secret:         refreshToken,
			FamilyID:       familyID,
		},
	}
}
