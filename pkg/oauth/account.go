package oauth

import (
	"fmt"
	"strings"
)

// AccountEntity is the cached identity of the signed-in user.
type AccountEntity struct {
	HomeAccountID  string
	LocalAccountID string
	Environment    string
	TenantID       string
	Username       string
	Name           string
	AuthorityType  AuthorityType

	// ClientInfo is the raw client_info value the account was derived from.
	ClientInfo string
}

// CacheKey returns homeAccountId-environment-tenantId, lower-cased.
func (a *AccountEntity) CacheKey() string {
	return strings.ToLower(strings.Join([]string{a.HomeAccountID, a.Environment, a.TenantID}, "-"))
}

// AccountFactory materializes the account of a token response. It is the
// seam for per-deployment account-shape policy.
type AccountFactory interface {
	CreateAccount(claims *TokenClaims, clientInfo *ClientInfo, rawClientInfo string, authority Authority) (*AccountEntity, error)
}

// AccountFactoryFunc adapts a function to AccountFactory.
type AccountFactoryFunc func(claims *TokenClaims, clientInfo *ClientInfo, rawClientInfo string, authority Authority) (*AccountEntity, error)

// CreateAccount calls f.
func (f AccountFactoryFunc) CreateAccount(claims *TokenClaims, clientInfo *ClientInfo, rawClientInfo string, authority Authority) (*AccountEntity, error) {
	return f(claims, clientInfo, rawClientInfo, authority)
}

// DefaultAccountFactory builds accounts the way AAD and generic OIDC
// authorities identify users.
//
// In AAD mode the home account id comes from client_info (uid.utid), with
// the B2C policy suffix removed from uid, and falls back to sub when
// client_info is empty. In OIDC mode it is always sub.
type DefaultAccountFactory struct{}

// CreateAccount implements AccountFactory.
func (DefaultAccountFactory) CreateAccount(claims *TokenClaims, clientInfo *ClientInfo, rawClientInfo string, authority Authority) (*AccountEntity, error) {
	if claims == nil {
		return nil, fmt.Errorf("%w: id token claims are required", ErrTokenParsing)
	}
	if authority == nil {
		return nil, fmt.Errorf("%w: authority is required", ErrInvalidAuthority)
	}

	account := &AccountEntity{
		Environment:   authority.Host(),
		TenantID:      coalesce(claims.TenantID, authority.Tenant()),
		Username:      claims.Username(),
		Name:          claims.Name,
		AuthorityType: authority.AuthorityType(),
	}

	switch authority.ProtocolMode() {
	case ProtocolModeOIDC:
		account.HomeAccountID = claims.Subject
		account.LocalAccountID = claims.Subject
	default:
		account.HomeAccountID = homeAccountIDFromClientInfo(clientInfo, authority)
		if account.HomeAccountID == "" {
			account.HomeAccountID = claims.Subject
		}
		account.LocalAccountID = claims.LocalAccountID()
		account.ClientInfo = rawClientInfo
	}

	return account, nil
}

func homeAccountIDFromClientInfo(info *ClientInfo, authority Authority) string {
	if info == nil || info.UID == "" {
		return ""
	}
	if authority.AuthorityType() != AuthorityTypeB2C {
		return info.HomeAccountID()
	}
	stripped := ClientInfo{
		UID:  StripPolicyFromUID(info.UID, authority.CanonicalAuthority()),
		UTID: info.UTID,
	}
	return stripped.HomeAccountID()
}
