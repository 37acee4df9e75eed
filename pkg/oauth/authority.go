package oauth

import (
	"fmt"
	"net/url"
	"strings"
)

// ProtocolMode selects AAD-specific behavior or plain OpenID Connect.
type ProtocolMode string

const (
	// ProtocolModeAAD expects client_info, tid/oid claims and Microsoft cloud metadata.
	ProtocolModeAAD ProtocolMode = "AAD"

	// ProtocolModeOIDC treats the authority as a generic OpenID Connect provider.
	ProtocolModeOIDC ProtocolMode = "OIDC"
)

// AuthorityType classifies the authority URL.
type AuthorityType string

const (
	AuthorityTypeDefault AuthorityType = "Default"
	AuthorityTypeB2C     AuthorityType = "B2C"
	AuthorityTypeADFS    AuthorityType = "ADFS"
)

// CloudDiscoveryMetadata is the set of hosts an authority treats as the same
// issuing environment.
type CloudDiscoveryMetadata struct {
	PreferredNetwork string   `json:"preferred_network"`
	PreferredCache   string   `json:"preferred_cache"`
	Aliases          []string `json:"aliases"`
}

// Contains reports whether host is one of the aliases.
func (m *CloudDiscoveryMetadata) Contains(host string) bool {
	if m == nil || host == "" {
		return false
	}
	return containsFold(m.Aliases, host)
}

// Authority is the resolved view of the identity provider a token came from.
type Authority interface {
	// CanonicalAuthority returns the normalized authority URL with a trailing slash.
	CanonicalAuthority() string

	// Host returns the lower-cased authority host.
	Host() string

	// Tenant returns the tenant path segment (or B2C tenant).
	Tenant() string

	ProtocolMode() ProtocolMode
	AuthorityType() AuthorityType

	// CloudDiscoveryMetadata returns the trusted aliases for host, or nil when
	// the host is not known to this authority.
	CloudDiscoveryMetadata(host string) *CloudDiscoveryMetadata
}

// AuthorityOptions configures NewAuthority.
type AuthorityOptions struct {
	// ProtocolMode defaults to ProtocolModeAAD.
	ProtocolMode ProtocolMode

	// KnownAuthorities lists hosts trusted as their own single-alias environment
	// (required for B2C and custom domains).
	KnownAuthorities []string

	// CloudDiscoveryMetadata takes precedence over the built-in cloud tables.
	CloudDiscoveryMetadata []CloudDiscoveryMetadata

	// AllowInsecure permits http authorities (tests and local development).
	AllowInsecure bool
}

// AzurePublicCloud returns the metadata of the Azure public cloud.
func AzurePublicCloud() CloudDiscoveryMetadata {
	return CloudDiscoveryMetadata{
		PreferredNetwork: "login.microsoftonline.com",
		PreferredCache:   "login.windows.net",
		Aliases:          []string{"login.microsoftonline.com", "login.windows.net", "login.microsoft.com", "sts.windows.net"},
	}
}

// AzureChinaCloud returns the metadata of Azure operated by 21Vianet.
func AzureChinaCloud() CloudDiscoveryMetadata {
	return CloudDiscoveryMetadata{
		PreferredNetwork: "login.partner.microsoftonline.cn",
		PreferredCache:   "login.partner.microsoftonline.cn",
		Aliases:          []string{"login.partner.microsoftonline.cn", "login.chinacloudapi.cn"},
	}
}

// AzureUSGovernmentCloud returns the metadata of Azure US Government.
func AzureUSGovernmentCloud() CloudDiscoveryMetadata {
	return CloudDiscoveryMetadata{
		PreferredNetwork: "login.microsoftonline.us",
		PreferredCache:   "login.microsoftonline.us",
		Aliases:          []string{"login.microsoftonline.us", "login.usgovcloudapi.net"},
	}
}

func builtInClouds() []CloudDiscoveryMetadata {
	return []CloudDiscoveryMetadata{
		AzurePublicCloud(),
		AzureChinaCloud(),
		AzureUSGovernmentCloud(),
		{
			PreferredNetwork: "login-us.microsoftonline.com",
			PreferredCache:   "login-us.microsoftonline.com",
			Aliases:          []string{"login-us.microsoftonline.com"},
		},
	}
}

// staticAuthority implements Authority from configuration alone.
type staticAuthority struct {
	canonical     string
	host          string
	tenant        string
	protocolMode  ProtocolMode
	authorityType AuthorityType
	metadata      []CloudDiscoveryMetadata
	known         []string
}

// NewAuthority parses rawURL and resolves its trusted environments from opts
// and the built-in Microsoft cloud tables.
func NewAuthority(rawURL string, opts AuthorityOptions) (Authority, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthority, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidAuthority, rawURL)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !opts.AllowInsecure {
			return nil, fmt.Errorf("%w: authority must use https", ErrInvalidAuthority)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAuthority, u.Scheme)
	}

	mode := opts.ProtocolMode
	if mode == "" {
		mode = ProtocolModeAAD
	}

	host := strings.ToLower(u.Host)
	segments := pathSegments(u.Path)

	a := &staticAuthority{
		host:          host,
		protocolMode:  mode,
		authorityType: detectAuthorityType(host, segments),
		metadata:      opts.CloudDiscoveryMetadata,
		known:         opts.KnownAuthorities,
	}

	a.tenant = tenantFromSegments(a.authorityType, segments)
	a.canonical = u.Scheme + "://" + host + "/"
	if len(segments) > 0 {
		a.canonical += strings.Join(segments, "/") + "/"
	}

	return a, nil
}

// MicrosoftAuthority returns the Azure public cloud authority for tenant
// ("common", "organizations", "consumers" or a tenant id/domain).
func MicrosoftAuthority(tenant string) (Authority, error) {
	if strings.TrimSpace(tenant) == "" {
		tenant = "common"
	}
	return NewAuthority("https://login.microsoftonline.com/"+tenant+"/", AuthorityOptions{})
}

// B2CAuthority returns a B2C authority for the given b2clogin host, tenant
// and user-flow policy. The host is trusted as a known authority.
func B2CAuthority(host, tenant, policy string) (Authority, error) {
	if host == "" || tenant == "" || policy == "" {
		return nil, fmt.Errorf("%w: host, tenant and policy are required", ErrInvalidAuthority)
	}
	return NewAuthority(fmt.Sprintf("https://%s/tfp/%s/%s/", host, tenant, policy), AuthorityOptions{
		KnownAuthorities: []string{host},
	})
}

func (a *staticAuthority) CanonicalAuthority() string   { return a.canonical }
func (a *staticAuthority) Host() string                 { return a.host }
func (a *staticAuthority) Tenant() string               { return a.tenant }
func (a *staticAuthority) ProtocolMode() ProtocolMode   { return a.protocolMode }
func (a *staticAuthority) AuthorityType() AuthorityType { return a.authorityType }

// CloudDiscoveryMetadata looks host up in, in order: configured metadata,
// the built-in clouds (AAD mode only), known authorities, and finally the
// authority's own host for OIDC and ADFS authorities.
func (a *staticAuthority) CloudDiscoveryMetadata(host string) *CloudDiscoveryMetadata {
	host = strings.ToLower(host)
	if host == "" {
		return nil
	}

	for i := range a.metadata {
		if a.metadata[i].Contains(host) {
			m := a.metadata[i]
			return &m
		}
	}

	if a.protocolMode == ProtocolModeAAD {
		for _, m := range builtInClouds() {
			if m.Contains(host) {
				return &m
			}
		}
	}

	if containsFold(a.known, host) {
		return selfMetadata(host)
	}

	if host == a.host && (a.protocolMode == ProtocolModeOIDC || a.authorityType == AuthorityTypeADFS) {
		return selfMetadata(host)
	}

	return nil
}

func selfMetadata(host string) *CloudDiscoveryMetadata {
	return &CloudDiscoveryMetadata{
		PreferredNetwork: host,
		PreferredCache:   host,
		Aliases:          []string{host},
	}
}

func pathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func detectAuthorityType(host string, segments []string) AuthorityType {
	if len(segments) > 0 {
		switch strings.ToLower(segments[0]) {
		case "tfp":
			return AuthorityTypeB2C
		case "adfs":
			return AuthorityTypeADFS
		}
	}
	if strings.HasSuffix(host, ".b2clogin.com") {
		return AuthorityTypeB2C
	}
	return AuthorityTypeDefault
}

func tenantFromSegments(t AuthorityType, segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	if t == AuthorityTypeB2C && strings.EqualFold(segments[0], "tfp") {
		if len(segments) > 1 {
			return segments[1]
		}
		return ""
	}
	if t == AuthorityTypeADFS {
		return ""
	}
	return segments[0]
}
