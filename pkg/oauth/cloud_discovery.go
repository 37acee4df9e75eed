package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultInstanceDiscoveryEndpoint is queried when Config does not override it.
const DefaultInstanceDiscoveryEndpoint = "https://login.microsoftonline.com/common/discovery/instance"

const instanceDiscoveryAPIVersion = "1.1"

// instanceDiscoveryResponse is the body returned by the instance discovery endpoint.
type instanceDiscoveryResponse struct {
	TenantDiscoveryEndpoint string                   `json:"tenant_discovery_endpoint"`
	Metadata                []CloudDiscoveryMetadata `json:"metadata"`
	Error                   string                   `json:"error"`
	ErrorDescription        string                   `json:"error_description"`
}

type discoveryEntry struct {
	metadata  []CloudDiscoveryMetadata
	fetchedAt time.Time
}

// InstanceDiscoveryClient resolves the cloud aliases of AAD authorities from
// the network and caches them per host.
type InstanceDiscoveryClient struct {
	httpClient HTTPClient
	endpoint   string
	ttl        time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]discoveryEntry
	group singleflight.Group
}

// NewInstanceDiscoveryClient creates a discovery client. A nil httpClient uses
// the retrying client built from config's timeout and TLS settings.
func NewInstanceDiscoveryClient(config *Config, httpClient HTTPClient) (*InstanceDiscoveryClient, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = newDefaultHTTPClient(config.Timeout, config.TLSConfig, config.InsecureSkipVerify)
	}

	endpoint := config.InstanceDiscoveryEndpoint
	if endpoint == "" {
		endpoint = DefaultInstanceDiscoveryEndpoint
	}

	return &InstanceDiscoveryClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		ttl:        config.DiscoveryCacheTTL,
		now:        time.Now,
		cache:      make(map[string]discoveryEntry),
	}, nil
}

// Resolve builds an authority for rawURL. AAD authorities of the default type
// get their aliases from instance discovery; B2C, ADFS and OIDC authorities
// are resolved statically from opts.
func (c *InstanceDiscoveryClient) Resolve(ctx context.Context, rawURL string, opts AuthorityOptions) (Authority, error) {
	static, err := NewAuthority(rawURL, opts)
	if err != nil {
		return nil, err
	}

	if static.ProtocolMode() != ProtocolModeAAD || static.AuthorityType() != AuthorityTypeDefault {
		return static, nil
	}
	if containsFold(opts.KnownAuthorities, static.Host()) {
		return static, nil
	}
	for i := range opts.CloudDiscoveryMetadata {
		if opts.CloudDiscoveryMetadata[i].Contains(static.Host()) {
			return static, nil
		}
	}

	metadata, err := c.Metadata(ctx, static.CanonicalAuthority())
	if err != nil {
		return nil, err
	}

	resolved := opts
	resolved.CloudDiscoveryMetadata = append(append([]CloudDiscoveryMetadata(nil), opts.CloudDiscoveryMetadata...), metadata...)
	return NewAuthority(rawURL, resolved)
}

// Metadata returns the cloud discovery metadata for the host of authorityURL.
// A fresh cache entry is returned without a request; concurrent misses for the
// same host share one fetch. When a refresh fails an expired entry is served.
func (c *InstanceDiscoveryClient) Metadata(ctx context.Context, authorityURL string) ([]CloudDiscoveryMetadata, error) {
	u, err := url.Parse(authorityURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid authority %q", ErrCloudDiscoveryFailed, authorityURL)
	}
	host := strings.ToLower(u.Host)

	cached, ok := c.lookup(host)
	if ok && c.now().Sub(cached.fetchedAt) < c.ttl {
		return cached.metadata, nil
	}

	result, err, _ := c.group.Do(host, func() (interface{}, error) {
		if entry, ok := c.lookup(host); ok && c.now().Sub(entry.fetchedAt) < c.ttl {
			return entry.metadata, nil
		}

		metadata, err := c.fetch(ctx, authorityURL, host)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[host] = discoveryEntry{metadata: metadata, fetchedAt: c.now()}
		c.mu.Unlock()
		return metadata, nil
	})
	if err != nil {
		if ok {
			return cached.metadata, nil
		}
		return nil, err
	}

	return result.([]CloudDiscoveryMetadata), nil
}

// Invalidate drops the cached metadata for host.
func (c *InstanceDiscoveryClient) Invalidate(host string) {
	c.mu.Lock()
	delete(c.cache, strings.ToLower(host))
	c.mu.Unlock()
}

func (c *InstanceDiscoveryClient) lookup(host string) (discoveryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[host]
	return entry, ok
}

// fetch queries the discovery endpoint. A host missing from the returned
// metadata is trusted as its own single alias.
func (c *InstanceDiscoveryClient) fetch(ctx context.Context, authorityURL, host string) ([]CloudDiscoveryMetadata, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	query := url.Values{}
	query.Set("api-version", instanceDiscoveryAPIVersion)
	query.Set("authorization_endpoint", strings.TrimSuffix(authorityURL, "/")+"/oauth2/v2.0/authorize")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrCloudDiscoveryFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCloudDiscoveryFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrCloudDiscoveryFailed, err)
	}

	var doc instanceDiscoveryResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: unexpected status %d", ErrCloudDiscoveryFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrCloudDiscoveryFailed, err)
	}
	if doc.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrCloudDiscoveryFailed, doc.Error, doc.ErrorDescription)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCloudDiscoveryFailed, resp.StatusCode)
	}

	for i := range doc.Metadata {
		if doc.Metadata[i].Contains(host) {
			return doc.Metadata, nil
		}
	}
	return append(doc.Metadata, *selfMetadata(host)), nil
}
