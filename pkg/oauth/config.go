package oauth

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CacheConfig contains settings for the in-memory credential cache.
type CacheConfig struct {
	// Enabled determines if token responses are persisted.
	Enabled bool

	// MaxSize is the maximum number of entities to cache (LRU eviction).
	MaxSize int

	// TTL bounds how long any entity stays cached. Access tokens are
	// additionally evicted at their own expiry.
	TTL time.Duration
}

// Config contains the response handler configuration.
type Config struct {
	// ClientID is the OAuth client identifier the tokens were issued to.
	ClientID string

	// ProtocolMode selects AAD or generic OIDC account semantics.
	ProtocolMode ProtocolMode

	// KnownAuthorities lists hosts trusted as token environments in addition
	// to the built-in Microsoft clouds.
	KnownAuthorities []string

	// Cache contains credential caching settings.
	Cache CacheConfig

	// ClockSkew allows for clock drift when verifying token lifetimes; see
	// JWKSOptions.
	ClockSkew time.Duration

	// DiscoveryCacheTTL is how long instance discovery metadata is reused.
	DiscoveryCacheTTL time.Duration

	// InstanceDiscoveryEndpoint overrides DefaultInstanceDiscoveryEndpoint.
	InstanceDiscoveryEndpoint string

	// Timeout is the HTTP client timeout for metadata requests.
	Timeout time.Duration

	// TLSConfig allows custom TLS configuration.
	TLSConfig *tls.Config

	// InsecureSkipVerify disables TLS certificate verification (not recommended).
	InsecureSkipVerify bool
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}

	c.ClientID = strings.TrimSpace(c.ClientID)
	if c.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidConfiguration)
	}

	switch c.ProtocolMode {
	case "":
		c.ProtocolMode = ProtocolModeAAD
	case ProtocolModeAAD, ProtocolModeOIDC:
	default:
		return fmt.Errorf("%w: unsupported protocol mode %q", ErrInvalidConfiguration, c.ProtocolMode)
	}

	known := c.KnownAuthorities[:0:0]
	for _, host := range c.KnownAuthorities {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		if strings.Contains(host, "/") {
			return fmt.Errorf("%w: known authority %q must be a host", ErrInvalidConfiguration, host)
		}
		known = append(known, host)
	}
	c.KnownAuthorities = known

	if c.Cache.Enabled {
		if c.Cache.MaxSize <= 0 {
			c.Cache.MaxSize = 1000 // Default
		}
		if c.Cache.TTL <= 0 {
			c.Cache.TTL = 24 * time.Hour // Default
		}
	}

	if c.ClockSkew <= 0 {
		c.ClockSkew = 60 * time.Second
	}

	if c.DiscoveryCacheTTL <= 0 {
		c.DiscoveryCacheTTL = 24 * time.Hour
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}

	return nil
}

// AuthorityOptions returns the options NewAuthority needs to honor this
// configuration.
func (c *Config) AuthorityOptions() AuthorityOptions {
	return AuthorityOptions{
		ProtocolMode:     c.ProtocolMode,
		KnownAuthorities: c.KnownAuthorities,
	}
}

// JWKSOptions returns the options for verifying id_tokens issued to this
// client with NewJWKSClaimsExtractor.
func (c *Config) JWKSOptions() JWKSOptions {
	return JWKSOptions{
		ClockSkew: c.ClockSkew,
		Audience:  c.ClientID,
	}
}

// configEnv holds raw env values; field names are joined to the prefix.
type configEnv struct {
	ClientID                  string        `env:"CLIENT_ID"`
	ProtocolMode              string        `env:"PROTOCOL_MODE"               envDefault:"AAD"`
	KnownAuthorities          []string      `env:"KNOWN_AUTHORITIES"           envSeparator:","`
	CacheEnabled              bool          `env:"CACHE_ENABLED"               envDefault:"true"`
	CacheMaxSize              int           `env:"CACHE_MAX_SIZE"              envDefault:"1000"`
	CacheTTL                  time.Duration `env:"CACHE_TTL"                   envDefault:"24h"`
	ClockSkew                 time.Duration `env:"CLOCK_SKEW"                  envDefault:"60s"`
	DiscoveryCacheTTL         time.Duration `env:"DISCOVERY_CACHE_TTL"         envDefault:"24h"`
	InstanceDiscoveryEndpoint string        `env:"INSTANCE_DISCOVERY_ENDPOINT"`
	Timeout                   time.Duration `env:"TIMEOUT"                     envDefault:"30s"`
	InsecureSkipVerify        bool          `env:"INSECURE_SKIP_VERIFY"`
}

// LoadConfigFromEnv reads a Config from environment variables named
// prefix + "CLIENT_ID", prefix + "PROTOCOL_MODE" and so on, then validates it.
func LoadConfigFromEnv(prefix string) (*Config, error) {
	var raw configEnv
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	cfg := &Config{
		ClientID:         raw.ClientID,
		ProtocolMode:     ProtocolMode(strings.ToUpper(strings.TrimSpace(raw.ProtocolMode))),
		KnownAuthorities: raw.KnownAuthorities,
		Cache: CacheConfig{
			Enabled: raw.CacheEnabled,
			MaxSize: raw.CacheMaxSize,
			TTL:     raw.CacheTTL,
		},
		ClockSkew:                 raw.ClockSkew,
		DiscoveryCacheTTL:         raw.DiscoveryCacheTTL,
		InstanceDiscoveryEndpoint: strings.TrimSpace(raw.InstanceDiscoveryEndpoint),
		Timeout:                   raw.Timeout,
		InsecureSkipVerify:        raw.InsecureSkipVerify,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
