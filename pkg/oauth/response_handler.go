package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a ResponseHandler.
type Option func(*ResponseHandler)

// WithCacheManager sets where cache records are persisted.
func WithCacheManager(cache CacheManager) Option {
	return func(h *ResponseHandler) {
		h.cache = cache
	}
}

// WithCryptoProvider sets the crypto collaborator used for client_info
// decoding and PoP signing.
func WithCryptoProvider(crypto CryptoProvider) Option {
	return func(h *ResponseHandler) {
		h.crypto = crypto
	}
}

// WithClaimsExtractor sets how id_token and access token claims are read.
func WithClaimsExtractor(extractor ClaimsExtractor) Option {
	return func(h *ResponseHandler) {
		h.claims = extractor
	}
}

// WithAccessTokenClaimsExtractor sets how PoP access tokens are read for
// their confirmation key.
func WithAccessTokenClaimsExtractor(extractor ClaimsExtractor) Option {
	return func(h *ResponseHandler) {
		h.atClaims = extractor
	}
}

// WithAccountFactory sets the factory that materializes accounts.
func WithAccountFactory(factory AccountFactory) Option {
	return func(h *ResponseHandler) {
		h.accounts = factory
	}
}

// WithLogger sets the logger for the handler.
func WithLogger(logger *slog.Logger) Option {
	return func(h *ResponseHandler) {
		h.logger = logger
	}
}

// WithClock sets the time source for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *ResponseHandler) {
		h.now = now
	}
}

// ResponseHandler validates authorization responses and turns token
// responses into cached credentials and authentication results. It holds no
// per-call state and is safe for concurrent use.
type ResponseHandler struct {
	config   *Config
	cache    CacheManager
	crypto   CryptoProvider
	claims   ClaimsExtractor
	atClaims ClaimsExtractor
	accounts AccountFactory
	logger   *slog.Logger
	now      func() time.Time

	validator     *AuthorizationResponseValidator
	recordBuilder *CacheRecordBuilder
	resultBuilder *AuthenticationResultBuilder

	// closers are resources created by the handler itself.
	closers []func()
}

// NewResponseHandler creates a handler for config. Without WithCacheManager
// an in-memory cache is used when config.Cache.Enabled is set, and records
// are discarded otherwise.
func NewResponseHandler(config *Config, opts ...Option) (*ResponseHandler, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	h := &ResponseHandler{
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.crypto == nil {
		crypto := NewCryptoProvider(0)
		h.crypto = crypto
		h.closers = append(h.closers, crypto.Close)
	}
	if h.claims == nil {
		h.claims = UnverifiedClaimsExtractor{}
	}
	if h.accounts == nil {
		h.accounts = DefaultAccountFactory{}
	}
	if h.cache == nil {
		if config.Cache.Enabled {
			cache := NewMemoryCache(config.Cache)
			h.cache = cache
			h.closers = append(h.closers, cache.Close)
		} else {
			h.cache = noopCache{}
		}
	}

	codec := NewClientInfoCodec(h.crypto)
	h.validator = NewAuthorizationResponseValidator(codec)
	h.recordBuilder = NewCacheRecordBuilder(config.ClientID, CacheRecordBuilderOptions{
		ClaimsExtractor:            h.claims,
		AccessTokenClaimsExtractor: h.atClaims,
		ClientInfoDecoder:          codec,
		AccountFactory:             h.accounts,
		Now:                        h.now,
	})
	h.resultBuilder = NewAuthenticationResultBuilder(h.crypto)
	h.resultBuilder.now = h.now

	return h, nil
}

// ValidateAuthorizationCodeResponse checks an authorization-code redirect
// against the state sent with the request.
func (h *ResponseHandler) ValidateAuthorizationCodeResponse(resp *AuthorizationCodeResponse, expectedState string) error {
	if err := h.validator.Validate(resp, expectedState); err != nil {
		h.logger.Debug("authorization response rejected", "error", err)
		return err
	}
	return nil
}

// HandleTokenResponse builds the cache record and result for resp, then
// persists the record. Nothing is persisted unless both succeed.
func (h *ResponseHandler) HandleTokenResponse(ctx context.Context, resp *TokenResponse, authority Authority, binding HTTPBinding) (*AuthenticationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	record, err := h.recordBuilder.Build(ctx, resp, authority)
	if err != nil {
		h.logger.Debug("token response rejected", "error", err)
		return nil, err
	}

	result, err := h.resultBuilder.Build(ctx, record, authority, binding)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("cache record built",
		"environment", record.Account.Environment,
		"has_access_token", record.AccessToken != nil,
		"has_refresh_token", record.RefreshToken != nil,
		"token_type", result.TokenType,
	)

	if err := h.cache.SaveCacheRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save cache record: %w", err)
	}

	return result, nil
}

// HandleTokenResponseBody parses a raw token endpoint body and handles it.
func (h *ResponseHandler) HandleTokenResponseBody(ctx context.Context, body []byte, authority Authority, binding HTTPBinding) (*AuthenticationResult, error) {
	resp, err := ParseTokenResponse(body)
	if err != nil {
		return nil, err
	}
	return h.HandleTokenResponse(ctx, resp, authority, binding)
}

// Close releases resources the handler created.
func (h *ResponseHandler) Close() error {
	for _, closeFn := range h.closers {
		closeFn()
	}
	h.closers = nil
	return nil
}
