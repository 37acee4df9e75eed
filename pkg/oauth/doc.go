// Package oauth processes the responses an OAuth 2.0 / OpenID Connect client
// receives from an authorization server.
//
// The package sits after the network call: it validates authorization-code
// redirects, turns token endpoint responses into cache-ready credentials,
// and produces the result returned to the application. Bearer and
// proof-of-possession (PoP) tokens are both supported.
//
// # Authorization Code Responses
//
// The redirect's state is compared to the state sent with the request
// before anything else, so a forged redirect is always reported as a state
// mismatch. Server error fields are then classified:
//
//	resp := oauth.ParseAuthorizationCodeResponse(r.URL.Query())
//	if err := handler.ValidateAuthorizationCodeResponse(resp, session.State); err != nil {
//	    if oauth.IsInteractionRequired(err) {
//	        // restart the interactive flow
//	    }
//	    return err
//	}
//
// # Token Responses
//
// HandleTokenResponse extracts the id_token claims, checks that the token's
// environment is trusted by the authority, builds the account and
// credential entities, materializes the result and stores the record:
//
//	config := &oauth.Config{
//	    ClientID: "your-client-id",
//	    Cache: oauth.CacheConfig{
//	        Enabled: true,
//	    },
//	}
//
//	handler, err := oauth.NewResponseHandler(config, oauth.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer handler.Close()
//
//	authority, err := oauth.MicrosoftAuthority("organizations")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := handler.HandleTokenResponseBody(ctx, body, authority, oauth.HTTPBinding{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println(result.Account.Username, result.ExpiresOn)
//
// # Authorities
//
// An authority decides which hosts may appear as a token environment. The
// Azure public, China and US Government clouds are built in. B2C and custom
// hosts must be listed in KnownAuthorities, and generic OIDC authorities
// trust their own host. InstanceDiscoveryClient resolves aliases for other
// AAD hosts from the network.
//
// # Proof of Possession
//
// For PoP the application sends req_cnf with the token request:
//
//	cnf, err := oauth.GenerateRequestConfirmation(ctx, crypto)
//	// add req_cnf=cnf.Encoded and token_type=pop to the token request
//
// The result's AccessToken is then a token signed by the key that cnf names,
// bound to the HTTPBinding passed to HandleTokenResponse.
//
// # Errors
//
// Each failure has a typed error matching a sentinel with errors.Is:
//
//   - *StateMismatchError (ErrStateMismatch)
//   - *InteractionRequiredAuthError (ErrInteractionRequired)
//   - *ServerError (ErrServerError)
//   - *ClientInfoDecodingError (ErrClientInfoDecoding)
//   - *InvalidCacheEnvironmentError (ErrInvalidCacheEnvironment)
//   - *TokenParsingError (ErrTokenParsing)
//
// # Thread Safety
//
// ResponseHandler, MemoryCache, DefaultCryptoProvider and
// InstanceDiscoveryClient are safe for concurrent use.
package oauth
