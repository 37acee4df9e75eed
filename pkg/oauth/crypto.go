package oauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CryptoProvider is the crypto collaborator of the response pipeline.
type CryptoProvider interface {
	Base64Decoder

	// Base64Encode returns the URL-safe unpadded encoding of input.
	Base64Encode(input string) string

	// GeneratePKCECodes returns a fresh S256 verifier/challenge pair.
	GeneratePKCECodes() (*PKCECodes, error)

	// GetPublicKeyThumbprint creates a signing key and returns its RFC 7638
	// thumbprint, which is also the key id accepted by SignJWT.
	GetPublicKeyThumbprint(ctx context.Context) (string, error)

	// SignJWT signs claims with the key identified by kid.
	SignJWT(ctx context.Context, claims jwt.MapClaims, kid string) (string, error)

	// CreateNewGUID returns a random version 4 UUID.
	CreateNewGUID() string
}

// PKCECodes is a PKCE verifier and its S256 challenge.
type PKCECodes struct {
	Verifier  string
	Challenge string
}

// DefaultCryptoProvider keeps RSA signing keys in memory, indexed by
// thumbprint.
type DefaultCryptoProvider struct {
	keys    *lruCache[*rsa.PrivateKey]
	keySize int
}

// NewCryptoProvider creates a provider holding at most maxKeys signing keys.
// Older keys are evicted first.
func NewCryptoProvider(maxKeys int) *DefaultCryptoProvider {
	if maxKeys <= 0 {
		maxKeys = 16
	}
	return &DefaultCryptoProvider{
		keys:    newLRUCache[*rsa.PrivateKey](maxKeys),
		keySize: 2048,
	}
}

// Base64Encode implements CryptoProvider.
func (p *DefaultCryptoProvider) Base64Encode(input string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(input))
}

// Base64Decode accepts padded or unpadded input in either alphabet.
func (p *DefaultCryptoProvider) Base64Decode(input string) (string, error) {
	b, err := decodeBase64(input)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GeneratePKCECodes implements CryptoProvider.
func (p *DefaultCryptoProvider) GeneratePKCECodes() (*PKCECodes, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	return &PKCECodes{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// GetPublicKeyThumbprint implements CryptoProvider.
func (p *DefaultCryptoProvider) GetPublicKeyThumbprint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := rsa.GenerateKey(rand.Reader, p.keySize)
	if err != nil {
		return "", fmt.Errorf("failed to generate signing key: %w", err)
	}

	kid, err := thumbprint(&key.PublicKey)
	if err != nil {
		return "", err
	}

	p.keys.Set(kid, key, 0)
	return kid, nil
}

// SignJWT implements CryptoProvider. The public key is embedded as cnf.jwk so
// the resource server can verify the signature.
func (p *DefaultCryptoProvider) SignJWT(ctx context.Context, claims jwt.MapClaims, kid string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, ok := p.keys.Get(kid)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSigningKeyNotFound, kid)
	}

	payload := make(jwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		payload[k] = v
	}
	payload["cnf"] = map[string]interface{}{
		"jwk": jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// RemoveKey forgets the signing key identified by kid.
func (p *DefaultCryptoProvider) RemoveKey(kid string) {
	p.keys.Delete(kid)
}

// CreateNewGUID implements CryptoProvider.
func (p *DefaultCryptoProvider) CreateNewGUID() string {
	return uuid.NewString()
}

// Close releases the key store.
func (p *DefaultCryptoProvider) Close() {
	p.keys.Close()
}

// thumbprint returns the base64url RFC 7638 SHA-256 thumbprint of pub.
func thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
