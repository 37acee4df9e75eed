package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testClientID = "test-client"
	testTenantID = "tenant-1234"
	testUID      = "uid-5678"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// testSigningKey returns an RSA key shared by the tests in this package.
func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKeyErr != nil {
		t.Fatalf("Failed to generate RSA key: %v", testKeyErr)
	}
	return testKey
}

func createTestJWT(t *testing.T, privateKey *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key-id"

	tokenString, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("Failed to sign JWT: %v", err)
	}

	return tokenString
}

func createMockJWKSServer(t *testing.T, publicKey *rsa.PublicKey) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwks := jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{Key: publicKey, KeyID: "test-key-id", Algorithm: "RS256", Use: "sig"},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}))
}

// idTokenClaims returns the claims of an AAD v2 id_token for testTenantID.
func idTokenClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                "https://login.microsoftonline.com/" + testTenantID + "/v2.0",
		"sub":                "subject-1",
		"aud":                testClientID,
		"tid":                testTenantID,
		"oid":                "object-1",
		"preferred_username": "user@example.com",
		"name":               "Test User",
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
	}
}

func encodeClientInfo(t *testing.T, uid, utid string) string {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"uid": uid, "utid": utid})
	if err != nil {
		t.Fatalf("Failed to marshal client info: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

// completeTokenResponse returns a bearer response carrying every token.
func completeTokenResponse(t *testing.T) *TokenResponse {
	t.Helper()

	key := testSigningKey(t)
	return &TokenResponse{
		IDToken:      createTestJWT(t, key, idTokenClaims()),
		AccessToken:  "raw-access-token",
		RefreshToken: "raw-refresh-token",
		TokenType:    "Bearer",
		Scope:        "openid profile User.Read",
		ExpiresIn:    3600,
		ExtExpiresIn: 7200,
		FamilyID:     "1",
		ClientInfo:   encodeClientInfo(t, testUID, testTenantID),
	}
}

func testAuthority(t *testing.T) Authority {
	t.Helper()

	authority, err := MicrosoftAuthority(testTenantID)
	if err != nil {
		t.Fatalf("MicrosoftAuthority() failed: %v", err)
	}
	return authority
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

// fakeCrypto records SignJWT calls and returns a fixed signature.
type fakeCrypto struct {
	mu       sync.Mutex
	signed   []jwt.MapClaims
	kids     []string
	result   string
	signErr  error
	decodeFn func(string) (string, error)
}

func (f *fakeCrypto) Base64Encode(input string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(input))
}

func (f *fakeCrypto) Base64Decode(input string) (string, error) {
	if f.decodeFn != nil {
		return f.decodeFn(input)
	}
	return defaultBase64{}.Base64Decode(input)
}

func (f *fakeCrypto) GeneratePKCECodes() (*PKCECodes, error) {
	return &PKCECodes{Verifier: "verifier", Challenge: "challenge"}, nil
}

func (f *fakeCrypto) GetPublicKeyThumbprint(ctx context.Context) (string, error) {
	return "fake-thumbprint", nil
}

func (f *fakeCrypto) SignJWT(ctx context.Context, claims jwt.MapClaims, kid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signed = append(f.signed, claims)
	f.kids = append(f.kids, kid)
	if f.signErr != nil {
		return "", f.signErr
	}
	return f.result, nil
}

func (f *fakeCrypto) CreateNewGUID() string {
	return "00000000-0000-4000-8000-000000000000"
}

// countingDecoder records every client_info value it is asked to decode.
type countingDecoder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *countingDecoder) Decode(raw string) (*ClientInfo, error) {
	d.mu.Lock()
	d.calls = append(d.calls, raw)
	d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	return &ClientInfo{UID: "uid", UTID: "utid"}, nil
}

// recordingCache is a CacheManager that keeps every saved record.
type recordingCache struct {
	mu      sync.Mutex
	records []*CacheRecord
	err     error
}

func (c *recordingCache) SaveCacheRecord(ctx context.Context, record *CacheRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, record)
	return nil
}

func (c *recordingCache) saved() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
