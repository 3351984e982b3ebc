package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestKeyPair holds an RSA key pair for signing test tokens. The gateway
// never verifies signatures, so the public half exists only for symmetry.
type TestKeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	Kid        string
}

// GenerateTestKeyPair creates a new RSA key pair for testing.
func GenerateTestKeyPair(t *testing.T, kid string) *TestKeyPair {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return &TestKeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Kid:        kid,
	}
}

// TokenBuilder provides a fluent API for building test access tokens.
type TokenBuilder struct {
	t          *testing.T
	keyPair    *TestKeyPair
	subject    string
	objectID   string
	tenantID   string
	upn        string
	name       string
	appID      string
	scope      string
	audience   []string
	groups     []string
	roles      []string
	expiration time.Time
	issuedAt   time.Time
	issuer     string
}

// NewTokenBuilder creates a new token builder with sensible defaults.
func NewTokenBuilder(t *testing.T, keyPair *TestKeyPair) *TokenBuilder {
	t.Helper()
	return &TokenBuilder{
		t:          t,
		keyPair:    keyPair,
		subject:    "test-subject",
		objectID:   "00000000-0000-0000-0000-000000000001",
		tenantID:   "00000000-0000-0000-0000-0000000000aa",
		upn:        "alice@contoso.example",
		name:       "Alice Example",
		appID:      "spa-client-id",
		scope:      "access_as_user",
		audience:   []string{"api://obo-api"},
		groups:     []string{},
		roles:      []string{},
		expiration: time.Now().Add(time.Hour),
		issuedAt:   time.Now(),
		issuer:     "https://login.microsoftonline.com/test-tenant/v2.0",
	}
}

// WithObjectID sets the oid claim.
func (b *TokenBuilder) WithObjectID(oid string) *TokenBuilder {
	b.objectID = oid
	return b
}

// WithUPN sets the upn claim.
func (b *TokenBuilder) WithUPN(upn string) *TokenBuilder {
	b.upn = upn
	return b
}

// WithAppID sets the appid claim.
func (b *TokenBuilder) WithAppID(appID string) *TokenBuilder {
	b.appID = appID
	return b
}

// WithScope sets the scp claim.
func (b *TokenBuilder) WithScope(scope string) *TokenBuilder {
	b.scope = scope
	return b
}

// WithAudience sets the audience claim.
func (b *TokenBuilder) WithAudience(aud ...string) *TokenBuilder {
	b.audience = aud
	return b
}

// WithGroups sets the groups claim.
func (b *TokenBuilder) WithGroups(groups ...string) *TokenBuilder {
	b.groups = groups
	return b
}

// WithRoles sets the roles claim.
func (b *TokenBuilder) WithRoles(roles ...string) *TokenBuilder {
	b.roles = roles
	return b
}

// WithIssuer sets the issuer claim.
func (b *TokenBuilder) WithIssuer(iss string) *TokenBuilder {
	b.issuer = iss
	return b
}

// ExpiresIn sets the token to expire in the given duration.
func (b *TokenBuilder) ExpiresIn(d time.Duration) *TokenBuilder {
	b.expiration = time.Now().Add(d)
	return b
}

// customClaims extends RegisteredClaims with the platform claims the
// gateway reads.
type customClaims struct {
	jwt.RegisteredClaims
	ObjectID string   `json:"oid,omitempty"`
	TenantID string   `json:"tid,omitempty"`
	UPN      string   `json:"upn,omitempty"`
	Name     string   `json:"name,omitempty"`
	AppID    string   `json:"appid,omitempty"`
	Scope    string   `json:"scp,omitempty"`
	Groups   []string `json:"groups,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Build creates and signs the token, returning the compact string.
func (b *TokenBuilder) Build() string {
	b.t.Helper()

	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   b.subject,
			Issuer:    b.issuer,
			Audience:  b.audience,
			ExpiresAt: jwt.NewNumericDate(b.expiration),
			IssuedAt:  jwt.NewNumericDate(b.issuedAt),
		},
		ObjectID: b.objectID,
		TenantID: b.tenantID,
		UPN:      b.upn,
		Name:     b.name,
		AppID:    b.appID,
		Scope:    b.scope,
		Groups:   b.groups,
		Roles:    b.roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = b.keyPair.Kid

	tokenString, err := token.SignedString(b.keyPair.PrivateKey)
	if err != nil {
		b.t.Fatalf("Failed to sign token: %v", err)
	}

	return tokenString
}
