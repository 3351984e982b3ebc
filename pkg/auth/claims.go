// Package auth decodes delegated access tokens and exchanges them for
// downstream tokens using the On-Behalf-Of grant.
//
// Tokens are decoded without signature verification: this service sits
// behind the identity platform's own validation and only reads claims for
// exchange input and authorization filtering. Verification of the exchanged
// token happens downstream at the receiving API.
package auth

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// parseAlgs gates structural JWS parsing, not verification. It covers the
// signature algorithms the identity platform issues.
var parseAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
}

// Claims is the claim set read from an access token. Absent claims decode to
// zero values.
type Claims struct {
	Issuer            string   `json:"iss"`
	Subject           string   `json:"sub"`
	Audience          Audience `json:"aud"`
	ObjectID          string   `json:"oid"`
	TenantID          string   `json:"tid"`
	UPN               string   `json:"upn"`
	PreferredUsername string   `json:"preferred_username"`
	Name              string   `json:"name"`
	AppID             string   `json:"appid"`
	Scope             string   `json:"scp"`
	Groups            []string `json:"groups"`
	Roles             []string `json:"roles"`
	ExpiresAt         int64    `json:"exp"`
	IssuedAt          int64    `json:"iat"`
}

// Audience handles both string and []string forms of the "aud" claim
type Audience []string

func (a *Audience) UnmarshalJSON(data []byte) error {
	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Audience{s}
		return nil
	}
	// Try []string
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return errors.New("aud claim is neither string nor array")
	}
	*a = Audience(arr)
	return nil
}

// Value returns the aud claim as it appeared in the token: the bare string
// when single-valued, the slice otherwise. Response payloads use this to
// echo the claim in its original shape.
func (a Audience) Value() any {
	if len(a) == 1 {
		return a[0]
	}
	return []string(a)
}

// Equal reports whether two audiences carry the same values in order.
func (a Audience) Equal(b Audience) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PrincipalName returns the best available human-readable principal, the upn
// claim with preferred_username as fallback.
func (c *Claims) PrincipalName() string {
	if c.UPN != "" {
		return c.UPN
	}
	return c.PreferredUsername
}

// GroupCount returns the number of group claims in the token.
func (c *Claims) GroupCount() int {
	return len(c.Groups)
}

// ParseClaims decodes the payload of a compact JWS without verifying its
// signature.
func ParseClaims(tokenString string) (*Claims, error) {
	jws, err := jose.ParseSigned(tokenString, parseAlgs)
	if err != nil {
		return nil, &MalformedTokenError{Reason: "not a compact JWS", Err: err}
	}
	var claims Claims
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &claims); err != nil {
		return nil, &MalformedTokenError{Reason: "payload is not a JSON claim set", Err: err}
	}
	// Responses echo these lists; keep them non-nil so they marshal as [].
	if claims.Groups == nil {
		claims.Groups = []string{}
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return &claims, nil
}

// BearerFromHeader extracts the token from an Authorization header value.
func BearerFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if header == "" {
		return "", errors.New("no authorization token provided")
	}
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("authorization header must use the Bearer scheme")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("authorization header carries an empty bearer token")
	}
	return token, nil
}
