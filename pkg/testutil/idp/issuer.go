// Package idp is a fake identity provider for tests: it serves per-realm
// JWKS documents over httptest and mints RS256 tokens for those realms.
package idp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type signingKey struct {
	kid string
	key *rsa.PrivateKey
}

// Issuer hosts realms at <URL>/realms/<name>.
type Issuer struct {
	t      testing.TB
	server *httptest.Server

	mu     sync.Mutex
	realms map[string][]signingKey
	seq    int

	fetches atomic.Int32
}

// NewIssuer starts the fake and registers cleanup on t.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	iss := &Issuer{t: t, realms: map[string][]signingKey{}}
	iss.server = httptest.NewServer(http.HandlerFunc(iss.serveJWKS))
	t.Cleanup(iss.server.Close)
	return iss
}

// URL is both the back-channel and the public base URL of the fake.
func (i *Issuer) URL() string { return i.server.URL }

// Client returns an HTTP client that talks to the fake.
func (i *Issuer) Client() *http.Client { return i.server.Client() }

// IssuerFor returns the "iss" value for realm.
func (i *Issuer) IssuerFor(realm string) string { return i.server.URL + "/realms/" + realm }

// Fetches counts JWKS document requests across all realms.
func (i *Issuer) Fetches() int { return int(i.fetches.Load()) }

// AddRealm creates a realm with one signing key. Calling it again rotates in
// an additional key that becomes the current signer.
func (i *Issuer) AddRealm(realm string) {
	i.t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		i.t.Fatalf("generate key: %v", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++
	i.realms[realm] = append(i.realms[realm], signingKey{kid: fmt.Sprintf("%s-k%d", realm, i.seq), key: key})
}

// Token describes a token to mint. Zero values get sensible defaults.
type Token struct {
	Realm          string
	Issuer         string
	Subject        string
	Email          string
	Name           string
	Audience       []string
	RealmRoles     []string
	ClientRoles    map[string][]string
	ExpiresIn      time.Duration
	SignWithRealm  string
	OmitKeyID      bool
	IssuedAtOffset time.Duration
}

// Mint signs tok with the realm's current key.
func (i *Issuer) Mint(tok Token) string {
	i.t.Helper()
	signer := tok.SignWithRealm
	if signer == "" {
		signer = tok.Realm
	}
	i.mu.Lock()
	keys := i.realms[signer]
	i.mu.Unlock()
	if len(keys) == 0 {
		i.t.Fatalf("realm %q has no keys", signer)
	}
	current := keys[len(keys)-1]

	if tok.Issuer == "" {
		tok.Issuer = i.IssuerFor(tok.Realm)
	}
	if tok.Subject == "" {
		tok.Subject = "a1b2c3d4-0000-4000-8000-000000000001"
	}
	if tok.ExpiresIn == 0 {
		tok.ExpiresIn = 5 * time.Minute
	}
	if tok.Audience == nil {
		tok.Audience = []string{"account"}
	}
	now := time.Now().Add(tok.IssuedAtOffset)

	claims := jwt.MapClaims{
		"iss":                tok.Issuer,
		"sub":                tok.Subject,
		"aud":                tok.Audience,
		"iat":                now.Unix(),
		"exp":                now.Add(tok.ExpiresIn).Unix(),
		"email":              tok.Email,
		"name":               tok.Name,
		"preferred_username": strings.Split(tok.Email, "@")[0],
		"realm_access":       map[string]any{"roles": tok.RealmRoles},
	}
	if len(tok.ClientRoles) > 0 {
		access := map[string]any{}
		for client, roles := range tok.ClientRoles {
			access[client] = map[string]any{"roles": roles}
		}
		claims["resource_access"] = access
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if !tok.OmitKeyID {
		t.Header["kid"] = current.kid
	}
	signed, err := t.SignedString(current.key)
	if err != nil {
		i.t.Fatalf("sign token: %v", err)
	}
	return signed
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (i *Issuer) serveJWKS(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/realms/")
	realm, suffix, _ := strings.Cut(rest, "/")
	if !ok || suffix != "protocol/openid-connect/certs" {
		http.NotFound(w, r)
		return
	}
	i.fetches.Add(1)

	i.mu.Lock()
	keys := i.realms[realm]
	i.mu.Unlock()
	if len(keys) == 0 {
		http.NotFound(w, r)
		return
	}

	doc := struct {
		Keys []jwk `json:"keys"`
	}{}
	for _, k := range keys {
		pub := k.key.PublicKey
		doc.Keys = append(doc.Keys, jwk{
			Kty: "RSA",
			Kid: k.kid,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
