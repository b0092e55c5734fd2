package token

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"taskhub/internal/identity/keys"
	"taskhub/pkg/testutil/idp"
)

type VerifierSuite struct {
	suite.Suite
	idp      *idp.Issuer
	resolver *keys.Resolver
	verifier *Verifier
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.idp = idp.NewIssuer(s.T())
	s.idp.AddRealm("alpha")
	s.idp.AddRealm("beta")
	s.resolver = keys.NewResolver(s.idp.URL(), keys.WithHTTPClient(s.idp.Client()))
	s.T().Cleanup(s.resolver.Close)
	s.verifier = NewVerifier(Config{IssuerBaseURL: s.idp.URL(), Audience: "account"}, s.resolver)
}

func (s *VerifierSuite) TestValidToken() {
	raw := s.idp.Mint(idp.Token{
		Realm:       "alpha",
		Subject:     "user-1",
		Email:       "ada@alpha.io",
		Name:        "Ada Lovelace",
		RealmRoles:  []string{"admin", "member", "admin"},
		ClientRoles: map[string][]string{"taskhub-app": {"viewer"}, "account": {"manage-account"}},
	})

	claims, err := s.verifier.Verify(context.Background(), raw)
	s.Require().NoError(err)
	s.Equal("user-1", claims.Subject)
	s.Equal("alpha", claims.Realm)
	s.Equal("ada@alpha.io", claims.Email)
	s.Equal("Ada Lovelace", claims.DisplayName)
	s.Equal([]string{"admin", "member", "account:manage-account", "taskhub-app:viewer"}, claims.Roles)
}

func (s *VerifierSuite) TestDisplayNameFallsBackToUsername() {
	raw := s.idp.Mint(idp.Token{Realm: "alpha", Email: "grace@alpha.io"})
	claims, err := s.verifier.Verify(context.Background(), raw)
	s.Require().NoError(err)
	s.Equal("grace", claims.DisplayName)
}

func (s *VerifierSuite) TestExpiredToken() {
	raw := s.idp.Mint(idp.Token{Realm: "alpha", ExpiresIn: time.Minute, IssuedAtOffset: -time.Hour})
	_, err := s.verifier.Verify(context.Background(), raw)
	s.True(IsExpired(err))
}

func (s *VerifierSuite) TestTokenFromOtherRealmKey() {
	// Issuer claims alpha but the token was signed with beta's key.
	raw := s.idp.Mint(idp.Token{Realm: "alpha", SignWithRealm: "beta"})
	_, err := s.verifier.Verify(context.Background(), raw)
	s.ErrorIs(err, ErrSignatureInvalid)
}

func (s *VerifierSuite) TestForgedExpiredTokenIsInvalidNotExpired() {
	raw := s.idp.Mint(idp.Token{Realm: "alpha", SignWithRealm: "beta", ExpiresIn: time.Minute, IssuedAtOffset: -time.Hour})
	_, err := s.verifier.Verify(context.Background(), raw)
	s.ErrorIs(err, ErrSignatureInvalid)
	s.False(IsExpired(err))
}

func (s *VerifierSuite) TestIssuerMismatch() {
	raw := s.idp.Mint(idp.Token{Realm: "alpha", Issuer: "https://evil.example.com/realms/alpha"})
	_, err := s.verifier.Verify(context.Background(), raw)
	s.ErrorIs(err, ErrIssuerMismatch)
	s.Equal(0, s.idp.Fetches(), "no key fetch for a foreign issuer")
}

func (s *VerifierSuite) TestAudienceMismatch() {
	raw := s.idp.Mint(idp.Token{Realm: "alpha", Audience: []string{"other-service"}})
	_, err := s.verifier.Verify(context.Background(), raw)
	s.ErrorIs(err, ErrAudienceMismatch)
}

func (s *VerifierSuite) TestUnknownRealmHasNoKeys() {
	raw := s.idp.Mint(idp.Token{Realm: "gamma", SignWithRealm: "alpha"})
	_, err := s.verifier.Verify(context.Background(), raw)
	s.ErrorIs(err, ErrSignatureInvalid)
}

func (s *VerifierSuite) TestRejectedRealmsLeaveNoKeySets() {
	raw := s.idp.Mint(idp.Token{Realm: "alpha"})
	_, err := s.verifier.Verify(context.Background(), raw)
	s.Require().NoError(err)

	for i := range 300 {
		forged := s.idp.Mint(idp.Token{Realm: fmt.Sprintf("nosuch-%d", i), SignWithRealm: "alpha"})
		_, err := s.verifier.Verify(context.Background(), forged)
		s.Require().ErrorIs(err, ErrSignatureInvalid)
	}
	s.Equal(1, s.resolver.Len())
}

func (s *VerifierSuite) TestKeyRotationRefetches() {
	first := s.idp.Mint(idp.Token{Realm: "alpha"})
	_, err := s.verifier.Verify(context.Background(), first)
	s.Require().NoError(err)

	s.idp.AddRealm("alpha")
	rotated := s.idp.Mint(idp.Token{Realm: "alpha"})
	_, err = s.verifier.Verify(context.Background(), rotated)
	s.Require().NoError(err)
	s.Equal(1, s.resolver.Len(), "same key set reused across rotation")
}

func (s *VerifierSuite) TestMalformedTokens() {
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := s.verifier.Verify(context.Background(), raw)
		s.ErrorIs(err, ErrMalformedToken, raw)
	}
}

func (s *VerifierSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.verifier.Verify(ctx, s.idp.Mint(idp.Token{Realm: "alpha"}))
	s.True(errors.Is(err, context.Canceled) || errors.Is(err, ErrSignatureInvalid))
}

func TestRealmFromIssuer(t *testing.T) {
	realm, err := RealmFromIssuer("https://id.example.com/realms/acme-corp")
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", realm)

	realm, err = RealmFromIssuer("https://id.example.com/auth/realms/acme/")
	require.NoError(t, err)
	assert.Equal(t, "acme", realm)

	for _, bad := range []string{"", "acme", "https://id.example.com/acme", "https://id.example.com/realms/"} {
		_, err := RealmFromIssuer(bad)
		assert.ErrorIs(t, err, ErrMalformedToken, bad)
	}
	for _, bad := range []string{"https://id.example.com/realms/Acme", "https://id.example.com/realms/..%2f..", "https://id.example.com/realms/a"} {
		_, err := RealmFromIssuer(bad)
		assert.Error(t, err, bad)
	}
}
