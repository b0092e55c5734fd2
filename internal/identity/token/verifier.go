// Package token verifies bearer tokens issued by per-tenant identity realms.
//
// The issuer is read from the unverified payload only to pick the realm and
// its key set. Nothing from an unverified token is trusted beyond that: the
// issuer must equal the configured value for that realm, and the signature,
// audience and expiry are checked against the realm's published keys.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Failure reasons. Callers surface these only as "expired" or "invalid".
var (
	ErrMalformedToken    = errors.New("malformed token")
	ErrSignatureInvalid  = errors.New("signature invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrIssuerMismatch    = errors.New("issuer mismatch")
	ErrAudienceMismatch  = errors.New("audience mismatch")
	ErrMissingSubject    = errors.New("token has no subject")
	ErrRealmNotAllowable = errors.New("realm name not allowed")
)

var realmPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,99}$`)

// KeySource resolves the key set for a realm.
type KeySource interface {
	Resolve(realm string) oidc.KeySet
}

type Config struct {
	// IssuerBaseURL is the public origin tokens name in "iss".
	IssuerBaseURL string
	// Audience must appear in "aud". Empty skips the audience check.
	Audience string
	// Algorithms accepted for signatures. Defaults to RS256 and ES256.
	Algorithms []string
	// Leeway tolerated on expiry.
	Leeway time.Duration
}

type Verifier struct {
	cfg    Config
	keys   KeySource
	parser *jwt.Parser
	now    func() time.Time
}

type Option func(*Verifier)

// WithClock overrides the time source for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

func NewVerifier(cfg Config, keys KeySource, opts ...Option) *Verifier {
	cfg.IssuerBaseURL = strings.TrimRight(cfg.IssuerBaseURL, "/")
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []string{oidc.RS256, oidc.ES256}
	}
	v := &Verifier{
		cfg:    cfg,
		keys:   keys,
		parser: jwt.NewParser(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ExpectedIssuer returns the only issuer accepted for realm.
func (v *Verifier) ExpectedIssuer(realm string) string {
	return v.cfg.IssuerBaseURL + "/realms/" + realm
}

// Verify checks raw and returns its claims. Errors wrap one of the package
// sentinel reasons.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	unverified := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(raw, unverified); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	iss, _ := unverified["iss"].(string)
	realm, err := RealmFromIssuer(iss)
	if err != nil {
		return nil, err
	}
	if iss != v.ExpectedIssuer(realm) {
		return nil, fmt.Errorf("%w: got %q", ErrIssuerMismatch, iss)
	}

	verifier := oidc.NewVerifier(iss, v.keys.Resolve(realm), &oidc.Config{
		SkipClientIDCheck:    true,
		SkipExpiryCheck:      true,
		SupportedSigningAlgs: v.cfg.Algorithms,
		Now:                  v.now,
	})
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	// Expiry is checked after the signature so a forged token is never
	// reported as merely expired.
	if idToken.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	if !v.now().Before(idToken.Expiry.Add(v.cfg.Leeway)) {
		return nil, ErrTokenExpired
	}
	if v.cfg.Audience != "" && !contains(idToken.Audience, v.cfg.Audience) {
		return nil, fmt.Errorf("%w: want %q", ErrAudienceMismatch, v.cfg.Audience)
	}

	var raws rawClaims
	if err := idToken.Claims(&raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if idToken.Subject == "" {
		return nil, ErrMissingSubject
	}
	return raws.toClaims(realm, iss, idToken.Subject, idToken.Expiry), nil
}

// RealmFromIssuer extracts the realm name: the final path segment following
// a "realms" segment.
func RealmFromIssuer(iss string) (string, error) {
	if iss == "" {
		return "", fmt.Errorf("%w: missing iss", ErrMalformedToken)
	}
	u, err := url.Parse(iss)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: iss is not a URL", ErrMalformedToken)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[len(segments)-2] != "realms" {
		return "", fmt.Errorf("%w: iss has no realm", ErrMalformedToken)
	}
	realm := segments[len(segments)-1]
	if !realmPattern.MatchString(realm) {
		return "", ErrRealmNotAllowable
	}
	return realm, nil
}

// IsExpired reports whether err means the token was otherwise valid but expired.
func IsExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
