package token

import (
	"slices"
	"sort"
	"time"

	"taskhub/pkg/platform/strings"
)

// Claims is the verified subset of a token the service relies on.
type Claims struct {
	Subject     string
	Email       string
	DisplayName string
	Realm       string
	Issuer      string
	Roles       []string
	ExpiresAt   time.Time
}

type rawClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

func (r rawClaims) toClaims(realm, iss, sub string, exp time.Time) *Claims {
	name := r.Name
	if name == "" {
		name = r.PreferredUsername
	}
	return &Claims{
		Subject:     sub,
		Email:       r.Email,
		DisplayName: name,
		Realm:       realm,
		Issuer:      iss,
		Roles:       r.roles(),
		ExpiresAt:   exp,
	}
}

// roles merges realm roles with client roles namespaced as "client:role".
// Realm roles come first; clients are visited in name order.
func (r rawClaims) roles() []string {
	out := slices.Clone(r.RealmAccess.Roles)

	clients := make([]string, 0, len(r.ResourceAccess))
	for c := range r.ResourceAccess {
		clients = append(clients, c)
	}
	sort.Strings(clients)
	for _, c := range clients {
		for _, role := range r.ResourceAccess[c].Roles {
			out = append(out, c+":"+role)
		}
	}
	return strings.DedupeAndTrim(out)
}
