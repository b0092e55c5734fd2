// Package keys resolves the signing key set for an identity realm.
//
// A realm's remote key set is kept for the life of the process once a token
// signed by that realm has verified. The set refetches the realm's JWKS
// document on its own when a token carries an unknown key id, so rotation
// needs no invalidation here. Suspending a tenant does not touch its entry;
// only deleting the realm does.
//
// Realm names come from the unverified issuer claim, so a realm that has
// never produced a valid signature is held only in a small bounded cache
// with a short lifetime.
package keys

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultPendingLimit = 1024
	defaultPendingTTL   = time.Minute
)

// Entry is the cached key source for one realm.
type Entry struct {
	Realm     string
	KeySet    *oidc.RemoteKeySet
	FetchedAt time.Time
}

// Observer is notified when realm entries are published or dropped.
type Observer interface {
	KeySetCreated(realm string)
	KeySetForgotten(realm string)
}

// Resolver maps realm names to key sets. Reads are lock free; publishing a
// confirmed realm copies the map under a mutex and swaps it atomically.
type Resolver struct {
	baseURL      string
	baseCtx      context.Context
	observer     Observer
	pendingLimit int64
	pendingTTL   time.Duration

	entries atomic.Pointer[map[string]*Entry]
	publish sync.Mutex
	pending *ristretto.Cache[string, *oidc.RemoteKeySet]
}

type Option func(*Resolver)

// WithHTTPClient sets the client used for JWKS fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.baseCtx = oidc.ClientContext(context.Background(), c)
	}
}

func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// WithPendingLimit bounds the unconfirmed realms held at once and how long
// each is kept.
func WithPendingLimit(n int64, ttl time.Duration) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.pendingLimit = n
		}
		if ttl > 0 {
			r.pendingTTL = ttl
		}
	}
}

// NewResolver builds a resolver whose key URLs are rooted at baseURL, the
// back-channel address of the identity provider.
func NewResolver(baseURL string, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL:      strings.TrimRight(baseURL, "/"),
		baseCtx:      context.Background(),
		pendingLimit: defaultPendingLimit,
		pendingTTL:   defaultPendingTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	pending, err := ristretto.NewCache(&ristretto.Config[string, *oidc.RemoteKeySet]{
		NumCounters: r.pendingLimit * 10,
		MaxCost:     r.pendingLimit,
		BufferItems: 64,
	})
	if err != nil {
		// Only non-positive sizes are rejected, and the options never set one.
		panic(err)
	}
	r.pending = pending
	empty := map[string]*Entry{}
	r.entries.Store(&empty)
	return r
}

// JWKSURL returns the key document location for a realm.
func (r *Resolver) JWKSURL(realm string) string {
	return r.baseURL + "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect/certs"
}

// Resolve returns the key set for realm. Creation does no I/O; keys are
// fetched lazily on the first verification. A realm is published for good
// only after a signature verifies against its keys.
func (r *Resolver) Resolve(realm string) oidc.KeySet {
	if e, ok := (*r.entries.Load())[realm]; ok {
		return e.KeySet
	}
	set, ok := r.pending.Get(realm)
	if !ok {
		// The key set keeps this context for every later fetch, so it must
		// not be a request context.
		set = oidc.NewRemoteKeySet(r.baseCtx, r.JWKSURL(realm))
		r.pending.SetWithTTL(realm, set, 1, r.pendingTTL)
	}
	return &unconfirmed{resolver: r, realm: realm, set: set}
}

// confirm publishes set for realm unless another set won the race.
func (r *Resolver) confirm(realm string, set *oidc.RemoteKeySet) {
	r.publish.Lock()
	defer r.publish.Unlock()

	current := *r.entries.Load()
	if _, ok := current[realm]; ok {
		return
	}
	next := make(map[string]*Entry, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[realm] = &Entry{Realm: realm, KeySet: set, FetchedAt: time.Now()}
	r.entries.Store(&next)
	r.pending.Del(realm)

	if r.observer != nil {
		r.observer.KeySetCreated(realm)
	}
}

// Forget drops a realm's entry. Used when the realm itself is deleted.
func (r *Resolver) Forget(realm string) {
	r.publish.Lock()
	defer r.publish.Unlock()

	r.pending.Del(realm)
	current := *r.entries.Load()
	if _, ok := current[realm]; !ok {
		return
	}
	next := make(map[string]*Entry, len(current))
	for k, v := range current {
		if k != realm {
			next[k] = v
		}
	}
	r.entries.Store(&next)

	if r.observer != nil {
		r.observer.KeySetForgotten(realm)
	}
}

// Len reports how many realms have a confirmed key set.
func (r *Resolver) Len() int {
	return len(*r.entries.Load())
}

// Lookup returns the confirmed entry without creating one.
func (r *Resolver) Lookup(realm string) (*Entry, bool) {
	e, ok := (*r.entries.Load())[realm]
	return e, ok
}

// Close stops the pending cache's background work.
func (r *Resolver) Close() {
	r.pending.Close()
}

// unconfirmed verifies against a realm's keys and publishes the realm on the
// first success.
type unconfirmed struct {
	resolver *Resolver
	realm    string
	set      *oidc.RemoteKeySet
}

func (u *unconfirmed) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := u.set.VerifySignature(ctx, jwt)
	if err != nil {
		return nil, err
	}
	u.resolver.confirm(u.realm, u.set)
	return payload, nil
}
