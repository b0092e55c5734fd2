package keys

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/pkg/testutil/idp"
)

type countingObserver struct{ n atomic.Int32 }

func (c *countingObserver) KeySetCreated(string)   { c.n.Add(1) }
func (c *countingObserver) KeySetForgotten(string) { c.n.Add(-1) }

func newTestResolver(t *testing.T, issuer *idp.Issuer, opts ...Option) *Resolver {
	t.Helper()
	opts = append(opts, WithHTTPClient(issuer.Client()))
	r := NewResolver(issuer.URL(), opts...)
	t.Cleanup(r.Close)
	return r
}

func TestResolver_JWKSURL(t *testing.T) {
	r := NewResolver("http://keycloak:8080/")
	defer r.Close()
	assert.Equal(t, "http://keycloak:8080/realms/acme/protocol/openid-connect/certs", r.JWKSURL("acme"))
}

func TestResolver_PublishesAfterFirstVerifiedSignature(t *testing.T) {
	issuer := idp.NewIssuer(t)
	issuer.AddRealm("acme")
	obs := &countingObserver{}
	r := newTestResolver(t, issuer, WithObserver(obs))

	ks := r.Resolve("acme")
	assert.Equal(t, 0, r.Len(), "nothing published before a signature verifies")

	_, err := ks.VerifySignature(context.Background(), issuer.Mint(idp.Token{Realm: "acme"}))
	require.NoError(t, err)

	entry, ok := r.Lookup("acme")
	require.True(t, ok)
	assert.Same(t, entry.KeySet, r.Resolve("acme"))
	assert.Same(t, r.Resolve("acme"), r.Resolve("acme"))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int32(1), obs.n.Load())
}

func TestResolver_UnknownRealmsAreNotRetained(t *testing.T) {
	issuer := idp.NewIssuer(t)
	issuer.AddRealm("acme")
	obs := &countingObserver{}
	r := newTestResolver(t, issuer, WithObserver(obs), WithPendingLimit(16, 0))

	// Signed by a real realm but claimed for realms that do not exist.
	raw := issuer.Mint(idp.Token{Realm: "acme"})
	for i := range 200 {
		_, err := r.Resolve(fmt.Sprintf("nosuch-%d", i)).VerifySignature(context.Background(), raw)
		require.Error(t, err)
	}

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int32(0), obs.n.Load())
	_, ok := r.Lookup("nosuch-0")
	assert.False(t, ok)
}

func TestResolver_ForgedSignatureDoesNotPublish(t *testing.T) {
	issuer := idp.NewIssuer(t)
	issuer.AddRealm("acme")
	issuer.AddRealm("evil")
	r := newTestResolver(t, issuer)

	_, err := r.Resolve("acme").VerifySignature(context.Background(), issuer.Mint(idp.Token{Realm: "acme", SignWithRealm: "evil"}))
	require.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestResolver_ConcurrentFirstUsePublishesOne(t *testing.T) {
	issuer := idp.NewIssuer(t)
	issuer.AddRealm("acme")
	obs := &countingObserver{}
	r := newTestResolver(t, issuer, WithObserver(obs))
	raw := issuer.Mint(idp.Token{Realm: "acme"})

	const workers = 32
	var wg sync.WaitGroup
	var failures atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve("acme").VerifySignature(context.Background(), raw); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int32(1), obs.n.Load())
}

func TestResolver_Forget(t *testing.T) {
	issuer := idp.NewIssuer(t)
	issuer.AddRealm("acme")
	issuer.AddRealm("globex")
	r := newTestResolver(t, issuer)
	for _, realm := range []string{"acme", "globex"} {
		_, err := r.Resolve(realm).VerifySignature(context.Background(), issuer.Mint(idp.Token{Realm: realm}))
		require.NoError(t, err)
	}
	before, _ := r.Lookup("acme")

	r.Forget("acme")
	r.Forget("never-seen")

	_, ok := r.Lookup("acme")
	require.False(t, ok)
	assert.Equal(t, 1, r.Len())
	assert.NotSame(t, before.KeySet, r.Resolve("acme"))
}
