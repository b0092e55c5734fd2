package partition

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/identity/identitytest"
	"taskhub/internal/identity/token"
	"taskhub/pkg/testutil"
	dErrors "taskhub/pkg/domain-errors"
)

func TestForProvisioningValidatesSchema(t *testing.T) {
	valid := []string{"tenant_acme", "tenant_a1_b2", "tenant_" + string(make56('x'))}
	for _, schema := range valid {
		scope, err := ForProvisioning(schema)
		require.NoError(t, err, schema)
		assert.Equal(t, schema, scope.Schema())
	}

	invalid := []string{
		"",
		"public",
		"tenant_",
		"tenant_Acme",
		"tenant_acme-corp",
		`tenant_acme"; DROP SCHEMA public; --`,
		"tenant_" + string(make56('x')) + "x",
		"platform",
	}
	for _, schema := range invalid {
		_, err := ForProvisioning(schema)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation), schema)
	}
}

func make56(c byte) []byte {
	b := make([]byte, 56)
	for i := range b {
		b[i] = c
	}
	return b
}

func TestFromIdentity(t *testing.T) {
	tenant := testutil.NewTenantBuilder().WithSlug("acme-corp").Build()
	ident := identitytest.New(t, tenant, token.Claims{Subject: "u-1", Realm: "acme-corp"})

	scope, err := FromIdentity(ident)
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme_corp", scope.Schema())
	assert.Equal(t, `"tenant_acme_corp"`, scope.quoted())

	_, err = FromIdentity(nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func TestRunRejectsZeroScope(t *testing.T) {
	r := &Router{}
	err := r.Run(context.Background(), Scope{}, func(context.Context, Querier) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isTransient(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isTransient(errors.New("boom")))
}
