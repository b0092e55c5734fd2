//go:build integration

package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"taskhub/internal/sentinel"
	"taskhub/internal/tenant/models"
	tenantstore "taskhub/internal/tenant/store/tenant"
	"taskhub/pkg/testutil"
	"taskhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *tenantstore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = tenantstore.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncatePlatform(context.Background()))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	tenant := testutil.NewTenantBuilder().
		WithSlug("acme").
		WithStatus(models.TenantStatusPending).
		WithSettings(map[string]any{"locale": "de", "logo_url": "https://x"}).
		Build()
	s.Require().NoError(s.store.Create(ctx, tenant))

	got, err := s.store.FindByRealm(ctx, "acme")
	s.Require().NoError(err)
	s.Equal(tenant.ID, got.ID)
	s.Equal("tenant_acme", got.SchemaName)
	s.Equal(models.TenantStatusPending, got.Status)
	s.Equal("de", got.Settings["locale"])
	s.WithinDuration(tenant.CreatedAt, got.CreatedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestUniqueSlug() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, testutil.NewTenantBuilder().WithSlug("acme").Build()))
	err := s.store.Create(ctx, testutil.NewTenantBuilder().WithSlug("acme").Build())
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *PostgresStoreSuite) TestStatusAndDelete() {
	ctx := context.Background()
	tenant := testutil.NewTenantBuilder().Build()
	s.Require().NoError(s.store.Create(ctx, tenant))

	s.Require().NoError(s.store.UpdateStatus(ctx, tenant.ID, models.TenantStatusSuspended, time.Now()))
	got, err := s.store.FindByID(ctx, tenant.ID)
	s.Require().NoError(err)
	s.Equal(models.TenantStatusSuspended, got.Status)

	s.Require().NoError(s.store.Delete(ctx, tenant.ID))
	_, err = s.store.FindByID(ctx, tenant.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, tenant.ID), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestList() {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)
	for i, slug := range []string{"one", "two", "three"} {
		s.Require().NoError(s.store.Create(ctx, testutil.NewTenantBuilder().
			WithSlug(slug).
			CreatedAt(base.Add(time.Duration(i)*time.Minute)).
			Build()))
	}

	page, total, err := s.store.List(ctx, models.ListFilter{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(page, 2)
	s.Equal("two", page[0].Slug)
	s.Equal("one", page[1].Slug)
}
