package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"taskhub/internal/sentinel"
	"taskhub/internal/tenant/models"
	"taskhub/pkg/testutil"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	tenant := testutil.NewTenantBuilder().WithSlug("acme").Build()
	s.Require().NoError(s.store.Create(s.ctx, tenant))

	byID, err := s.store.FindByID(s.ctx, tenant.ID)
	s.Require().NoError(err)
	s.Equal("acme", byID.Slug)

	bySlug, err := s.store.FindBySlug(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal(tenant.ID, bySlug.ID)

	byRealm, err := s.store.FindByRealm(s.ctx, "acme")
	s.Require().NoError(err)
	s.Equal("tenant_acme", byRealm.SchemaName)
}

func (s *InMemoryStoreSuite) TestCreateRejectsDuplicateSlug() {
	s.Require().NoError(s.store.Create(s.ctx, testutil.NewTenantBuilder().WithSlug("acme").Build()))
	err := s.store.Create(s.ctx, testutil.NewTenantBuilder().WithSlug("acme").Build())
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *InMemoryStoreSuite) TestConcurrentCreateOneWins() {
	result := testutil.RunConcurrent(10, func(int) error {
		return s.store.Create(s.ctx, testutil.NewTenantBuilder().WithSlug("race").Build())
	})
	s.Equal(int32(1), result.OK)
	s.Equal(int32(9), result.Conflicts)
}

func (s *InMemoryStoreSuite) TestMissesAreNotFound() {
	_, err := s.store.FindByRealm(s.ctx, "ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(s.ctx, testutil.TestIDs.TenantID1)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, testutil.TestIDs.TenantID1), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestReturnedRecordsAreCopies() {
	tenant := testutil.NewTenantBuilder().WithSettings(map[string]any{"locale": "en"}).Build()
	s.Require().NoError(s.store.Create(s.ctx, tenant))

	got, err := s.store.FindByID(s.ctx, tenant.ID)
	s.Require().NoError(err)
	got.Status = models.TenantStatusSuspended
	got.Settings["locale"] = "fr"

	again, err := s.store.FindByID(s.ctx, tenant.ID)
	s.Require().NoError(err)
	s.Equal(models.TenantStatusActive, again.Status)
	s.Equal("en", again.Settings["locale"])
}

func (s *InMemoryStoreSuite) TestUpdateTouchesOnlyMutableFields() {
	tenant := testutil.NewTenantBuilder().Build()
	s.Require().NoError(s.store.Create(s.ctx, tenant))

	changed := *tenant
	changed.Name = "Acme Renamed"
	changed.Slug = "other"
	changed.Status = models.TenantStatusSuspended
	changed.Settings = map[string]any{"primary_color": "#fff"}
	s.Require().NoError(s.store.Update(s.ctx, &changed))

	got, err := s.store.FindByID(s.ctx, tenant.ID)
	s.Require().NoError(err)
	s.Equal("Acme Renamed", got.Name)
	s.Equal("acme", got.Slug)
	s.Equal(models.TenantStatusActive, got.Status)
	s.Equal("#fff", got.Settings["primary_color"])
}

func (s *InMemoryStoreSuite) TestListFiltersAndPages() {
	base := time.Now().Add(-time.Hour)
	for i, slug := range []string{"a1", "a2", "a3", "a4"} {
		b := testutil.NewTenantBuilder().WithSlug(slug).CreatedAt(base.Add(time.Duration(i) * time.Minute))
		if slug == "a2" {
			b = b.WithStatus(models.TenantStatusSuspended)
		}
		s.Require().NoError(s.store.Create(s.ctx, b.Build()))
	}

	all, total, err := s.store.List(s.ctx, models.ListFilter{Limit: 2})
	s.Require().NoError(err)
	s.Equal(4, total)
	s.Require().Len(all, 2)
	s.Equal("a4", all[0].Slug)
	s.Equal("a3", all[1].Slug)

	suspended := models.TenantStatusSuspended
	filtered, total, err := s.store.List(s.ctx, models.ListFilter{Status: &suspended})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("a2", filtered[0].Slug)

	past, total, err := s.store.List(s.ctx, models.ListFilter{Limit: 10, Offset: 10})
	s.Require().NoError(err)
	s.Equal(4, total)
	s.Empty(past)
}
