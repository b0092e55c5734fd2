//go:build integration

package provisioning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	memberservice "taskhub/internal/members/service"
	"taskhub/internal/partition"
	"taskhub/internal/provisioning/lock"
	"taskhub/internal/provisioning/mocks"
	"taskhub/internal/tenant/store/cache"
	tenantstore "taskhub/internal/tenant/store/tenant"
	"taskhub/pkg/testutil/containers"
)

type ProvisionerIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	router   *partition.Router
	tenants  *cache.RealmCache
	ctrl     *gomock.Controller
	idp      *mocks.MockIdentityAdmin
	p        *Provisioner
}

func TestProvisionerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProvisionerIntegrationSuite))
}

func (s *ProvisionerIntegrationSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := s.postgres.NewPool(s.T(), 4, partition.ConfigurePool(logger))
	s.router = partition.NewRouter(pool, logger)

	var err error
	s.tenants, err = cache.New(tenantstore.NewPostgres(pool), time.Minute, 100)
	s.Require().NoError(err)
	s.T().Cleanup(s.tenants.Close)
}

func (s *ProvisionerIntegrationSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncatePlatform(ctx))
	s.Require().NoError(s.postgres.DropTenantSchemas(ctx))

	s.ctrl = gomock.NewController(s.T())
	s.idp = mocks.NewMockIdentityAdmin(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	members := memberservice.New(s.router, nil, &auditLog{}, logger)
	s.p = New(s.tenants, s.router, s.idp, members, lock.NewLocal(), &auditLog{}, logger)
}

func (s *ProvisionerIntegrationSuite) TestCreateBuildsPartitionAndMirrorsAdmin() {
	ctx := context.Background()
	s.idp.EXPECT().EnsureRealm(gomock.Any(), "globex", "Globex").Return(nil)
	s.idp.EXPECT().EnsureRealmRoles(gomock.Any(), "globex", gomock.Any()).Return(nil)
	s.idp.EXPECT().EnsureAppClient(gomock.Any(), "globex").Return("client-1", nil)
	s.idp.EXPECT().EnsureUser(gomock.Any(), "globex", gomock.Any()).Return("kc-admin-1", nil)
	s.idp.EXPECT().AssignRealmRoles(gomock.Any(), "globex", "kc-admin-1", gomock.Any()).Return(nil)

	tenant, err := s.p.Create(ctx, request("globex"))
	s.Require().NoError(err)

	exists, err := s.postgres.SchemaExists(ctx, "tenant_globex")
	s.Require().NoError(err)
	s.True(exists)

	found, err := s.tenants.FindByRealm(ctx, "globex")
	s.Require().NoError(err)
	s.Equal(tenant.ID, found.ID)
	s.True(found.IsActive())

	scope, err := partition.ForTenant(found)
	s.Require().NoError(err)
	var email string
	s.Require().NoError(s.router.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		return q.QueryRow(ctx, `SELECT email FROM users WHERE idp_user_id = 'kc-admin-1'`).Scan(&email)
	}))
	s.Equal("hank@globex.io", email)
}

func (s *ProvisionerIntegrationSuite) TestRealmFailureLeavesNoResidue() {
	ctx := context.Background()
	s.idp.EXPECT().EnsureRealm(gomock.Any(), "globex", "Globex").Return(errors.New("503 service unavailable"))
	s.idp.EXPECT().DeleteRealm(gomock.Any(), "globex").Return(nil)

	_, err := s.p.Create(ctx, request("globex"))
	s.Require().Error(err)

	exists, err := s.postgres.SchemaExists(ctx, "tenant_globex")
	s.Require().NoError(err)
	s.False(exists)

	_, err = s.tenants.FindBySlug(ctx, "globex")
	s.Error(err)
}

func (s *ProvisionerIntegrationSuite) TestDeleteDropsPartition() {
	ctx := context.Background()
	s.idp.EXPECT().EnsureRealm(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.idp.EXPECT().EnsureRealmRoles(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.idp.EXPECT().EnsureAppClient(gomock.Any(), gomock.Any()).Return("client-1", nil)
	s.idp.EXPECT().EnsureUser(gomock.Any(), gomock.Any(), gomock.Any()).Return("kc-admin-1", nil)
	s.idp.EXPECT().AssignRealmRoles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.idp.EXPECT().DeleteRealm(gomock.Any(), "globex").Return(nil)

	tenant, err := s.p.Create(ctx, request("globex"))
	s.Require().NoError(err)
	// Warm the realm cache so deletion has something to evict.
	_, err = s.tenants.FindByRealm(ctx, "globex")
	s.Require().NoError(err)

	s.Require().NoError(s.p.Delete(ctx, tenant.ID))

	exists, err := s.postgres.SchemaExists(ctx, "tenant_globex")
	s.Require().NoError(err)
	s.False(exists)
	_, err = s.tenants.FindByRealm(ctx, "globex")
	s.Error(err)
}
