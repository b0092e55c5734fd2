// Package keycloak implements the provisioning identity admin port against
// the Keycloak admin REST API.
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Nerzal/gocloak/v13"

	"taskhub/internal/platform/config"
	"taskhub/internal/provisioning/models"
	"taskhub/pkg/platform/circuit"
)

// ErrUnavailable is returned without calling Keycloak while the circuit is open.
var ErrUnavailable = errors.New("identity provider unavailable")

type Client struct {
	gc              *gocloak.GoCloak
	adminRealm      string
	adminUser       string
	adminPassword   string
	appClientID     string
	appRedirectURIs []string
	appWebOrigins   []string
	breaker         *circuit.Breaker
	logger          *slog.Logger
	now             func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type Option func(*Client)

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func New(cfg config.Keycloak, logger *slog.Logger, opts ...Option) *Client {
	gc := gocloak.NewClient(cfg.BaseURL)
	if cfg.RequestTimeout > 0 {
		gc.RestyClient().SetTimeout(cfg.RequestTimeout)
	}
	c := &Client{
		gc:              gc,
		adminRealm:      cfg.AdminRealm,
		adminUser:       cfg.AdminUser,
		adminPassword:   cfg.AdminPassword,
		appClientID:     cfg.AppClientID,
		appRedirectURIs: cfg.AppRedirectURIs,
		appWebOrigins:   cfg.AppWebOrigins,
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New("keycloak")
	}
	return c
}

// Breaker exposes the circuit for readiness reporting.
func (c *Client) Breaker() *circuit.Breaker { return c.breaker }

func (c *Client) EnsureRealm(ctx context.Context, realm, displayName string) error {
	return c.call(ctx, "create realm", func(token string) error {
		_, err := c.gc.CreateRealm(ctx, token, gocloak.RealmRepresentation{
			Realm:                  gocloak.StringP(realm),
			DisplayName:            gocloak.StringP(displayName),
			Enabled:                gocloak.BoolP(true),
			RegistrationAllowed:    gocloak.BoolP(false),
			ResetPasswordAllowed:   gocloak.BoolP(true),
			LoginWithEmailAllowed:  gocloak.BoolP(true),
			DuplicateEmailsAllowed: gocloak.BoolP(false),
			SslRequired:            gocloak.StringP("external"),
		})
		if statusOf(err) == http.StatusConflict {
			c.logger.InfoContext(ctx, "realm already exists", "realm", realm)
			return nil
		}
		return err
	})
}

// DeleteRealm treats a missing realm as deleted.
func (c *Client) DeleteRealm(ctx context.Context, realm string) error {
	return c.call(ctx, "delete realm", func(token string) error {
		err := c.gc.DeleteRealm(ctx, token, realm)
		if statusOf(err) == http.StatusNotFound {
			return nil
		}
		return err
	})
}

func (c *Client) EnsureRealmRoles(ctx context.Context, realm string, roles []string) error {
	return c.call(ctx, "create realm roles", func(token string) error {
		for _, name := range roles {
			_, err := c.gc.CreateRealmRole(ctx, token, realm, gocloak.Role{
				Name:        gocloak.StringP(name),
				Description: gocloak.StringP(roleDescriptions[name]),
			})
			if err != nil && statusOf(err) != http.StatusConflict {
				return fmt.Errorf("role %s: %w", name, err)
			}
		}
		return nil
	})
}

var roleDescriptions = map[string]string{
	"admin":   "Tenant administrator",
	"manager": "Project manager",
	"member":  "Team member",
}

// EnsureAppClient creates the public PKCE client the web app signs in with
// and returns its internal id.
func (c *Client) EnsureAppClient(ctx context.Context, realm string) (string, error) {
	var clientID string
	err := c.call(ctx, "create app client", func(token string) error {
		existing, err := c.gc.GetClients(ctx, token, realm, gocloak.GetClientsParams{
			ClientID: gocloak.StringP(c.appClientID),
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 && existing[0].ID != nil {
			clientID = *existing[0].ID
			return nil
		}

		redirectURIs := c.appRedirectURIs
		webOrigins := append([]string{"+"}, c.appWebOrigins...)
		clientID, err = c.gc.CreateClient(ctx, token, realm, gocloak.Client{
			ClientID:                  gocloak.StringP(c.appClientID),
			Enabled:                   gocloak.BoolP(true),
			PublicClient:              gocloak.BoolP(true),
			DirectAccessGrantsEnabled: gocloak.BoolP(true),
			StandardFlowEnabled:       gocloak.BoolP(true),
			ImplicitFlowEnabled:       gocloak.BoolP(false),
			RedirectURIs:              &redirectURIs,
			WebOrigins:                &webOrigins,
			Protocol:                  gocloak.StringP("openid-connect"),
			Attributes: &map[string]string{
				"pkce.code.challenge.method": "S256",
			},
		})
		return err
	})
	return clientID, err
}

// EnsureUser returns the id of the account with the user's email, creating
// it when absent. The password is set either way.
func (c *Client) EnsureUser(ctx context.Context, realm string, user models.Account) (string, error) {
	var userID string
	err := c.call(ctx, "create user", func(token string) error {
		existing, err := c.gc.GetUsers(ctx, token, realm, gocloak.GetUsersParams{
			Email: gocloak.StringP(user.Email),
			Exact: gocloak.BoolP(true),
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 && existing[0].ID != nil {
			userID = *existing[0].ID
		} else {
			userID, err = c.gc.CreateUser(ctx, token, realm, gocloak.User{
				Username:      gocloak.StringP(user.Email),
				Email:         gocloak.StringP(user.Email),
				FirstName:     gocloak.StringP(user.FirstName),
				LastName:      gocloak.StringP(user.LastName),
				Enabled:       gocloak.BoolP(true),
				EmailVerified: gocloak.BoolP(true),
			})
			if err != nil {
				return err
			}
		}
		return c.gc.SetPassword(ctx, token, userID, realm, user.Password, false)
	})
	return userID, err
}

func (c *Client) AssignRealmRoles(ctx context.Context, realm, userID string, roles []string) error {
	return c.call(ctx, "assign realm roles", func(token string) error {
		resolved := make([]gocloak.Role, 0, len(roles))
		for _, name := range roles {
			role, err := c.gc.GetRealmRole(ctx, token, realm, name)
			if err != nil {
				return fmt.Errorf("role %s: %w", name, err)
			}
			resolved = append(resolved, *role)
		}
		return c.gc.AddRealmRoleToUser(ctx, token, realm, userID, resolved)
	})
}

// RemoveRealmRoles drops role mappings from a user. Roles the realm does not
// define are skipped.
func (c *Client) RemoveRealmRoles(ctx context.Context, realm, userID string, roles []string) error {
	return c.call(ctx, "remove realm roles", func(token string) error {
		resolved := make([]gocloak.Role, 0, len(roles))
		for _, name := range roles {
			role, err := c.gc.GetRealmRole(ctx, token, realm, name)
			if statusOf(err) == http.StatusNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("role %s: %w", name, err)
			}
			resolved = append(resolved, *role)
		}
		if len(resolved) == 0 {
			return nil
		}
		return c.gc.DeleteRealmRoleFromUser(ctx, token, realm, userID, resolved)
	})
}

// FindUserByEmail returns the id of the account with the email, or "" when
// the realm has none.
func (c *Client) FindUserByEmail(ctx context.Context, realm, email string) (string, error) {
	var userID string
	err := c.call(ctx, "find user", func(token string) error {
		users, err := c.gc.GetUsers(ctx, token, realm, gocloak.GetUsersParams{
			Email: gocloak.StringP(email),
			Exact: gocloak.BoolP(true),
		})
		if err != nil {
			return err
		}
		if len(users) > 0 && users[0].ID != nil {
			userID = *users[0].ID
		}
		return nil
	})
	return userID, err
}

// DeleteUser treats a missing account as deleted.
func (c *Client) DeleteUser(ctx context.Context, realm, userID string) error {
	return c.call(ctx, "delete user", func(token string) error {
		err := c.gc.DeleteUser(ctx, token, realm, userID)
		if statusOf(err) == http.StatusNotFound {
			return nil
		}
		return err
	})
}

// call runs fn with an admin token. A 401 drops the cached token and retries
// once. Only transport errors and 5xx responses count against the breaker.
func (c *Client) call(ctx context.Context, op string, fn func(token string) error) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}

	err := c.withToken(ctx, fn)
	if statusOf(err) == http.StatusUnauthorized {
		c.invalidateToken()
		err = c.withToken(ctx, fn)
	}

	if unavailable(err) {
		c.breaker.Failure()
	} else {
		c.breaker.Success()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) withToken(ctx context.Context, fn func(token string) error) error {
	token, err := c.adminToken(ctx)
	if err != nil {
		return fmt.Errorf("admin login: %w", err)
	}
	return fn(token)
}

// adminToken logs in to the admin realm and caches the token until shortly
// before it expires.
func (c *Client) adminToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	jwt, err := c.gc.LoginAdmin(ctx, c.adminUser, c.adminPassword, c.adminRealm)
	if err != nil {
		return "", err
	}
	c.token = jwt.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(jwt.ExpiresIn)*time.Second - 10*time.Second)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

func statusOf(err error) int {
	var apiErr *gocloak.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func unavailable(err error) bool {
	if err == nil {
		return false
	}
	status := statusOf(err)
	return status == 0 || status >= http.StatusInternalServerError
}
