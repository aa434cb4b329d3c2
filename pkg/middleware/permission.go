package middleware

import (
	"errors"
	"net/http"

	"github.com/dhawalhost/rowguard/pkg/permission"
	"github.com/gin-gonic/gin"
)

// grantContextKey is an unexported key type to avoid collisions in the Gin context store.
type grantContextKey string

const grantKey grantContextKey = "permissionGrant"

// UserResolver produces the current actor for a request. A nil user is the
// anonymous actor, not an error.
type UserResolver func(c *gin.Context) (any, error)

// ResourceResolver produces the resource a request should be authorized
// against, typically by loading it from path parameters.
type ResourceResolver func(c *gin.Context) (any, error)

// StaticResource wraps a fixed value so it can be used where a
// ResourceResolver is expected.
func StaticResource(resource any) ResourceResolver {
	return func(*gin.Context) (any, error) {
		return resource, nil
	}
}

// DeniedHandler writes the response for a failed permission check.
type DeniedHandler func(c *gin.Context)

// PermissionConfig captures the knobs shared by every permission check in a
// service: how to resolve the current user, and optional substitutes for
// the grant value and the denial response.
type PermissionConfig struct {
	// CurrentUser resolves the actor for each request. Required.
	CurrentUser UserResolver
	// NewGrant builds the value stored on the context after a successful
	// check. Defaults to permission.Grant pairing user and resource.
	NewGrant func(user, resource any) any
	// Denied writes the denial response. Defaults to HTTP 403 with a
	// WWW-Authenticate: Bearer challenge.
	Denied DeniedHandler
	// Observe, when set, is called with every decision outcome. Used to
	// feed the authorization decision metrics.
	Observe func(permission string, allowed bool)
}

// Permissions is a configured permission-check factory. Configure it once
// with the service-wide user resolver, then derive one handler per route
// with Require.
type Permissions struct {
	cfg PermissionConfig
}

// ConfigurePermissions validates the config and returns the factory.
func ConfigurePermissions(cfg PermissionConfig) (*Permissions, error) {
	if cfg.CurrentUser == nil {
		return nil, errors.New("permission config requires a CurrentUser resolver")
	}
	if cfg.NewGrant == nil {
		cfg.NewGrant = func(user, resource any) any {
			return permission.Grant{User: user, Resource: resource}
		}
	}
	if cfg.Denied == nil {
		cfg.Denied = func(c *gin.Context) {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
			})
		}
	}
	return &Permissions{cfg: cfg}, nil
}

// Require returns a Gin handler that resolves the current user and the
// resource, checks the named permission, and on success stores a grant on
// the context for downstream handlers. On denial the configured denial
// handler aborts the request. Resolver errors abort the chain: a resolver
// that already wrote a response is left untouched, anything else surfaces
// as a 500 with the error attached to the context.
func (p *Permissions) Require(perm string, resource ResourceResolver) gin.HandlerFunc {
	if resource == nil {
		resource = StaticResource(nil)
	}
	return func(c *gin.Context) {
		user, err := p.cfg.CurrentUser(c)
		if err != nil {
			p.resolverError(c, err)
			return
		}

		res, err := resource(c)
		if err != nil {
			p.resolverError(c, err)
			return
		}

		allowed := permission.HasPermission(user, perm, res)
		if p.cfg.Observe != nil {
			p.cfg.Observe(perm, allowed)
		}
		if !allowed {
			p.cfg.Denied(c)
			return
		}

		c.Set(string(grantKey), p.cfg.NewGrant(user, res))
		c.Next()
	}
}

func (p *Permissions) resolverError(c *gin.Context, err error) {
	if c.IsAborted() {
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// GrantFromGinContext returns the default grant stored by Require.
func GrantFromGinContext(c *gin.Context) (permission.Grant, error) {
	value, ok := GrantValueFromGinContext(c)
	if !ok {
		return permission.Grant{}, errors.New("grant not found in context")
	}
	grant, ok := value.(permission.Grant)
	if !ok {
		return permission.Grant{}, errors.New("grant in context has a substituted type")
	}
	return grant, nil
}

// GrantValueFromGinContext returns the raw grant value, for services that
// substitute their own grant type via PermissionConfig.NewGrant.
func GrantValueFromGinContext(c *gin.Context) (any, bool) {
	return c.Get(string(grantKey))
}
