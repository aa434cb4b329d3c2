package token

import (
	"net/http"
	"strings"

	"github.com/dhawalhost/rowguard/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// CurrentUser returns a user resolver backed by bearer tokens. A request
// without an Authorization header resolves to the anonymous actor, so
// Everyone-granted permissions work without credentials. A header that is
// present but malformed or carries an invalid token is a fault: the
// resolver writes a 401 and stops the chain.
func CurrentUser(svc Service) middleware.UserResolver {
	return func(c *gin.Context) (any, error) {
		header := c.GetHeader("Authorization")
		if header == "" {
			return nil, nil
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unsupported authorization scheme"})
			return nil, ErrInvalidToken
		}

		identity, err := svc.Verify(raw)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return nil, err
		}
		return identity, nil
	}
}
