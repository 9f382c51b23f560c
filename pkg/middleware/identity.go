package middleware

import (
	"eventix/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Role is the closed role enumeration. Anything else from the gateway is
// rejected up front.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleOrganizer Role = "organizer"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleOrganizer
}

// Principal is the authenticated identity attached to every request by the
// gateway in front of this service.
type Principal struct {
	UserID string
	Role   Role
}

const principalKey = "principal"

// Identity extracts the authenticated principal from the trusted gateway
// headers. Token verification happens upstream; this service only enforces
// ownership and role guards.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		role := Role(c.GetHeader("X-User-Role"))

		if userID == "" || !role.Valid() {
			c.AbortWithStatusJSON(errutil.StatusUnauthorized.HTTPStatus(), errutil.BaseError{
				Code:    errutil.StatusUnauthorized,
				Message: "missing or invalid identity",
			}.JSON())
			return
		}

		c.Set(principalKey, Principal{UserID: userID, Role: role})
		c.Next()
	}
}

// RequireRole aborts the request unless the principal carries the given role.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || p.Role != role {
			c.AbortWithStatusJSON(errutil.StatusForbidden.HTTPStatus(), errutil.BaseError{
				Code:    errutil.StatusForbidden,
				Message: "insufficient role",
			}.JSON())
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
