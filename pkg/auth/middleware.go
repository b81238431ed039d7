package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"livechat/pkg/response"
)

const principalKey = "chat_principal"

// SessionValidator is the validate(token) capability the middleware needs.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (Principal, error)
}

// RequireRole rejects requests without a valid bearer token for one of roles.
func RequireRole(v SessionValidator, roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.SendError(c, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}

		p, err := v.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				response.SendError(c, http.StatusUnauthorized, ErrInvalidToken.Error())
				return
			}
			response.SendError(c, http.StatusInternalServerError, "failed to validate session")
			return
		}

		if !hasRole(p.Role, roles) {
			response.SendError(c, http.StatusForbidden, "forbidden: role not allowed")
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by RequireRole.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func hasRole(r Role, allowed []Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}
