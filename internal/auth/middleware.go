package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketsla/sla-engine/internal/domain"
	"github.com/ticketsla/sla-engine/internal/events"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller as asserted by its token.
// Users and staff live in an external directory; the engine trusts signed claims.
type Principal struct {
	SubjectType domain.SubjectType
	SubjectID   string
	Role        *domain.StaffRole
}

// IsStaff reports whether the caller is a staff member.
func (p *Principal) IsStaff() bool {
	return p.SubjectType == domain.SubjectTypeStaff
}

// Actor converts the principal into the actor recorded on history and events.
func (p *Principal) Actor() events.Actor {
	if p.IsStaff() {
		return events.StaffActor(p.SubjectID)
	}
	return events.UserActor(p.SubjectID)
}

// AuthMiddleware validates bearer tokens and stores the principal on the request.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.SubjectType, SubjectID: claims.SubjectID()}
	switch claims.SubjectType {
	case domain.SubjectTypeUser:
	case domain.SubjectTypeStaff:
		if claims.Role == nil {
			return apperrors.NewUnauthorized("staff token without role")
		}
		principal.Role = claims.Role
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
