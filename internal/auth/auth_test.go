package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsla/sla-engine/internal/domain"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

func newTestApp(tokens *TokenManager, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	handlers := append([]fiber.Handler{NewAuthMiddleware(tokens).Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(string(principal.SubjectType) + ":" + principal.SubjectID)
	})
	app.Get("/", handlers...)
	return app
}

func call(t *testing.T, app *fiber.App, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-sla", 5)
	role := domain.StaffRoleAgent
	token, exp, err := tm.GenerateToken("s-1", domain.SubjectTypeStaff, &role)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.SubjectID())
	assert.Equal(t, domain.SubjectTypeStaff, claims.SubjectType)
	require.NotNil(t, claims.Role)
	assert.Equal(t, domain.StaffRoleAgent, *claims.Role)
}

func TestParseTokenRejectsForeignSecretIssuerAndExpiry(t *testing.T) {
	issuer := NewTokenManager("one", "ticket-sla", 5)
	token, _, err := issuer.GenerateToken("u-1", domain.SubjectTypeUser, nil)
	require.NoError(t, err)

	_, err = NewTokenManager("two", "ticket-sla", 5).ParseToken(token)
	assert.Error(t, err)

	_, err = NewTokenManager("one", "billing", 5).ParseToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	late := NewTokenManager("one", "ticket-sla", 5)
	late.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = late.ParseToken(token)
	assert.Error(t, err)
}

func TestMiddlewareAuthenticates(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-sla", 5)
	app := newTestApp(tm)

	status, _ := call(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	token, _, err := tm.GenerateToken("u-9", domain.SubjectTypeUser, nil)
	require.NoError(t, err)
	status, body := call(t, app, token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "USER:u-9", body)
}

func TestMiddlewareRejectsStaffWithoutRole(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-sla", 5)
	token, _, err := tm.GenerateToken("s-1", domain.SubjectTypeStaff, nil)
	require.NoError(t, err)
	status, _ := call(t, newTestApp(tm), token)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRequireStaffRole(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-sla", 5)
	app := newTestApp(tm, RequireStaffRole(domain.StaffRoleAdmin))

	user, _, _ := tm.GenerateToken("u-1", domain.SubjectTypeUser, nil)
	agentRole := domain.StaffRoleAgent
	agentTok, _, _ := tm.GenerateToken("s-1", domain.SubjectTypeStaff, &agentRole)
	adminRole := domain.StaffRoleAdmin
	adminTok, _, _ := tm.GenerateToken("s-2", domain.SubjectTypeStaff, &adminRole)

	status, _ := call(t, app, user)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = call(t, app, agentTok)
	assert.Equal(t, http.StatusForbidden, status)
	status, body := call(t, app, adminTok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "STAFF:s-2", body)
}

func TestPrincipalActor(t *testing.T) {
	staff := &Principal{SubjectType: domain.SubjectTypeStaff, SubjectID: "s-1"}
	assert.Equal(t, domain.SubjectTypeStaff, staff.Actor().Type)
	assert.Equal(t, "s-1", *staff.Actor().ID())

	user := &Principal{SubjectType: domain.SubjectTypeUser, SubjectID: "u-1"}
	assert.Equal(t, domain.SubjectTypeUser, user.Actor().Type)
	assert.Equal(t, "u-1", *user.Actor().ID())
}
