package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	httpapi "github.com/salesdesk/crm-api/internal/interfaces/http"
)

// fakeSessions accepts exactly one token and rejects everything else.
type fakeSessions struct {
	token string
	actor entity.UserContext
}

func (f fakeSessions) Resolve(_ context.Context, token string) (*entity.UserContext, error) {
	if token != f.token {
		return nil, apperr.Authorization("unknown token")
	}
	actor := f.actor
	return &actor, nil
}

// buildTestApp wires the auth middleware in front of a probe route that
// echoes the resolved actor.
func buildTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	sessions := fakeSessions{
		token: "valid-token",
		actor: entity.UserContext{
			ID:          7,
			Role:        entity.RoleReviewer,
			Permissions: []string{entity.PermOpportunitiesRead},
		},
	}
	app.Get("/probe", httpapi.AuthMiddleware(sessions), func(c *fiber.Ctx) error {
		actor := httpapi.Actor(c)
		return c.JSON(fiber.Map{
			"id":   actor.ID,
			"role": actor.Role,
		})
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, authHeader string) (*nethttp.Response, dto.Envelope) {
	t.Helper()
	req, err := nethttp.NewRequest(nethttp.MethodGet, "/probe", nil)
	require.NoError(t, err)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var envelope dto.Envelope
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(body, &envelope)
	return resp, envelope
}

// ──────────────────────────────────────────────────────────────────────────────
// Cases
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	app := buildTestApp(t)

	resp, envelope := doRequest(t, app, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.False(t, envelope.Status)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, string(apperr.CodeAuthorization), envelope.Error.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	app := buildTestApp(t)

	for _, header := range []string{
		"valid-token",        // no scheme
		"Basic valid-token",  // wrong scheme
		"Bearer ",            // empty token
	} {
		resp, envelope := doRequest(t, app, header)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "header %q", header)
		assert.False(t, envelope.Status, "header %q", header)
	}
}

func TestAuthMiddleware_UnknownToken(t *testing.T) {
	app := buildTestApp(t)

	resp, envelope := doRequest(t, app, "Bearer expired-token")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "invalid or expired token", envelope.Error.Detail)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	app := buildTestApp(t)

	req, err := nethttp.NewRequest(nethttp.MethodGet, "/probe", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer valid-token")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, fmt.Sprintf("%v", entity.RoleReviewer), out["role"])
	assert.EqualValues(t, 7, out["id"])
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	app := buildTestApp(t)

	req, err := nethttp.NewRequest(nethttp.MethodGet, "/probe", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "bearer valid-token")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
