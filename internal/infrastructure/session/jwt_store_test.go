package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/infrastructure/session"
	"github.com/salesdesk/crm-api/pkg/jwt"
)

const testSecret = "unit-test-secret"

func signedToken(t *testing.T, userID int64, role string, perms []string, expMinutes int) string {
	t.Helper()
	token, err := jwt.Generate(testSecret, userID, role, perms, "sess-1", "crm-api-test", expMinutes)
	require.NoError(t, err)
	return token
}

// ──────────────────────────────────────────────────────────────────────────────
// JWT resolution
// ──────────────────────────────────────────────────────────────────────────────

func TestResolve_ValidToken(t *testing.T) {
	store := session.NewJWTStore(testSecret, false)
	token := signedToken(t, 42, "Reviewer",
		[]string{entity.PermOpportunitiesRead, entity.PermOpportunitiesWrite}, 60)

	actor, err := store.Resolve(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, int64(42), actor.ID)
	assert.Equal(t, entity.RoleReviewer, actor.Role)
	assert.True(t, actor.Has(entity.PermOpportunitiesWrite))
	assert.Equal(t, "sess-1", actor.SessionID)
}

func TestResolve_EmptyToken(t *testing.T) {
	store := session.NewJWTStore(testSecret, false)
	_, err := store.Resolve(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAuthorization))
}

func TestResolve_ExpiredToken(t *testing.T) {
	store := session.NewJWTStore(testSecret, false)
	token := signedToken(t, 42, "Sales", nil, -5)

	_, err := store.Resolve(context.Background(), token)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAuthorization))
}

func TestResolve_WrongSecret(t *testing.T) {
	token, err := jwt.Generate("another-secret", 42, "Admin", nil, "sess-1", "crm-api-test", 60)
	require.NoError(t, err)

	store := session.NewJWTStore(testSecret, false)
	_, err = store.Resolve(context.Background(), token)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAuthorization))
}

func TestResolve_Garbage(t *testing.T) {
	store := session.NewJWTStore(testSecret, false)
	_, err := store.Resolve(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAuthorization))
}

// ──────────────────────────────────────────────────────────────────────────────
// Test-mode tokens
// ──────────────────────────────────────────────────────────────────────────────

func TestResolve_SyntheticTokenOnlyInTestMode(t *testing.T) {
	// Test mode on: a "test_" token resolves to a synthetic admin.
	store := session.NewJWTStore(testSecret, true)
	actor, err := store.Resolve(context.Background(), "test_e2e")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, actor.Role)
	assert.Equal(t, "test_e2e", actor.SessionID)

	// Test mode off: the same token is just an invalid JWT.
	store = session.NewJWTStore(testSecret, false)
	_, err = store.Resolve(context.Background(), "test_e2e")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAuthorization))
}
