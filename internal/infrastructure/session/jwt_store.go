// Package session resolves bearer tokens to user contexts. Production tokens
// are signed JWTs; test mode additionally accepts "test_" tokens so the E2E
// suites can run without an identity provider.
package session

import (
	"context"
	"strings"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/pkg/jwt"
)

var _ opportunity.SessionStore = (*JWTStore)(nil)

// JWTStore validates JWT bearer tokens locally; role and permissions ride in
// the claims, so no database round trip is needed.
type JWTStore struct {
	secret   string
	testMode bool
}

// NewJWTStore builds the store. testMode enables the synthetic "test_"
// tokens and must stay off in production.
func NewJWTStore(secret string, testMode bool) *JWTStore {
	return &JWTStore{secret: secret, testMode: testMode}
}

// Resolve turns a bearer token into a UserContext. Unknown, expired or
// malformed tokens fail with an authorization error.
func (s *JWTStore) Resolve(ctx context.Context, token string) (*entity.UserContext, error) {
	if token == "" {
		return nil, apperr.Authorization("missing bearer token")
	}
	if s.testMode && strings.HasPrefix(token, "test_") {
		return &entity.UserContext{
			ID:   1,
			Role: entity.RoleAdmin,
			Permissions: []string{
				entity.PermOpportunitiesRead,
				entity.PermOpportunitiesWrite,
			},
			SessionID: token,
		}, nil
	}

	claims, err := jwt.Parse(s.secret, token)
	if err != nil {
		return nil, apperr.Authorization("invalid or expired token")
	}
	return &entity.UserContext{
		ID:          claims.UserID,
		Role:        entity.Role(claims.Role),
		Permissions: claims.Permissions,
		SessionID:   claims.SessionID,
	}, nil
}
