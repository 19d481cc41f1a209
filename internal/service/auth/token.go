package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpToken     = errors.New("token expired")
)

// TokenService issues and validates the JWTs that every long-lived
// connection and REST request must present. User accounts themselves are
// managed by the administration subsystem; this service only understands
// the claims it places in a token.
type TokenService struct {
	secret   string
	tokenTTL time.Duration
}

func NewTokenService(secret string, tokenTTL time.Duration) *TokenService {
	return &TokenService{
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

// Issue signs a token for the given identity. Used by provisioning tooling
// and tests; production tokens normally arrive from the auth subsystem.
func (s *TokenService) Issue(user *models.User) (string, error) {
	if user == nil {
		return "", errors.New("user is nil")
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"jti":     uuid.New().String(),
		"user_id": user.ID.String(),
		"role":    user.Role.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(s.tokenTTL).Unix(),
	}
	if user.OwnerID != (uuid.UUID{}) {
		claims["owner_id"] = user.OwnerID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// Validate parses and verifies a token string, returning the identity it
// carries. Any parse, signature or claim problem maps to ErrInvalidToken.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.User, error) {
	ctx = wrap.WithAction(ctx, "validate_token")

	parsedToken, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return []byte(s.secret), nil
	})
	if err != nil || !parsedToken.Valid {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	mc, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	userIDStr, _ := mc["user_id"].(string)
	if userIDStr == "" {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid or missing 'user_id' in token claims"))
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid 'user_id' in token claims"))
	}

	roleStr, _ := mc["role"].(string)
	role := types.UserRole(roleStr)
	switch role {
	case types.RoleAdmin, types.RoleOwner, types.RoleVehicle, types.RolePassenger:
	default:
		return nil, wrap.Error(ctx, fmt.Errorf("invalid 'role' in token claims"))
	}

	user := &models.User{
		ID:   userID,
		Role: role,
	}

	if ownerStr, _ := mc["owner_id"].(string); ownerStr != "" {
		ownerID, err := uuid.Parse(ownerStr)
		if err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("invalid 'owner_id' in token claims"))
		}
		user.OwnerID = ownerID
	}

	return user, nil
}

// RoleCheck satisfies the middleware's AuthService interface.
func (s *TokenService) RoleCheck(ctx context.Context, token string) (*models.User, error) {
	return s.Validate(ctx, token)
}
