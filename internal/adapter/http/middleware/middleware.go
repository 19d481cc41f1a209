package middleware

import (
	"context"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
)

type (
	AuthService interface {
		RoleCheck(ctx context.Context, token string) (*models.User, error)
	}

	Middleware struct {
		auth AuthService
		log  logger.Logger
	}
)

func NewMiddleware(auth AuthService, log logger.Logger) *Middleware {
	return &Middleware{
		auth: auth,
		log:  log,
	}
}
