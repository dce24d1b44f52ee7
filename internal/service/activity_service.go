package service

import (
	"context"

	"github.com/andalan-id/service-center-api/internal/models"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
)

type activityStore interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)
}

// ActivityService serves the read side of the append-only activity log.
// Writes happen inside the owning services' transactions.
type ActivityService struct {
	activities  activityStore
	permissions *PermissionService
}

// NewActivityService constructs the service.
func NewActivityService(activities activityStore, permissions *PermissionService) *ActivityService {
	return &ActivityService{activities: activities, permissions: permissions}
}

// Timeline returns activity entries matching the filter, newest first.
func (s *ActivityService) Timeline(ctx context.Context, actor *models.JWTClaims, filter models.ActivityFilter) ([]models.Activity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	resolver, err := s.permissions.ResolverFor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !resolver.Can(AbilityView, nil) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view activity")
	}
	return s.activities.List(ctx, filter)
}
