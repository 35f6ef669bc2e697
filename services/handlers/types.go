package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/zawadi-market/guard_api/dto"
)

type TrapServiceInterface interface {
	Generate(ctx context.Context) (string, error)
	Validate(ctx context.Context, token string) bool
	LooksLikeTrapField(name string) bool
}

type AbuseServiceInterface interface {
	RecordValidityViolation(ctx context.Context, c *fiber.Ctx, isInvalid bool, reason string) bool
	IsBanned(ctx context.Context, identity string) bool
	Status(ctx context.Context, identity string) (*dto.BanStatusResponse, error)
	Unban(ctx context.Context, identity string) error
}

type RateLimitServiceInterface interface {
	ConfigList() []dto.RateLimitConfigInfo
}

type IncidentStoreInterface interface {
	ListIncidents(page, limit int) (*dto.IncidentListResponse, error)
	IncidentStats() (*dto.AbuseStatsResponse, error)
}
