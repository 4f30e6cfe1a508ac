package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// BuildInfo identifies the running binary on health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct the system service.
type SystemServiceDeps struct {
	Health      repositories.HealthRepository
	Version     string
	Environment string
	StartedAt   time.Time
	Clock       func() time.Time
}

type systemService struct {
	health      repositories.HealthRepository
	version     string
	environment string
	startedAt   time.Time
	clock       func() time.Time
}

// NewSystemService wires dependencies into a concrete SystemService implementation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = clock().UTC()
	}

	return &systemService{
		health:      deps.Health,
		version:     deps.Version,
		environment: deps.Environment,
		startedAt:   startedAt,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{
			Status:      domain.HealthStatusError,
			GeneratedAt: s.clock(),
		}, err
	}

	now := s.clock()
	report.Version = s.version
	report.Environment = s.environment
	report.Uptime = now.Sub(s.startedAt)
	report.GeneratedAt = now
	return report, nil
}
