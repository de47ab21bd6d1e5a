package health

import "context"

// DBPinger checks cache storage availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// UpstreamChecker checks origin site availability.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}
