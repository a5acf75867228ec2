package monitoring

import (
	"context"
	"time"

	"avatarcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// Pinger is any collaborator that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AddRedisCheck makes readiness depend on the repository backend.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddInferenceCheck reports the model collaborator. It is optional: the service
// keeps serving events and chat while inference is down.
func (h *HealthChecker) AddInferenceCheck(engine Pinger, interval, timeout time.Duration) {
	h.AddOptionalCheck("inference", func(ctx context.Context) (bool, error) {
		if err := engine.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddProducerCheck reports whether models are loaded. Not loaded is degraded,
// since loading happens on the first generation request.
func (h *HealthChecker) AddProducerCheck(producer ports.FrameProducer, interval, timeout time.Duration) {
	h.AddOptionalCheck("models", func(ctx context.Context) (bool, error) {
		return producer.Ready(), nil
	}, interval, timeout)
}

// GetReadinessStatus returns readiness status for load balancer
func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}
