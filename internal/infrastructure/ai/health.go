package ai

import (
	"context"

	"github.com/kbcanvas/kbcanvas/pkg/healthcheck"
)

// BreakerState is implemented by every Breaker regardless of result type
type BreakerState interface {
	Name() string
	State() string
}

// BreakerChecker reports an upstream as degraded while its breaker is not
// closed. Upstream trouble never makes the instance itself unhealthy.
func BreakerChecker(b BreakerState) *healthcheck.CustomChecker {
	return healthcheck.NewCustomChecker(b.Name(), func(ctx context.Context) (healthcheck.Status, string, interface{}) {
		state := b.State()
		metadata := map[string]string{"breaker": state}

		if state != "closed" {
			return healthcheck.StatusDegraded, "circuit breaker " + state, metadata
		}
		return healthcheck.StatusHealthy, "", metadata
	})
}
