package stageexec

import "context"

// Health summarizes the readiness of a step action.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// HealthChecker is implemented by actions that can report readiness before
// they run.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}
