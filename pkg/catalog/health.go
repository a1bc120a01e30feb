package catalog

import (
	"context"
	"strings"
	"time"
)

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport summarizes dependency connectivity. Component values are "ok" or an error message.
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Health checks every dependency. The database and the fallback content
// backend are required; the primary backend, ledger and extra checks only degrade.
func (c *Catalog) Health(ctx context.Context) HealthReport {
	r := HealthReport{Status: StatusHealthy, Components: make(map[string]string), CheckedAt: c.clock().UTC()}

	set := func(name string, err error, required bool) {
		if err == nil {
			r.Components[name] = "ok"
			return
		}
		r.Components[name] = err.Error()
		switch {
		case required:
			r.Status = StatusUnhealthy
		case r.Status == StatusHealthy:
			r.Status = StatusDegraded
		}
	}

	set("database", c.records.Ping(ctx), true)
	for name, err := range c.content.Health(ctx) {
		set("content."+name, err, strings.HasPrefix(name, "fallback:"))
	}
	set("ledger", c.ledger.Ping(ctx), false)
	for name, check := range c.checks {
		set(name, check(ctx), false)
	}
	return r
}
