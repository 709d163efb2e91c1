package crawl

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron validates a standard five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return sched, nil
}

// Due reports whether the target's schedule has elapsed at now. The
// schedule anchors on the last crawl, falling back to creation time for
// targets that never ran. Disabled or malformed targets are never due.
func Due(target Target, now time.Time) bool {
	if !target.Enabled {
		return false
	}
	sched, err := ParseCron(target.CronExpression)
	if err != nil {
		return false
	}
	anchor := target.CreatedAt
	if target.LastCrawled != nil {
		anchor = *target.LastCrawled
	}
	return !sched.Next(anchor).After(now)
}
