// Package cron runs periodic maintenance jobs: evicting finished tasks and
// checking that evidence sources are still in place.
package cron

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Job is a periodic maintenance task.
type Job interface {
	// Name identifies the job in logs and must be unique per scheduler.
	Name() string

	// Schedule is a standard 5-field cron expression.
	Schedule() string

	// Run performs one pass. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Service is the name under which the running scheduler is published.
const Service = "cron.scheduler"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule checks a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}
