// Package cron runs periodic memory maintenance: expiring idle sessions and
// backfilling embeddings for records stored while the embedder was down.
package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// ServiceName is the service registry key for the *Scheduler.
const ServiceName = "memory.scheduler"

// parser accepts standard 5-field expressions and descriptors like @hourly.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a periodic maintenance task.
type Job interface {
	// Name identifies the job in logs, status and Trigger. Unique per scheduler.
	Name() string

	// Schedule returns a 5-field cron expression, e.g. "*/10 * * * *".
	Schedule() string

	Run(ctx context.Context) error
}

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Func adapts a function to Job.
type Func struct {
	JobName string
	Expr    string
	Fn      func(ctx context.Context) error
}

var _ Job = Func{}

// Name implements Job.
func (f Func) Name() string { return f.JobName }

// Schedule implements Job.
func (f Func) Schedule() string { return f.Expr }

// Run implements Job.
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }
