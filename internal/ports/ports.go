// Package ports holds the narrow interfaces shared between the HTTP layer and
// the process wiring.
package ports

import (
	"context"
	"errors"
)

// ErrUnknownJob is returned by JobRunner.RunJob for an unregistered name.
var ErrUnknownJob = errors.New("unknown job")

// HealthChecker is used to probe dependencies.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// JobRunner runs a scheduled job by name outside its schedule.
type JobRunner interface {
	RunJob(ctx context.Context, name string) error
	Jobs() []string
}
