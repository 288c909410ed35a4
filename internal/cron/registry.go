package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Job is one unit of maintenance work. Name labels its logs and metrics.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is the ordered set of jobs a cycle runs. Names are unique.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Register appends jobs in order. It stops at the first nil, unnamed or
// duplicate job and leaves earlier ones registered.
func (r *Registry) Register(jobs ...Job) error {
	for _, job := range jobs {
		if job == nil {
			return errors.New("cron registry: nil job")
		}
		name := job.Name()
		if name == "" {
			return errors.New("cron registry: job name is required")
		}
		if _, dup := r.names[name]; dup {
			return fmt.Errorf("cron registry: job %q already registered", name)
		}
		r.names[name] = struct{}{}
		r.jobs = append(r.jobs, job)
	}
	return nil
}

func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}

func (r *Registry) Len() int {
	return len(r.jobs)
}
