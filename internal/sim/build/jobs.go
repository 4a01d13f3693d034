package build

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"blockcraft.dev/internal/sim/world"
)

// Job is an animated build running in its own goroutine.
type Job struct {
	ID        string
	Structure string
	Origin    world.Vec3i
	Started   time.Time

	cancel context.CancelFunc
	done   chan struct{}
	result Result
	err    error
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the build finished.
func (j *Job) Wait() (Result, error) {
	<-j.done
	return j.result, j.err
}

func (j *Job) Cancel() { j.cancel() }

// Start launches an animated build and returns immediately. The build stops
// early when parent is done or the job is cancelled.
func (b *Builder) Start(parent context.Context, key string, origin world.Vec3i, delay time.Duration, opts Options) (*Job, error) {
	if _, ok := b.catalog.Get(key); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStructure, key)
	}
	ctx, cancel := context.WithCancel(parent)
	j := &Job{
		ID:        uuid.NewString(),
		Structure: key,
		Origin:    origin,
		Started:   time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	b.jobs[j.ID] = j
	b.mu.Unlock()

	go func() {
		defer close(j.done)
		defer cancel()
		j.result, j.err = b.build(ctx, j.ID, key, origin, opts, &delay)

		b.mu.Lock()
		delete(b.jobs, j.ID)
		b.mu.Unlock()
	}()
	return j, nil
}

// Cancel stops a running job. It reports false for unknown or finished jobs.
func (b *Builder) Cancel(id string) bool {
	b.mu.Lock()
	j, ok := b.jobs[id]
	b.mu.Unlock()
	if !ok {
		return false
	}
	j.Cancel()
	return true
}

// Active lists running jobs, oldest first.
func (b *Builder) Active() []*Job {
	b.mu.Lock()
	out := make([]*Job, 0, len(b.jobs))
	for _, j := range b.jobs {
		out = append(out, j)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].Started.Equal(out[k].Started) {
			return out[i].ID < out[k].ID
		}
		return out[i].Started.Before(out[k].Started)
	})
	return out
}
