// Package processing runs local batch transcriptions on a fixed number of
// goroutines fed from a channel.
package processing

import (
	"context"
	"sync"

	"github.com/dharsanguruparan/captiondesk/internal/mediaref"
	"github.com/dharsanguruparan/captiondesk/internal/model"
	"github.com/dharsanguruparan/captiondesk/internal/worker"
)

// Runner transcribes one source; *worker.Processor implements it.
type Runner interface {
	Run(ctx context.Context, src mediaref.Source, language string, profile model.ModelProfile) (*worker.Outcome, error)
}

// Job is one file handed to the pool.
type Job struct {
	Index int
	Path  string
}

// Result pairs a Job with its outcome.
type Result struct {
	Job
	Outcome *worker.Outcome
	Err     error
}

// Pool fans files out to workers.
type Pool struct {
	runner  Runner
	workers int
	open    func(path string) (mediaref.Source, error)
}

// New builds a Pool with at least one worker.
func New(runner Runner, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{runner: runner, workers: workers, open: mediaref.FileSource}
}

// Run transcribes every path and returns one Result per path, in input order.
// Jobs still queued when ctx is cancelled report ctx.Err().
func (p *Pool) Run(ctx context.Context, paths []string, language string, profile model.ModelProfile) []Result {
	results := make([]Result, len(paths))
	jobs := make(chan Job, len(paths))
	for i, path := range paths {
		jobs <- Job{Index: i, Path: path}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(paths)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results[job.Index] = p.process(ctx, job, language, profile)
			}
		}()
	}
	wg.Wait()
	return results
}

func (p *Pool) process(ctx context.Context, job Job, language string, profile model.ModelProfile) Result {
	if err := ctx.Err(); err != nil {
		return Result{Job: job, Err: err}
	}
	src, err := p.open(job.Path)
	if err != nil {
		return Result{Job: job, Err: err}
	}
	out, err := p.runner.Run(ctx, src, language, profile)
	return Result{Job: job, Outcome: out, Err: err}
}
