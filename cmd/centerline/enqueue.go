package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/centerline/internal/queue"
)

// producer is the part of queue.Queue the enqueue mode uses.
type producer interface {
	PushJob(ctx context.Context, job *queue.Job) error
	PushResult(ctx context.Context, res *queue.Result) error
	PopResult(ctx context.Context, timeout time.Duration) (*queue.Result, error)
}

// requeueDelay throttles collect while only results of other producers are
// queued.
var requeueDelay = 100 * time.Millisecond

var labelExts = map[string]bool{".png": true, ".tif": true, ".tiff": true, ".bmp": true}

// planJobs builds the jobs for input. A file yields one job writing output
// and overlay. A directory yields one job per label image in it; output and
// overlay are then directories receiving <name>.png and <name>_overlay.png.
func planJobs(prefix, input, output, overlay string) ([]*queue.Job, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []*queue.Job{{ID: prefix + "-0", Input: input, Output: output, Overlay: overlay}}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && labelExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}

	jobs := make([]*queue.Job, 0, len(names))
	for i, name := range names {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		job := &queue.Job{
			ID:     fmt.Sprintf("%s-%d", prefix, i),
			Input:  filepath.Join(input, name),
			Output: filepath.Join(output, base+".png"),
		}
		if overlay != "" {
			job.Overlay = filepath.Join(overlay, base+"_overlay.png")
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// enqueue pushes jobs followed by stops stop jobs and, when wait is set,
// collects the results of jobs.
func enqueue(ctx context.Context, p producer, jobs []*queue.Job, stops int, wait bool, poll time.Duration) ([]*queue.Result, error) {
	for _, job := range jobs {
		if err := p.PushJob(ctx, job); err != nil {
			return nil, err
		}
	}
	for i := range stops {
		if err := p.PushJob(ctx, &queue.Job{ID: fmt.Sprintf("stop-%d", i), Stop: true}); err != nil {
			return nil, err
		}
	}
	if !wait {
		return nil, nil
	}
	return collect(ctx, p, jobs, poll)
}

// collect pops results until every job has reported. Results of other jobs
// are pushed back for their producer.
func collect(ctx context.Context, p producer, jobs []*queue.Job, poll time.Duration) ([]*queue.Result, error) {
	pending := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		pending[job.ID] = true
	}

	results := make([]*queue.Result, 0, len(jobs))
	for len(pending) > 0 {
		res, err := p.PopResult(ctx, poll)
		if err != nil {
			return results, err
		}
		if res == nil {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			continue
		}
		if pending[res.ID] {
			delete(pending, res.ID)
			results = append(results, res)
			continue
		}

		if err := p.PushResult(ctx, res); err != nil {
			return results, err
		}
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-time.After(requeueDelay):
		}
	}
	return results, nil
}
