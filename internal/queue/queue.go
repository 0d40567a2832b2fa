// Package queue distributes centerline extraction jobs over Redis lists.
//
// A producer pushes Jobs naming a label image and the files to write; any
// number of workers pop them, run the extractor and push a Result back.
// Jobs and results are JSON values in two lists used as FIFO queues
// (LPUSH on one end, BRPOP on the other).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default list keys.
const (
	DefaultJobsKey    = "centerline:jobs"
	DefaultResultsKey = "centerline:results"
)

// ErrClosed is returned by operations on a closed Queue.
var ErrClosed = errors.New("queue: closed")

// Job asks a worker to extract the centerline of one label image.
type Job struct {
	ID      string `json:"id"`
	Input   string `json:"input"`
	Output  string `json:"output"`
	Overlay string `json:"overlay,omitempty"`

	// Stop tells the receiving worker to exit after acknowledging.
	Stop bool `json:"stop,omitempty"`
}

// Result reports the outcome of a Job.
type Result struct {
	ID               string        `json:"id"`
	Worker           string        `json:"worker,omitempty"`
	Backend          string        `json:"backend,omitempty"`
	Width            int           `json:"width,omitempty"`
	Height           int           `json:"height,omitempty"`
	Sweeps           int           `json:"sweeps,omitempty"`
	CenterlinePixels int           `json:"centerline_pixels"`
	Duration         time.Duration `json:"duration_ns"`
	Error            string        `json:"error,omitempty"`
}

// Failed reports whether the job failed.
func (r *Result) Failed() bool { return r.Error != "" }

// Option configures a Queue.
type Option func(*options)

type options struct {
	jobsKey     string
	resultsKey  string
	password    string
	db          int
	dialTimeout time.Duration
}

func defaultOptions() options {
	return options{
		jobsKey:     DefaultJobsKey,
		resultsKey:  DefaultResultsKey,
		dialTimeout: 5 * time.Second,
	}
}

// WithKeys overrides the list keys, for running several pipelines on one
// Redis instance.
func WithKeys(jobs, results string) Option {
	return func(o *options) {
		o.jobsKey = jobs
		o.resultsKey = results
	}
}

// WithAuth sets the password and database number.
func WithAuth(password string, db int) Option {
	return func(o *options) {
		o.password = password
		o.db = db
	}
}

// WithDialTimeout sets the connection timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// Queue is a job and result queue backed by Redis.
type Queue struct {
	client  *redis.Client
	jobs    string
	results string
}

// New connects to the Redis server at addr and verifies the connection.
func New(ctx context.Context, addr string, opts ...Option) (*Queue, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     o.password,
		DB:           o.db,
		MaxRetries:   3,
		DialTimeout:  o.dialTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue: connect %s: %w", addr, err)
	}

	return &Queue{client: client, jobs: o.jobsKey, results: o.resultsKey}, nil
}

// PushJob appends a job to the job list.
func (q *Queue) PushJob(ctx context.Context, job *Job) error {
	return q.push(ctx, q.jobs, job)
}

// PopJob removes the oldest job, blocking up to timeout. It returns nil and
// no error when the timeout expires with the list empty.
func (q *Queue) PopJob(ctx context.Context, timeout time.Duration) (*Job, error) {
	var job Job
	ok, err := q.pop(ctx, q.jobs, timeout, &job)
	if !ok {
		return nil, err
	}
	return &job, nil
}

// PushResult appends a result to the result list.
func (q *Queue) PushResult(ctx context.Context, res *Result) error {
	return q.push(ctx, q.results, res)
}

// PopResult removes the oldest result, blocking up to timeout. It returns
// nil and no error when the timeout expires with the list empty.
func (q *Queue) PopResult(ctx context.Context, timeout time.Duration) (*Result, error) {
	var res Result
	ok, err := q.pop(ctx, q.results, timeout, &res)
	if !ok {
		return nil, err
	}
	return &res, nil
}

// Close closes the connection.
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("queue: close: %w", err)
	}
	return nil
}

func (q *Queue) push(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("queue: marshal: %w", err)
	}
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		return wrapRedis("push", key, err)
	}
	return nil
}

func (q *Queue) pop(ctx context.Context, key string, timeout time.Duration, v any) (bool, error) {
	reply, err := q.client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, wrapRedis("pop", key, err)
	}
	// BRPOP replies with the key followed by the value.
	if len(reply) != 2 {
		return false, fmt.Errorf("queue: pop %s: unexpected reply of %d elements", key, len(reply))
	}
	if err := decode(reply[1], v); err != nil {
		return false, err
	}
	return true, nil
}

func decode(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("queue: unmarshal: %w", err)
	}
	return nil
}

func wrapRedis(op, key string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("queue: %s %s: %w", op, key, err)
}
