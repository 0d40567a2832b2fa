// Command centerline extracts stripe centerlines from label images.
//
// Single image:
//
//	centerline -in labels.png -out mask.png [-overlay preview.png] [-gpu=false]
//
// Queue worker, processing jobs pushed to a Redis list until a stop job:
//
//	centerline -redis localhost:6379 [-id worker-1]
//
// Producer, pushing one job per label image and optionally waiting for the
// results or stopping the workers afterwards:
//
//	centerline -redis localhost:6379 -enqueue -in frames/ -out masks/ [-wait] [-stop 4]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/centerline"
	"github.com/gogpu/centerline/internal/image"
	"github.com/gogpu/centerline/internal/queue"
)

func main() {
	var (
		input   = flag.String("in", "", "label image (PNG, TIFF or BMP)")
		output  = flag.String("out", "centerline.png", "output mask (PNG or TIFF)")
		overlay = flag.String("overlay", "", "optional false-colour preview (PNG or TIFF)")
		scale   = flag.Int("scale", 4, "preview scale factor")
		workers = flag.Int("workers", 0, "CPU workers (0 = GOMAXPROCS)")
		noClass = flag.Int64("noclass", math.MinInt32, "sentinel label that never occurs in the input")
		useGPU  = flag.Bool("gpu", true, "use the GPU accelerator when available")
		verbose = flag.Bool("v", false, "verbose logging")

		redisAddr = flag.String("redis", "", "Redis address; run as a queue worker when set")
		workerID  = flag.String("id", "", "worker name (defaults to hostname)")
		poll      = flag.Duration("poll", 5*time.Second, "job poll timeout")

		enqueueJobs = flag.Bool("enqueue", false, "push jobs for -in instead of processing them (with -redis)")
		jobPrefix   = flag.String("job", "", "job ID prefix (defaults to worker name and time)")
		wait        = flag.Bool("wait", false, "with -enqueue, wait for the results")
		stops       = flag.Int("stop", 0, "with -enqueue, push this many stop jobs after the jobs")
		timeout     = flag.Duration("timeout", 10*time.Minute, "with -enqueue, overall deadline")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	centerline.SetLogger(logger)

	if (*input == "" && *redisAddr == "") || (*enqueueJobs && (*redisAddr == "" || (*input == "" && *stops == 0))) {
		flag.Usage()
		os.Exit(2)
	}
	if *noClass < math.MinInt32 || *noClass > math.MaxInt32 {
		logger.Error("noclass out of int32 range", "noclass", *noClass)
		os.Exit(2)
	}

	if *enqueueJobs {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		err := produce(ctx, *redisAddr, *jobPrefix, *workerID, *input, *output, *overlay, *stops, *wait, *poll)
		stop()
		cancel()
		if err != nil {
			logger.Error("enqueue failed", "err", err)
			os.Exit(1)
		}
		return
	}

	opts := []centerline.Option{
		centerline.WithWorkers(*workers),
		centerline.WithNoClass(int32(*noClass)),
	}
	if !*useGPU {
		opts = append(opts, centerline.WithCPUOnly())
	}
	ex := centerline.NewExtractor(opts...)

	var err error
	if *redisAddr != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err = serve(ctx, ex, *redisAddr, workerName(*workerID), *poll, *scale)
		stop()
	} else {
		var res *queue.Result
		res, err = extract(ex, *input, *output, *overlay, *scale)
		if err == nil {
			logger.Info("centerline extracted",
				"input", *input,
				"output", *output,
				"size", fmt.Sprintf("%dx%d", res.Width, res.Height),
				"backend", res.Backend,
				"sweeps", res.Sweeps,
				"centerline_pixels", res.CenterlinePixels,
				"total", res.Duration)
		}
	}
	ex.Close()
	if err != nil {
		logger.Error("centerline failed", "err", err)
		os.Exit(1)
	}
}

func workerName(id string) string {
	if id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return host
}

// extract runs one label image through ex and writes the mask and the
// optional preview.
func extract(ex *centerline.Extractor, input, output, overlay string, scale int) (*queue.Result, error) {
	grid, err := image.LoadLabels(input)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", input, err)
	}

	mask, stats, err := ex.ProcessWithStats(grid)
	if err != nil {
		return nil, err
	}

	if err := image.SaveMask(output, mask); err != nil {
		return nil, fmt.Errorf("save %s: %w", output, err)
	}
	if overlay != "" {
		if err := image.SavePreview(overlay, image.OverlayMask(grid, mask, scale)); err != nil {
			return nil, fmt.Errorf("save %s: %w", overlay, err)
		}
	}

	return &queue.Result{
		Backend:          stats.Backend,
		Width:            grid.Width,
		Height:           grid.Height,
		Sweeps:           stats.Sweeps,
		CenterlinePixels: stats.CenterlinePixels,
		Duration:         stats.Total,
	}, nil
}

// jobHandler adapts extract to queue jobs.
func jobHandler(ex *centerline.Extractor, scale int) queue.Handler {
	return func(_ context.Context, job *queue.Job) *queue.Result {
		res, err := extract(ex, job.Input, job.Output, job.Overlay, scale)
		if err != nil {
			return &queue.Result{Error: err.Error()}
		}
		return res
	}
}

// produce pushes the jobs for input and logs the collected results.
func produce(ctx context.Context, addr, prefix, id, input, output, overlay string, stops int, wait bool, poll time.Duration) error {
	if prefix == "" {
		prefix = fmt.Sprintf("%s-%d", workerName(id), time.Now().UnixNano())
	}
	var jobs []*queue.Job
	if input != "" {
		var err error
		if jobs, err = planJobs(prefix, input, output, overlay); err != nil {
			return err
		}
	}

	q, err := queue.New(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	logger := centerline.Logger()
	logger.Info("enqueue", "jobs", len(jobs), "stops", stops)
	results, err := enqueue(ctx, q, jobs, stops, wait, poll)
	for _, res := range results {
		if res.Failed() {
			logger.Warn("job failed", "id", res.ID, "worker", res.Worker, "err", res.Error)
			continue
		}
		logger.Info("job done", "id", res.ID, "worker", res.Worker, "backend", res.Backend,
			"centerline_pixels", res.CenterlinePixels, "duration", res.Duration)
	}
	return err
}

func serve(ctx context.Context, ex *centerline.Extractor, addr, name string, poll time.Duration, scale int) error {
	q, err := queue.New(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	w := queue.NewWorker(name, q, jobHandler(ex, scale), poll, centerline.Logger())
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
