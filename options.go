package centerline

// Option configures an Extractor.
//
// Example:
//
//	// CPU only, eight workers
//	ex := centerline.NewExtractor(centerline.WithWorkers(8), centerline.WithCPUOnly())
//	defer ex.Close()
type Option func(*extractorOptions)

type extractorOptions struct {
	workers     int
	noClass     int32
	accelerator Accelerator
	cpuOnly     bool
}

func defaultExtractorOptions() extractorOptions {
	return extractorOptions{
		workers: 0, // GOMAXPROCS
		noClass: NoClass,
	}
}

// WithWorkers sets the number of CPU workers. Zero or negative means
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *extractorOptions) {
		o.workers = n
	}
}

// WithNoClass sets the sentinel label used for padding. It must not occur in
// any grid passed to Process.
func WithNoClass(v int32) Option {
	return func(o *extractorOptions) {
		o.noClass = v
	}
}

// WithAccelerator injects an accelerator instead of the registered one.
// The caller keeps ownership: Extractor.Close does not close it.
func WithAccelerator(a Accelerator) Option {
	return func(o *extractorOptions) {
		o.accelerator = a
		o.cpuOnly = false
	}
}

// WithCPUOnly disables accelerators, including the registered one.
func WithCPUOnly() Option {
	return func(o *extractorOptions) {
		o.cpuOnly = true
		o.accelerator = nil
	}
}
