package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultJobTimeout applies when Options.Timeout is not set.
const DefaultJobTimeout = 5 * time.Minute

// Options controls a batch execution.
type Options struct {
	// MaxConcurrent bounds how many domains run at once (1-50). One slot
	// covers every capability of a domain.
	MaxConcurrent int

	// Timeout is the per-job deadline, independent of the caller's context.
	Timeout time.Duration

	// Parallel dispatches domains concurrently; otherwise domains and their
	// capabilities run one at a time in input order.
	Parallel bool
}

// Observer receives every finished result.
type Observer interface {
	ObserveResult(r *ScanResult)
}

// Orchestrator dispatches scan jobs over registered capabilities.
type Orchestrator struct {
	capabilities map[CapabilityType]Capability
	order        []CapabilityType
	observer     Observer
	logger       *zap.SugaredLogger
}

// NewOrchestrator registers the given capabilities. A later capability with
// the same type replaces an earlier one. observer may be nil.
func NewOrchestrator(logger *zap.SugaredLogger, observer Observer, caps ...Capability) *Orchestrator {
	o := &Orchestrator{
		capabilities: make(map[CapabilityType]Capability, len(caps)),
		observer:     observer,
		logger:       logger,
	}
	for _, c := range caps {
		if _, exists := o.capabilities[c.Type()]; !exists {
			o.order = append(o.order, c.Type())
		}
		o.capabilities[c.Type()] = c
	}
	return o
}

// Scanners lists the registered capabilities in registration order.
// Availability checks run concurrently so one slow probe bounds the call.
func (o *Orchestrator) Scanners() []CapabilityInfo {
	infos := make([]CapabilityInfo, len(o.order))
	var wg sync.WaitGroup
	for i, typ := range o.order {
		c := o.capabilities[typ]
		infos[i] = CapabilityInfo{
			Name:    c.Name(),
			Type:    c.Type(),
			Version: c.Version(),
		}
		wg.Add(1)
		go func(i int, c Capability) {
			defer wg.Done()
			infos[i].Available = c.IsAvailable()
		}(i, c)
	}
	wg.Wait()
	return infos
}

// ExecuteScans runs every (target, capability) pair and returns one result
// per pair. Individual job failures are reported as results; the only error
// is an invalid concurrency bound, returned before any work starts.
//
// Results are grouped by target in input order, with capability order
// preserved inside each group.
func (o *Orchestrator) ExecuteScans(ctx context.Context, targets []Target, types []CapabilityType, opts Options) ([]*ScanResult, error) {
	return o.execute(ctx, targets, types, opts, nil)
}

// execute is ExecuteScans with a hook called once per finished domain.
func (o *Orchestrator) execute(ctx context.Context, targets []Target, types []CapabilityType, opts Options, onDomain func(domain string, results []*ScanResult)) ([]*ScanResult, error) {
	limiter, err := NewLimiter(opts.MaxConcurrent, MinScanConcurrency, MaxScanConcurrency)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultJobTimeout
	}

	groups := expandJobs(targets, types)
	perDomain := make([][]*ScanResult, len(groups))

	o.logger.Infow("Starting scan batch",
		"domains", len(targets),
		"scanners", len(types),
		"max_concurrent", limiter.Bound(),
		"timeout", opts.Timeout.String(),
		"parallel", opts.Parallel,
	)

	if opts.Parallel {
		var wg sync.WaitGroup
		for i, jobs := range groups {
			wg.Add(1)
			go func(i int, jobs []ScanJob) {
				defer wg.Done()
				perDomain[i] = o.runDomain(ctx, limiter, jobs, opts.Timeout)
				if onDomain != nil && len(jobs) > 0 {
					onDomain(jobs[0].Target.Domain, perDomain[i])
				}
			}(i, jobs)
		}
		wg.Wait()
	} else {
		for i, jobs := range groups {
			results := make([]*ScanResult, 0, len(jobs))
			for _, job := range jobs {
				results = append(results, o.ExecuteSingleScan(ctx, job.Target, job.Type, opts.Timeout))
			}
			perDomain[i] = results
			if onDomain != nil && len(jobs) > 0 {
				onDomain(jobs[0].Target.Domain, results)
			}
		}
	}

	all := make([]*ScanResult, 0, len(targets)*len(types))
	for _, results := range perDomain {
		all = append(all, results...)
	}
	return all, nil
}

// runDomain holds one limiter slot while every capability for the domain
// runs concurrently.
func (o *Orchestrator) runDomain(ctx context.Context, limiter *Limiter, jobs []ScanJob, timeout time.Duration) []*ScanResult {
	results := make([]*ScanResult, len(jobs))

	if err := limiter.Acquire(ctx); err != nil {
		for i, job := range jobs {
			results[i] = o.ExecuteSingleScan(ctx, job.Target, job.Type, timeout)
		}
		return results
	}
	defer limiter.Release()

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job ScanJob) {
			defer wg.Done()
			results[i] = o.ExecuteSingleScan(ctx, job.Target, job.Type, timeout)
		}(i, job)
	}
	wg.Wait()
	return results
}

// ExecuteSingleScan runs one capability against one target under the job
// timeout. It never returns nil and never returns an error: unknown
// capabilities, scanner errors, timeouts and cancellations are all
// represented in the result's status.
func (o *Orchestrator) ExecuteSingleScan(ctx context.Context, target Target, typ CapabilityType, timeout time.Duration) *ScanResult {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	if err := ctx.Err(); err != nil {
		res := NewResult(target, string(typ), typ)
		res.Finish(StatusCancelled, cancelMessage(ctx))
		o.observe(res)
		return res
	}

	c, ok := o.capabilities[typ]
	if !ok {
		res := NewResult(target, string(typ), typ)
		res.Finish(StatusFailed, fmt.Sprintf("%v: %s", ErrScannerUnavailable, typ))
		o.logger.Warnw("Scanner not registered", "domain", target.Domain, "scanner", typ)
		o.observe(res)
		return res
	}

	o.logger.Debugw("Scan started", "domain", target.Domain, "scanner", c.Name())

	// IsAvailable may probe a remote service, so it runs under the job
	// deadline like the scan itself.
	fallback := NewResult(target, c.Name(), c.Type())
	res := runGuarded(ctx, timeout, fallback, func(ctx context.Context) (*ScanResult, error) {
		if !c.IsAvailable() {
			return nil, fmt.Errorf("%w: %s", ErrScannerUnavailable, typ)
		}
		return c.Scan(ctx, target)
	})

	switch res.Status {
	case StatusCompleted:
		o.logger.Infow("Scan completed",
			"domain", res.Domain,
			"scanner", res.Scanner,
			"findings", len(res.Findings),
			"duration_ms", res.Duration().Milliseconds(),
		)
	case StatusTimeout:
		o.logger.Warnw("Scan timed out", "domain", res.Domain, "scanner", res.Scanner, "timeout", timeout.String())
	case StatusCancelled:
		o.logger.Infow("Scan cancelled", "domain", res.Domain, "scanner", res.Scanner)
	default:
		o.logger.Warnw("Scan failed", "domain", res.Domain, "scanner", res.Scanner, "error", res.Error)
	}

	o.observe(res)
	return res
}

func (o *Orchestrator) observe(res *ScanResult) {
	if o.observer != nil {
		o.observer.ObserveResult(res)
	}
}
