package dossier

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager orchestrates a research run: plan, search in batches, write.
type Manager struct {
	plannerModel LLMProvider
	searchModel  LLMProvider
	writerModel  LLMProvider
	searchTool   SearchProvider
	fetcher      FetchProvider
	searchCost   float64

	printer Printer
	logger  *zap.Logger

	batchSize     int
	maxSearches   int
	searchDepth   int
	searchRetries int
	failurePolicy FailurePolicy
	retryBackoff  time.Duration
	runTimeout    time.Duration

	planner  *Planner
	searcher *Searcher
	writer   *Writer
}

// New constructs a Manager with the provided options.
func New(opts ...Option) *Manager {
	r := &Manager{
		batchSize:     defaultBatchSize,
		maxSearches:   defaultMaxSearches,
		searchDepth:   1,
		searchRetries: defaultSearchRetries,
		failurePolicy: FailSkip,
		retryBackoff:  defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = loggerOrNop(r.logger)
	if r.failurePolicy == "" {
		r.failurePolicy = FailSkip
	}

	r.planner = &Planner{
		Model:       r.plannerModel,
		MaxSearches: r.maxSearches,
		Logger:      r.logger.Named("planner"),
	}
	r.searcher = &Searcher{
		Model:      r.searchModel,
		Tool:       r.searchTool,
		Fetcher:    r.fetcher,
		Depth:      r.searchDepth,
		SearchCost: r.searchCost,
		Logger:     r.logger.Named("search"),
	}
	r.writer = &Writer{
		Model:  r.writerModel,
		Logger: r.logger.Named("writer"),
	}
	return r
}

// Run researches query end to end. On error the returned Result still holds
// the trace id and everything produced before the failing phase, and Phase
// names the phase that failed.
func (r *Manager) Run(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	res := Result{Query: query, Phase: PhasePlanning, Started: time.Now()}
	if query == "" {
		res.Finished = res.Started
		return res, ErrEmptyQuery
	}
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	res.TraceID = NewTraceID()
	ctx = WithTraceID(ctx, res.TraceID)
	log := traceLogger(ctx, r.logger)
	sink := newEventSink(r.printer, res.TraceID)

	sink.emit(PhasePlanning, "trace_id", "Trace ID: "+res.TraceID, true)
	log.Info("research started", zap.String("query", query))

	sink.emit(PhasePlanning, "planning", "Planning searches...", false)
	plan, cost, err := r.planner.Plan(ctx, query)
	res.Cost += cost
	if err != nil {
		return r.fail(res, sink, log, fmt.Errorf("planner: %w", err))
	}
	res.Plan = plan
	sink.emit(PhasePlanning, "planning", fmt.Sprintf("Will perform %d searches", len(plan.Searches)), true)

	res.Phase = PhaseSearching
	summaries, err := r.performSearches(ctx, log, sink, plan.Searches)
	res.Summaries = summaries
	for _, s := range summaries {
		res.Cost += s.Cost
	}
	if err != nil {
		return r.fail(res, sink, log, fmt.Errorf("search: %w", err))
	}
	succeeded := res.Succeeded()
	if len(succeeded) == 0 {
		return r.fail(res, sink, log, ErrNoSummaries)
	}

	res.Phase = PhaseWriting
	sink.emit(PhaseWriting, "writing", "Thinking about report...", false)
	report, cost, err := r.writer.Write(ctx, query, succeeded)
	res.Cost += cost
	if err != nil {
		return r.fail(res, sink, log, fmt.Errorf("writer: %w", err))
	}
	res.Report = report
	sink.emit(PhaseWriting, "writing", "Report written", true)

	res.Phase = PhaseDone
	res.Finished = time.Now()
	sink.emit(PhaseDone, "final_report", report.ShortSummary, true)
	log.Info("research finished",
		zap.Int("searches", len(summaries)),
		zap.Int("failed", res.Failed()),
		zap.Float64("cost", res.Cost),
		zap.Duration("elapsed", res.Finished.Sub(res.Started)))
	return res, nil
}

// Plan runs only the planning phase.
func (r *Manager) Plan(ctx context.Context, query string) (WebSearchPlan, error) {
	if TraceIDFromContext(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	plan, _, err := r.planner.Plan(ctx, query)
	if err != nil {
		return plan, fmt.Errorf("planner: %w", err)
	}
	return plan, nil
}

func (r *Manager) fail(res Result, sink *eventSink, log *zap.Logger, err error) (Result, error) {
	res.Finished = time.Now()
	sink.emit(res.Phase, "error", err.Error(), true)
	log.Error("research failed", zap.Stringer("phase", res.Phase), zap.Error(err))
	return res, err
}

// performSearches runs items in batches of batchSize. Every search in a batch
// finishes before the next batch starts. Each goroutine writes only its own
// slot, so summaries keep plan order.
func (r *Manager) performSearches(ctx context.Context, log *zap.Logger, sink *eventSink, items []WebSearchItem) ([]SearchSummary, error) {
	total := len(items)
	summaries := make([]SearchSummary, total)
	var completed, failed atomic.Int32

	sink.emit(PhaseSearching, "searching", "Searching...", false)
	for start := 0; start < total; start += r.batchSize {
		end := min(start+r.batchSize, total)
		batch := start/r.batchSize + 1
		batchKey := fmt.Sprintf("batch:%d", batch)
		sink.emit(PhaseSearching, batchKey, fmt.Sprintf("Batch %d: searches %d-%d of %d", batch, start+1, end, total), false)
		log.Debug("batch started", zap.Int("batch", batch), zap.Int("size", end-start))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				key := fmt.Sprintf("search:%d", i+1)
				s, err := r.searchWithRetry(gctx, log, items[i])
				summaries[i] = s
				if err != nil {
					failed.Add(1)
					sink.emit(PhaseSearching, key, fmt.Sprintf("Search %q failed: %v", items[i].Query, err), true)
					if r.failurePolicy == FailAbort {
						return err
					}
					log.Warn("search skipped", zap.String("query", items[i].Query), zap.Error(err))
					return nil
				}
				n := completed.Add(1)
				sink.emit(PhaseSearching, key, fmt.Sprintf("Searching... %d/%d completed", n, total), true)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return summaries[:end], err
		}
		if err := ctx.Err(); err != nil {
			return summaries[:end], err
		}
		sink.emit(PhaseSearching, batchKey, fmt.Sprintf("Batch %d done", batch), true)
	}

	sink.emit(PhaseSearching, "searching",
		fmt.Sprintf("Searches done: %d succeeded, %d failed", completed.Load(), failed.Load()), true)
	return summaries, nil
}
