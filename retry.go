package dossier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// searchWithRetry runs the search agent for item, retrying failures with
// exponential backoff. The returned summary always has Attempts and Cost set;
// on failure Err holds a *SearchError.
func (r *Manager) searchWithRetry(ctx context.Context, log *zap.Logger, item WebSearchItem) (SearchSummary, error) {
	var (
		last     SearchSummary
		err      error
		cost     float64
		attempts int
	)
	backoff := r.retryBackoff

	for attempts < r.searchRetries+1 {
		attempts++
		last, err = r.searcher.Search(ctx, item)
		cost += last.Cost
		if err == nil {
			last.Attempts = attempts
			last.Cost = cost
			return last, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempts > r.searchRetries {
			break
		}

		log.Warn("search attempt failed, retrying",
			zap.String("query", item.Query),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !sleepCtx(ctx, backoff) {
			break
		}
		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}

	serr := &SearchError{Item: item, Attempts: attempts, Err: err}
	return SearchSummary{
		Item:     item,
		Sources:  last.Sources,
		Queries:  last.Queries,
		Attempts: attempts,
		Cost:     cost,
		Err:      serr,
		Error:    serr.Error(),
	}, serr
}

// retryable reports whether another attempt could change the outcome.
func retryable(err error) bool {
	return !errors.Is(err, ErrNotConfigured) && !errors.Is(err, ErrEmptyQuery) &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// sleepCtx waits for d or until ctx is done. It returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
