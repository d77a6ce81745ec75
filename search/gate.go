package search

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// gate serializes requests to one upstream. A caller holds the gate from
// waitAndLock until unlock, which also sets the earliest time the next
// request may start.
type gate struct {
	mu      sync.Mutex
	readyAt time.Time
}

var (
	gatesMu sync.Mutex
	gates   = map[string]*gate{}
)

// gateFor returns the shared gate for name, creating it on first use.
func gateFor(name string) *gate {
	gatesMu.Lock()
	defer gatesMu.Unlock()
	g, ok := gates[name]
	if !ok {
		g = &gate{}
		gates[name] = g
	}
	return g
}

// waitAndLock blocks until the gate is free and its delay has passed, then
// returns with the gate locked. It returns ctx.Err() if ctx ends first.
func (g *gate) waitAndLock(ctx context.Context) error {
	for {
		g.mu.Lock()
		wait := time.Until(g.readyAt)
		if wait <= 0 {
			return nil
		}
		g.mu.Unlock()
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (g *gate) unlock(delay time.Duration) {
	g.readyAt = time.Now().Add(delay)
	g.mu.Unlock()
}

var (
	backoffStart = time.Second
	backoffMax   = 30 * time.Second
	max429Tries  = 5
)

// doWithBackoff sends the request built by newReq and retries 429 responses
// with a doubling delay. newReq is called once per attempt because request
// bodies cannot be replayed.
func doWithBackoff(ctx context.Context, client *http.Client, newReq func() (*http.Request, error)) (*http.Response, error) {
	delay := backoffStart
	for attempt := 1; ; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= max429Tries {
			return resp, nil
		}
		resp.Body.Close()

		if !sleepCtx(ctx, delay) {
			return nil, ctx.Err()
		}
		if delay < backoffMax {
			delay *= 2
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
