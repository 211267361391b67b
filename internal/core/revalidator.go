package core

import (
	"context"
	"sync"
	"time"
)

// Revalidator reloads observed stale keys in the background. It uses the last
// principal the coordinator saw for each key.
type Revalidator struct {
	coord    *Coordinator
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRevalidator constructs a revalidator polling at interval (default 5s).
func NewRevalidator(coord *Coordinator, interval time.Duration) *Revalidator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Revalidator{coord: coord, interval: interval, ctx: ctx, cancel: cancel}
}

// Start begins the polling loop.
func (r *Revalidator) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop signals the loop to halt and waits for it, bounded by ctx.
func (r *Revalidator) Stop(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Revalidator) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.RevalidateOnce(r.ctx)
		}
	}
}

// RevalidateOnce reloads every observed stale key and returns how many loads
// succeeded.
func (r *Revalidator) RevalidateOnce(ctx context.Context) int {
	reloaded := 0
	for _, key := range r.coord.cache.StaleKeys() {
		p, ok := r.coord.principalFor(key)
		if !ok {
			continue
		}
		if _, err := r.coord.Load(ctx, p); err != nil {
			r.coord.logger.Warn("revalidation failed", "key", string(key), "error", err)
			continue
		}
		reloaded++
	}
	return reloaded
}
