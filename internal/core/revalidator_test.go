package core

import (
	"context"
	"testing"
	"time"

	"tasklist/internal/cache"
	"tasklist/pkg/domain"
)

func TestRevalidateOnceReloadsObservedStaleKeys(t *testing.T) {
	f := newFixture(t)
	seeded := f.seed(t, "x")
	events := f.subscribe(t)
	ctx := context.Background()

	if _, err := f.coord.UpdateField(ctx, alice, seeded[0].ID, domain.TextField("y")); err != nil {
		t.Fatalf("update: %v", err)
	}
	r := NewRevalidator(f.coord, time.Hour)
	if n := r.RevalidateOnce(ctx); n != 1 {
		t.Fatalf("expected one reload, got %d", n)
	}
	if f.cache.Stale(cache.KeyFor(alice.ID)) {
		t.Fatalf("expected key fresh after revalidation")
	}
	if n := r.RevalidateOnce(ctx); n != 0 {
		t.Fatalf("fresh keys must not reload, got %d", n)
	}
	last := events.ofType(cache.EventUpdated)
	if got := last[len(last)-1].Snapshot; got[0].Text != "y" {
		t.Fatalf("unexpected revalidated snapshot %+v", got)
	}
}

func TestRevalidateSkipsUnobservedKeys(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "x")
	f.cache.MarkStale(cache.KeyFor(alice.ID))
	if n := NewRevalidator(f.coord, 0).RevalidateOnce(context.Background()); n != 0 {
		t.Fatalf("unobserved key should be skipped, got %d", n)
	}
}

func TestRevalidateLogsFailures(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "x")
	f.subscribe(t)
	f.cache.MarkStale(cache.KeyFor(alice.ID))
	f.store.failList = errStore
	if n := NewRevalidator(f.coord, time.Hour).RevalidateOnce(context.Background()); n != 0 {
		t.Fatalf("expected no successful reloads, got %d", n)
	}
	var warned bool
	for _, line := range f.log.Lines() {
		if line == "warn: revalidation failed" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected revalidation warning")
	}
}

func TestRevalidatorStartStop(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "x")
	events := f.subscribe(t)
	f.cache.Invalidate(cache.KeyFor(alice.ID))

	r := NewRevalidator(f.coord, 5*time.Millisecond)
	r.Start()
	deadline := time.Now().Add(2 * time.Second)
	for f.cache.Stale(cache.KeyFor(alice.ID)) {
		if time.Now().After(deadline) {
			t.Fatalf("revalidator never reloaded the key")
		}
		time.Sleep(2 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(events.ofType(cache.EventUpdated)) == 0 {
		t.Fatalf("expected reload notification")
	}
}
