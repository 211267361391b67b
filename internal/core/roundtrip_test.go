package core

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"tasklist/internal/cache"
	"tasklist/pkg/domain"
)

func textGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z][a-z ]{0,15}`)
}

// testRoundTripProperties drives a random sequence of successful mutations and
// checks that, once the key has been re-fetched where required, the cached
// snapshot matches a fresh list from the store.
func testRoundTripProperties(t *rapid.T) {
	store := newFaultyStore()
	coord := NewCoordinator(cache.New(), store, WithClock(steppingClock()))
	ctx := context.Background()
	key := cache.KeyFor(alice.ID)

	if _, err := coord.Load(ctx, alice); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	steps := rapid.IntRange(1, 25).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		current, _ := coord.Cache().Get(key)
		op := rapid.IntRange(0, 3).Draw(t, "op")
		if len(current) == 0 {
			op = 0
		}
		switch op {
		case 0:
			if _, err := coord.Insert(ctx, alice, textGenerator().Draw(t, "text")); err != nil {
				t.Fatalf("insert: %v", err)
			}
		case 1:
			target := current[rapid.IntRange(0, len(current)-1).Draw(t, "toggle")]
			if _, err := coord.UpdateField(ctx, alice, target.ID, domain.CompletedField(!target.Completed)); err != nil {
				t.Fatalf("toggle: %v", err)
			}
		case 2:
			target := current[rapid.IntRange(0, len(current)-1).Draw(t, "rename")]
			if _, err := coord.UpdateField(ctx, alice, target.ID, domain.TextField(textGenerator().Draw(t, "newText"))); err != nil {
				t.Fatalf("rename: %v", err)
			}
		case 3:
			target := current[rapid.IntRange(0, len(current)-1).Draw(t, "delete")]
			if err := coord.Delete(ctx, alice, target.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
		}

		cached, ok := coord.Cache().Get(key)
		if !ok {
			t.Fatalf("cache lost key")
		}
		if coord.Cache().Stale(key) {
			if cached, _ = coord.Load(ctx, alice); coord.Cache().Stale(key) {
				t.Fatalf("load left key stale")
			}
		}
		fresh, err := store.Store.List(ctx, alice)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !equalRecords(cached, fresh) {
			t.Fatalf("cache diverged from store after step %d:\ncache %+v\nstore %+v", i, cached, fresh)
		}
		for _, r := range cached {
			if r.IsTemporary() {
				t.Fatalf("temporary id visible after reconciliation: %s", r.ID)
			}
		}
	}
}

func TestRoundTripMatchesStore(t *testing.T) {
	rapid.Check(t, testRoundTripProperties)
}
