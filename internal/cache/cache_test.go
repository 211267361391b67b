package cache

import (
	"errors"
	"reflect"
	"testing"

	"tasklist/pkg/domain"
)

type warnLogger struct{ warns []string }

func (l *warnLogger) Warn(msg string, _ ...any) { l.warns = append(l.warns, msg) }

func records(ids ...string) Snapshot {
	out := make(Snapshot, len(ids))
	for i, id := range ids {
		out[i] = domain.Record{ID: id, Text: "item " + id}
	}
	return out
}

func TestGetReportsAbsenceForUnknownKey(t *testing.T) {
	c := New()
	if _, ok := c.Get("todos:nobody"); ok {
		t.Fatalf("expected absent snapshot")
	}
	if !c.Stale("todos:nobody") {
		t.Fatalf("unloaded key should count as stale")
	}
}

func TestSetNotifiesObserversInSubscriptionOrder(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	var order []string
	c.Subscribe(key, func(Event) { order = append(order, "first") })
	c.Subscribe(key, func(Event) { order = append(order, "second") })

	c.Set(key, records("a"))

	if !reflect.DeepEqual(order, []string{"first", "second"}) {
		t.Fatalf("unexpected delivery order %v", order)
	}
	got, ok := c.Get(key)
	if !ok || !reflect.DeepEqual(got.IDs(), []string{"a"}) {
		t.Fatalf("unexpected snapshot %v", got)
	}
}

func TestPanickingObserverDoesNotBlockOthers(t *testing.T) {
	logger := &warnLogger{}
	c := New(WithLogger(logger))
	key := KeyFor("u1")
	delivered := false
	c.Subscribe(key, func(Event) { panic("boom") })
	c.Subscribe(key, func(Event) { delivered = true })

	c.Set(key, records("a"))

	if !delivered {
		t.Fatalf("expected second observer to be notified")
	}
	if len(logger.warns) != 1 {
		t.Fatalf("expected one warning, got %v", logger.warns)
	}
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	c.Set(key, records("a"))
	c.Invalidate(key)

	var events []Event
	_, _, unsubscribe := c.Subscribe(key, func(ev Event) { events = append(events, ev) })
	defer unsubscribe()
	if len(events) != 0 {
		t.Fatalf("expected no replayed events, got %d", len(events))
	}
	if got, ok := c.Get(key); !ok || len(got) != 1 {
		t.Fatalf("expected current value to be readable at subscribe time")
	}
}

func TestInvalidateMarksStaleAndNotifies(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	c.Reset(key, records("a"))
	var got []EventType
	c.Subscribe(key, func(ev Event) { got = append(got, ev.Type) })

	c.Invalidate(key)
	if !c.Stale(key) {
		t.Fatalf("expected stale after invalidate")
	}
	c.Set(key, records("b"))
	if !c.Stale(key) {
		t.Fatalf("set must not clear the stale mark")
	}
	c.Reset(key, records("c"))
	if c.Stale(key) {
		t.Fatalf("reset must clear the stale mark")
	}
	want := []EventType{EventInvalidated, EventUpdated, EventUpdated}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestMarkStaleIsQuiet(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	c.Reset(key, records("a"))
	calls := 0
	c.Subscribe(key, func(Event) { calls++ })
	c.MarkStale(key)
	if calls != 0 {
		t.Fatalf("expected no notification, got %d", calls)
	}
	if !c.Stale(key) {
		t.Fatalf("expected stale mark")
	}
	if keys := c.StaleKeys(); len(keys) != 1 || keys[0] != key {
		t.Fatalf("unexpected stale keys %v", keys)
	}
}

func TestSwapRejectsWithoutChange(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	c.Set(key, records("a"))
	calls := 0
	c.Subscribe(key, func(Event) { calls++ })
	sentinel := errors.New("nope")
	prev, loaded, err := c.Swap(key, func(Snapshot, bool) (Snapshot, error) { return nil, sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if !loaded || len(prev) != 1 {
		t.Fatalf("expected previous snapshot to be reported")
	}
	if calls != 0 {
		t.Fatalf("rejected swap must not notify")
	}
}

func TestSubscribeReturnsCurrentSnapshot(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	calls := 0
	snap, ok, dispose := c.Subscribe(key, func(Event) { calls++ })
	if ok || snap != nil {
		t.Fatalf("expected no snapshot before load, got %v", snap)
	}
	c.Set(key, records("a", "b"))

	snap, ok, late := c.Subscribe(key, func(Event) { calls++ })
	if !ok || !reflect.DeepEqual(snap.IDs(), []string{"a", "b"}) {
		t.Fatalf("expected current snapshot on subscribe, got %v %v", snap, ok)
	}
	if calls != 1 {
		t.Fatalf("subscribing must not replay notifications, got %d calls", calls)
	}
	late()
	dispose()
}

func TestLastObserverTearsDownEntry(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	_, _, first := c.Subscribe(key, func(Event) {})
	_, _, second := c.Subscribe(key, func(Event) {})
	c.Set(key, records("a"))

	first()
	first()
	if c.Observers(key) != 1 {
		t.Fatalf("expected one observer left, got %d", c.Observers(key))
	}
	second()
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected entry torn down")
	}
	second()

	c.Remove(key)
	_, _, stale := c.Subscribe(key, func(Event) {})
	c.Remove(key)
	stale()
}

func TestReportDeliversFailure(t *testing.T) {
	c := New()
	key := KeyFor("u1")
	var got []Event
	c.Subscribe(key, func(ev Event) { got = append(got, ev) })
	c.Report(key, domain.ErrStoreUnavailable)
	if len(got) != 1 || got[0].Type != EventFailed || !errors.Is(got[0].Err, domain.ErrStoreUnavailable) {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestSnapshotTransformsLeaveReceiverIntact(t *testing.T) {
	base := records("a", "b", "c")
	updated := base.Update("b", domain.CompletedField(true))
	removed := base.Without("a")
	prepended := base.Prepend(domain.Record{ID: "z"})

	if base[1].Completed {
		t.Fatalf("update mutated the receiver")
	}
	if r, _ := updated.Find("b"); !r.Completed {
		t.Fatalf("expected b completed")
	}
	if !reflect.DeepEqual(removed.IDs(), []string{"b", "c"}) {
		t.Fatalf("unexpected removal %v", removed.IDs())
	}
	if !reflect.DeepEqual(prepended.IDs(), []string{"z", "a", "b", "c"}) {
		t.Fatalf("unexpected prepend %v", prepended.IDs())
	}
	if base.Contains("z") || len(base) != 3 {
		t.Fatalf("receiver modified")
	}
}
