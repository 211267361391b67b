package integration

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tasklist/internal/adapters/events"
	"tasklist/internal/adapters/httpstore"
	"tasklist/internal/adapters/todos"
	"tasklist/internal/auth"
	"tasklist/internal/blob"
	"tasklist/internal/cache"
	"tasklist/internal/core"
	blobfs "tasklist/internal/infra/blob/fs"
	blobmemory "tasklist/internal/infra/blob/memory"
	blobs3 "tasklist/internal/infra/blob/s3"
	"tasklist/internal/infra/persistence/memory"
	"tasklist/internal/infra/persistence/sqlite"
	"tasklist/pkg/domain"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

// TestIntegrationSmoke drives a client-side coordinator against a served
// record store for each in-process storage backend, then archives the result
// into each blob backend.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.RecordStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) domain.RecordStore { return memory.NewStore() },
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.RecordStore {
				s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "tasks.db"))
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blobmemory.New() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blobfs.New(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blobs3.NewMockForTests() },
		},
	}

	gate, err := auth.NewGate(secret)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	tok, _ := gate.Mint("alice", "Alice", time.Hour)
	alice := domain.Principal{ID: "alice", Token: tok}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				archiver := blob.NewArchiver(bv.open(t), nil)
				h := todos.NewHandler(sv.open(t))
				h.Broker = events.NewMemoryBroker(nil)
				h.Archiver = archiver
				srv := httptest.NewServer(todos.NewRouter(h, gate, nil))
				defer srv.Close()

				client, err := httpstore.New(srv.URL)
				if err != nil {
					t.Fatalf("client: %v", err)
				}
				metricsRecorder := core.NewExpvarMetricsRecorder("")
				var traceBuffer bytes.Buffer
				tracer := core.NewJSONTracer(&traceBuffer)
				coord := core.NewCoordinator(cache.New(), client,
					core.WithMetricsRecorder(metricsRecorder),
					core.WithTracer(tracer),
				)
				_, _, dispose := coord.Subscribe(alice, func(cache.Event) {})
				defer dispose()

				if _, err := coord.Load(ctx, alice); err != nil {
					t.Fatalf("load: %v", err)
				}
				created, err := coord.Insert(ctx, alice, "water plants")
				if err != nil {
					t.Fatalf("insert: %v", err)
				}
				if _, err := coord.Insert(ctx, alice, "feed cat"); err != nil {
					t.Fatalf("insert: %v", err)
				}
				if _, err := coord.Load(ctx, alice); err != nil {
					t.Fatalf("reload: %v", err)
				}
				if _, err := coord.UpdateField(ctx, alice, created.ID, domain.CompletedField(true)); err != nil {
					t.Fatalf("complete: %v", err)
				}

				// Confirm the server view matches the settled snapshot.
				remote, err := client.List(ctx, alice)
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				local, _ := coord.Cache().Get(cache.KeyFor(alice.ID))
				if len(remote) != 2 || len(local) != 2 {
					t.Fatalf("expected two records, remote=%d local=%d", len(remote), len(local))
				}
				for i := range remote {
					if remote[i].ID != local[i].ID || remote[i].Completed != local[i].Completed || remote[i].Text != local[i].Text {
						t.Fatalf("snapshot diverged at %d: remote=%+v local=%+v", i, remote[i], local[i])
					}
				}

				info, err := archiver.Save(ctx, alice.ID, remote)
				if err != nil {
					t.Fatalf("archive: %v", err)
				}
				archived, err := archiver.Load(ctx, info.Key)
				if err != nil {
					t.Fatalf("load archive: %v", err)
				}
				if len(archived.Records) != 2 || archived.OwnerID != "alice" {
					t.Fatalf("unexpected archive %+v", archived)
				}

				snapshot := metricsRecorder.Snapshot()
				if snapshot.Results["insert"]["success"] != 2 {
					t.Fatalf("expected insert successes recorded: %+v", snapshot.Results)
				}
				if traceBuffer.Len() == 0 {
					t.Fatalf("expected trace exporter to emit spans")
				}
				var foundSpan bool
				for _, entry := range tracer.Entries() {
					if entry.Operation == "update_field" && entry.Status == "success" {
						foundSpan = true
						break
					}
				}
				if !foundSpan {
					t.Fatalf("expected trace entry for update_field, entries=%+v", tracer.Entries())
				}
			})
		}
	}
}
