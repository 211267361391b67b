// Package blobtest holds behaviour checks shared by every blob backend.
package blobtest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"tasklist/internal/blob/core"
)

// RunStoreContract exercises the write-once, list and delete semantics every
// core.Store must provide. The store must start empty.
func RunStoreContract(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	info, err := store.Put(ctx, "archives/u1/a.json", strings.NewReader(`{"a":1}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"owner": "u1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "archives/u1/a.json" || info.Size != 7 {
		t.Fatalf("unexpected put info %+v", info)
	}
	if _, err := store.Put(ctx, "archives/u1/a.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists on overwrite, got %v", err)
	}
	if _, err := store.Put(ctx, "archives/u2/b.json", strings.NewReader(`{}`), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, rc, err := store.Get(ctx, "archives/u1/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(body) != `{"a":1}` {
		t.Fatalf("unexpected body %q (%v)", body, err)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type lost: %+v", got)
	}
	if _, _, err := store.Get(ctx, "archives/missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := store.List(ctx, "archives/u1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "archives/u1/a.json" {
		t.Fatalf("unexpected prefix listing %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected two keys ascending, got %+v", all)
	}

	deleted, err := store.Delete(ctx, "archives/u1/a.json")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "archives/u1/a.json")
	if err != nil || deleted {
		t.Fatalf("second delete should report missing: %v %v", deleted, err)
	}
}
