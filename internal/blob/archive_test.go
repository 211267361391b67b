package blob

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasklist/internal/blob/core"
	"tasklist/internal/infra/blob/memory"
	"tasklist/pkg/domain"
)

func TestArchiverRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
	a := NewArchiver(memory.New(), func() time.Time { return at })
	records := []domain.Record{{ID: "1", Text: "x", OwnerID: "u1", CreatedAt: at}}

	info, err := a.Save(context.Background(), "u1", records)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if info.Key != "archives/u1/20240506T070809.000000010Z.json" {
		t.Fatalf("unexpected key %s", info.Key)
	}
	if _, err := a.Save(context.Background(), "u1", records); !errors.Is(err, domain.ErrStoreUnavailable) || !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected collision to surface as unavailable, got %v", err)
	}

	list, err := a.List(context.Background(), "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if other, _ := a.List(context.Background(), "u10"); len(other) != 0 {
		t.Fatalf("prefix leaked across owners: %+v", other)
	}
	got, err := a.Load(context.Background(), info.Key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.OwnerID != "u1" || len(got.Records) != 1 || got.Records[0].Text != "x" || !got.CreatedAt.Equal(at) {
		t.Fatalf("unexpected archive %+v", got)
	}
}

func TestArchiverRequiresOwner(t *testing.T) {
	a := NewArchiver(memory.New(), nil)
	if _, err := a.Save(context.Background(), "", nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := a.Load(context.Background(), "archives/none.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestArchiverEmptyListEncodesArray(t *testing.T) {
	a := NewArchiver(memory.New(), nil)
	info, err := a.Save(context.Background(), "u", nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := a.Load(context.Background(), info.Key)
	if err != nil || got.Records == nil || len(got.Records) != 0 {
		t.Fatalf("expected empty records array, got %+v (%v)", got, err)
	}
	if a.Store().Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: core.DriverMemory})
	if err != nil || s.Driver() != core.DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	s, err = Open(context.Background(), Config{FSRoot: t.TempDir()})
	if err != nil || s.Driver() != core.DriverFilesystem {
		t.Fatalf("default fs: %v", err)
	}
	if _, err := Open(context.Background(), Config{Driver: core.DriverS3}); err == nil {
		t.Fatalf("s3 without bucket should fail")
	}
	if _, err := Open(context.Background(), Config{Driver: "tape"}); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TASKLIST_BLOB_DRIVER", "s3")
	t.Setenv("TASKLIST_BLOB_S3_BUCKET", "tasks")
	t.Setenv("TASKLIST_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := ConfigFromEnv()
	if cfg.Driver != core.DriverS3 || cfg.S3.Bucket != "tasks" || !cfg.S3.PathStyle {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
