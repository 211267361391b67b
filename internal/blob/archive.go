package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"tasklist/internal/blob/core"
	"tasklist/pkg/domain"
)

const archivePrefix = "archives/"

// archiveStamp sorts lexically in time order.
const archiveStamp = "20060102T150405.000000000Z"

// Archive is a point-in-time export of one owner's records.
type Archive struct {
	OwnerID   string          `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
	Records   []domain.Record `json:"records"`
}

// Archiver writes and reads archives under archives/<owner>/<timestamp>.json.
type Archiver struct {
	store core.Store
	now   func() time.Time
}

// NewArchiver wraps store. now may be nil.
func NewArchiver(store core.Store, now func() time.Time) *Archiver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Archiver{store: store, now: now}
}

// Store returns the backing object store.
func (a *Archiver) Store() core.Store { return a.store }

// KeyFor returns the object key for an archive taken at ts.
func KeyFor(ownerID string, ts time.Time) string {
	return path.Join(archivePrefix+ownerID, ts.UTC().Format(archiveStamp)+".json")
}

// Save writes records as a new archive for the owner.
func (a *Archiver) Save(ctx context.Context, ownerID string, records []domain.Record) (core.Info, error) {
	if ownerID == "" {
		return core.Info{}, fmt.Errorf("archive: %w", domain.ErrUnauthorized)
	}
	if records == nil {
		records = []domain.Record{}
	}
	at := a.now()
	body, err := json.Marshal(Archive{OwnerID: ownerID, CreatedAt: at, Records: records})
	if err != nil {
		return core.Info{}, fmt.Errorf("encode archive: %w", err)
	}
	info, err := a.store.Put(ctx, KeyFor(ownerID, at), bytes.NewReader(body), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"owner": ownerID, "records": fmt.Sprint(len(records))},
	})
	if err != nil {
		return core.Info{}, domain.Unavailable("archive", err)
	}
	return info, nil
}

// List returns the owner's archives, oldest first.
func (a *Archiver) List(ctx context.Context, ownerID string) ([]core.Info, error) {
	infos, err := a.store.List(ctx, archivePrefix+ownerID+"/")
	if err != nil {
		return nil, domain.Unavailable("list archives", err)
	}
	return infos, nil
}

// Load reads one archive back.
func (a *Archiver) Load(ctx context.Context, key string) (Archive, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return Archive{}, err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return Archive{}, fmt.Errorf("read archive: %w", err)
	}
	var out Archive
	if err := json.Unmarshal(b, &out); err != nil {
		return Archive{}, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return out, nil
}
