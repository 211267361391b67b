package domain

import (
	"context"
	"net/http"
)

// RecordStore is the authoritative holder of records. Every call is scoped to
// the principal: implementations only ever read or write records whose owner
// is p.ID, and report records owned by someone else as ErrNotFound.
type RecordStore interface {
	List(ctx context.Context, p Principal) ([]Record, error)
	Create(ctx context.Context, p Principal, text string) (Record, error)
	UpdateFields(ctx context.Context, p Principal, id string, fields Fields) (Record, error)
	Delete(ctx context.Context, p Principal, id string) error
}

// SessionGate maps an inbound request to an authenticated principal, or fails
// with ErrUnauthorized.
type SessionGate interface {
	Authenticate(r *http.Request) (Principal, error)
}
