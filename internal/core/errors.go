package core

import (
	"errors"
	"fmt"

	"tasklist/pkg/domain"
)

// Sentinels matched by errors.Is against a *MutationError.
var (
	ErrInsertFailed = errors.New("insert failed")
	ErrUpdateFailed = errors.New("update failed")
	ErrDeleteFailed = errors.New("delete failed")
)

// MutationError reports a durable write that failed after its speculative
// change was applied. The speculative change has been rolled back by the time
// the caller sees it.
type MutationError struct {
	Kind     MutationKind
	RecordID string
	// Fields is set for update failures so the caller can tell a failed
	// completion toggle from a failed text edit.
	Fields domain.FieldGroup
	Err    error
}

func (e *MutationError) Error() string {
	switch e.Kind {
	case KindUpdateField:
		return fmt.Sprintf("%s (%s) for %s: %v", e.sentinel(), e.Fields, e.RecordID, e.Err)
	case KindDelete:
		return fmt.Sprintf("%s for %s: %v", e.sentinel(), e.RecordID, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
	}
}

func (e *MutationError) sentinel() error {
	switch e.Kind {
	case KindInsert:
		return ErrInsertFailed
	case KindUpdateField:
		return ErrUpdateFailed
	case KindDelete:
		return ErrDeleteFailed
	}
	return errors.New("mutation failed")
}

// Is matches the kind sentinel.
func (e *MutationError) Is(target error) bool {
	return target == e.sentinel()
}

// Unwrap exposes the store failure.
func (e *MutationError) Unwrap() error { return e.Err }
