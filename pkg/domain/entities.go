// Package domain defines the task record, the principal that owns it, and the
// persistence contracts shared by every tasklist component.
package domain

import (
	"strings"
	"time"
)

// TempIDPrefix marks identifiers generated client-side before the record store
// has assigned a permanent one.
const TempIDPrefix = "temp-"

// Record is a single task item owned by one principal.
type Record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	OwnerID   string    `json:"owner_id,omitempty"`
}

// IsTemporary reports whether the record still carries a speculative id.
func (r Record) IsTemporary() bool {
	return strings.HasPrefix(r.ID, TempIDPrefix)
}

// FieldGroup names the logical group of fields touched by a partial update.
type FieldGroup string

const (
	// FieldGroupCompletion covers the completed flag.
	FieldGroupCompletion FieldGroup = "completion"
	// FieldGroupText covers the item text.
	FieldGroupText FieldGroup = "text"
)

// Fields is a partial update. Nil members are left untouched.
type Fields struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// CompletedField builds a completion toggle.
func CompletedField(completed bool) Fields {
	return Fields{Completed: &completed}
}

// TextField builds a text edit.
func TextField(text string) Fields {
	return Fields{Text: &text}
}

// IsEmpty reports whether no field is set.
func (f Fields) IsEmpty() bool {
	return f.Text == nil && f.Completed == nil
}

// Group reports the field group the update belongs to. A text edit takes
// precedence when both members are set.
func (f Fields) Group() FieldGroup {
	if f.Text != nil {
		return FieldGroupText
	}
	return FieldGroupCompletion
}

// Validate rejects empty updates and blank text.
func (f Fields) Validate() error {
	if f.IsEmpty() {
		return Validationf("no fields to update")
	}
	if f.Text != nil && strings.TrimSpace(*f.Text) == "" {
		return Validationf("text is required")
	}
	return nil
}

// Apply returns a copy of r with the set fields merged in.
func (f Fields) Apply(r Record) Record {
	if f.Text != nil {
		r.Text = *f.Text
	}
	if f.Completed != nil {
		r.Completed = *f.Completed
	}
	return r
}

// Principal is an authenticated caller. Token carries the credential used to
// reach a remote record store on the principal's behalf and is never serialized.
type Principal struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Token    string `json:"-"`
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool {
	return p.ID != ""
}
