package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFieldsValidate(t *testing.T) {
	cases := []struct {
		name    string
		fields  Fields
		wantErr bool
	}{
		{"empty", Fields{}, true},
		{"blank text", TextField("   "), true},
		{"text", TextField("walk dog"), false},
		{"completed false", CompletedField(false), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fields.Validate()
			if tc.wantErr && !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestFieldsGroupAndApply(t *testing.T) {
	if CompletedField(true).Group() != FieldGroupCompletion {
		t.Fatalf("completion toggle misclassified")
	}
	text := "both"
	done := true
	both := Fields{Text: &text, Completed: &done}
	if both.Group() != FieldGroupText {
		t.Fatalf("text should take precedence")
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := Record{ID: "1", Text: "old", CreatedAt: at, OwnerID: "u"}
	got := both.Apply(orig)
	if got.Text != "both" || !got.Completed || got.ID != "1" || !got.CreatedAt.Equal(at) || got.OwnerID != "u" {
		t.Fatalf("unexpected apply result %+v", got)
	}
	if orig.Text != "old" {
		t.Fatalf("apply must not mutate its input")
	}
	if (Fields{}).Apply(orig) != orig {
		t.Fatalf("empty fields must be a no-op")
	}
}

func TestRecordJSONShape(t *testing.T) {
	r := Record{ID: "abc", Text: "x", Completed: true, CreatedAt: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"abc","text":"x","completed":true,"created_at":"2024-02-03T04:05:06Z"}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
	p, _ := json.Marshal(Principal{ID: "u1", Token: "secret"})
	if strings.Contains(string(p), "secret") {
		t.Fatalf("token leaked into json: %s", p)
	}
}

func TestTemporaryAndAuthenticated(t *testing.T) {
	if !(Record{ID: TempIDPrefix + "01h"}).IsTemporary() || (Record{ID: "0190"}).IsTemporary() {
		t.Fatalf("temporary classification wrong")
	}
	if (Principal{}).Authenticated() || !(Principal{ID: "u"}).Authenticated() {
		t.Fatalf("authenticated classification wrong")
	}
}

func TestErrorHelpers(t *testing.T) {
	if err := RecordNotFound("7"); !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), `"7"`) {
		t.Fatalf("unexpected not found error %v", err)
	}
	cause := errors.New("dial tcp: refused")
	err := Unavailable("list", cause)
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("unavailable must wrap both sentinel and cause: %v", err)
	}
	if err := Validationf("bad %s", "input"); !errors.Is(err, ErrValidationFailed) || err.Error() != "validation failed: bad input" {
		t.Fatalf("unexpected validation error %v", err)
	}
}
