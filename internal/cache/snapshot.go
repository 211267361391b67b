package cache

import "tasklist/pkg/domain"

// Snapshot is an ordered, read-only list of records for one collection key.
// Every transformation returns a new slice; the receiver is never modified so a
// snapshot handed to observers or captured for rollback stays intact.
type Snapshot []domain.Record

// Find returns the record with the given id.
func (s Snapshot) Find(id string) (domain.Record, bool) {
	for _, r := range s {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Record{}, false
}

// Contains reports whether a record with id is present.
func (s Snapshot) Contains(id string) bool {
	_, ok := s.Find(id)
	return ok
}

// Prepend returns a new snapshot with r at the head.
func (s Snapshot) Prepend(r domain.Record) Snapshot {
	out := make(Snapshot, 0, len(s)+1)
	out = append(out, r)
	return append(out, s...)
}

// Update returns a new snapshot with fields merged into the record matching id.
// Other records are carried over unchanged and in the same order.
func (s Snapshot) Update(id string, fields domain.Fields) Snapshot {
	out := make(Snapshot, len(s))
	for i, r := range s {
		if r.ID == id {
			r = fields.Apply(r)
		}
		out[i] = r
	}
	return out
}

// Without returns a new snapshot with the record matching id removed.
func (s Snapshot) Without(id string) Snapshot {
	out := make(Snapshot, 0, len(s))
	for _, r := range s {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// IDs lists record ids in order.
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s))
	for i, r := range s {
		ids[i] = r.ID
	}
	return ids
}

