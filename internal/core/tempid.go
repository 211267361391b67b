package core

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"tasklist/pkg/domain"
)

// NewTempIDGenerator returns a generator of speculative record ids. Ids are
// ULIDs drawn from monotonic entropy, so two ids minted in the same
// millisecond still differ and sort in creation order.
func NewTempIDGenerator() func() string {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
		return domain.TempIDPrefix + strings.ToLower(id.String())
	}
}
