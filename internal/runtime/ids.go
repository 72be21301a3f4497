package runtime

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator produces event ids. Ids only need to be unique within a session.
type IDGenerator func() string

// NewULIDGenerator returns a generator of lower-case monotonic ULIDs.
// It is safe for concurrent use. Clock readings outside the ULID time range
// are clamped to it.
func NewULIDGenerator(now func() time.Time) IDGenerator {
	if now == nil {
		now = time.Now
	}
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id, err := ulid.New(ulidTime(now()), entropy)
		if err != nil {
			id = ulid.Make()
		}
		return strings.ToLower(id.String())
	}
}

func ulidTime(t time.Time) uint64 {
	ms := t.UnixMilli()
	switch {
	case ms < 0:
		return 0
	case uint64(ms) > ulid.MaxTime():
		return ulid.MaxTime()
	}
	return uint64(ms)
}
