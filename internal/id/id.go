// Package id issues run identifiers. Ids are ULIDs so runs sort by start time in the journal.
package id

import (
	cryptoRand "crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader = ulid.Monotonic(cryptoRand.Reader, 0)
)

// NewRunID returns a ULID stamped with t. Ids issued within the same millisecond still
// increase.
func NewRunID(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

// RunTime recovers the millisecond timestamp a run id was issued with.
func RunTime(runID string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(runID)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()).UTC(), nil
}
