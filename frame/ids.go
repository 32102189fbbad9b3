package frame

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TempIDPrefix marks client-assigned provisional message ids so they can
// never collide with server-assigned ids.
const TempIDPrefix = "temp-"

// NewRequestID returns a unique, lexically increasing request id.
// ulid.Make draws from a process-wide monotonic entropy source and is safe
// for concurrent use.
func NewRequestID() string {
	return ulid.Make().String()
}

// NewTempID returns a provisional id for an optimistic message.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
