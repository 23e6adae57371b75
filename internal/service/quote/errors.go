package quote

import (
	"errors"
	"fmt"

	"github.com/quotepulse/stock-tracker/internal/entity"
)

// ConnectionError is a transport-level failure on a gateway call (dial,
// timeout, reset, disconnect). Callers observing one should Reset the
// manager and either retry once or propagate.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("quote gateway %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err carries a transport-level gateway
// failure anywhere in its chain.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// AdmissionError is a subscribe call the gateway rejected as a logical
// failure (invalid code, rate limited, over quota). The ledger is left
// unmodified for the attempted codes; evictions that already completed in
// the same call are not rolled back.
type AdmissionError struct {
	Feed  entity.FeedType
	Codes []string
	Err   error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("subscribe %d codes on feed %s rejected: %v", len(e.Codes), e.Feed, e.Err)
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// BatchError is a failed chunk of a multi-chunk snapshot query. The whole
// read fails; no partial rows are returned.
type BatchError struct {
	Chunk  int
	Chunks int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("snapshot chunk %d/%d failed: %v", e.Chunk, e.Chunks, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
