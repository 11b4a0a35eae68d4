// Package checkpoint persists completed conversations so a batch run can be
// resumed after the process stops.
//
// A checkpoint is an append-only sequence of records, one JSON line each.
// A record is either a bare array of messages (untagged, placed positionally)
// or an object {"chat_id": n, "chat_log": [...]} placed at slot n. Later
// records for the same slot replace earlier ones.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCorruptCheckpoint matches every error caused by an unreadable record.
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("checkpoint store is closed")
)

// CorruptError reports the first malformed record of a checkpoint.
type CorruptError struct {
	Source string
	Line   int
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt checkpoint %s at line %d: %v", e.Source, e.Line, e.Err)
}

func (e *CorruptError) Unwrap() []error {
	return []error{ErrCorruptCheckpoint, e.Err}
}

// Store abstracts checkpoint persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append durably adds one record. It returns only after the record is
	// visible to a later Load.
	Append(ctx context.Context, rec Record) error

	// Load returns every record in write order. A missing checkpoint is
	// empty, not an error. Any malformed record aborts the load with a
	// *CorruptError.
	Load(ctx context.Context) ([]Record, error)

	// Reset discards the whole checkpoint.
	Reset(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// LoadStoreView loads the records of s and reconstructs the slot view.
func LoadStoreView(ctx context.Context, s Store) (View, error) {
	recs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return BuildView(recs), nil
}
