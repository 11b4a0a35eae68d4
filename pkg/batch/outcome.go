package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrRetriesExhausted is returned for a conversation whose every attempt failed.
	ErrRetriesExhausted = errors.New("maximum number of requests reached")
	// ErrInvalidConfig wraps configuration errors reported before any work starts.
	ErrInvalidConfig = errors.New("invalid batch configuration")
)

// InvalidResponseError is an error payload returned by the API.
type InvalidResponseError struct {
	Type    string
	Code    string
	Message string
}

func (e *InvalidResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("invalid response (%s/%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("invalid response (%s): %s", e.Type, e.Message)
}

// Status is the result of one conversation in a run.
type Status int

const (
	// StatusCompleted means the turn was appended and persisted.
	StatusCompleted Status = iota
	// StatusExhausted means every attempt failed at the transport level.
	StatusExhausted
	// StatusInvalid means the API answered with an error or unreadable body.
	StatusInvalid
	// StatusPersistFailed means the checkpoint write failed.
	StatusPersistFailed
	// StatusCanceled means the run's context ended first.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusExhausted:
		return "exhausted"
	case StatusInvalid:
		return "invalid"
	case StatusPersistFailed:
		return "persist_failed"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome describes what happened to one dispatched conversation.
type Outcome struct {
	Index    int
	Status   Status
	Attempts int
	Err      error
}

// OK reports whether the conversation was completed and persisted.
func (o Outcome) OK() bool {
	return o.Status == StatusCompleted
}

// Report summarizes a run. Outcomes cover dispatched conversations only, in
// input order; conversations found complete in the checkpoint are listed in
// Skipped.
type Report struct {
	RunID    string
	Total    int
	Skipped  []int
	Outcomes []Outcome
}

// Completed returns one flag per dispatched conversation, in input order.
func (r *Report) Completed() []bool {
	out := make([]bool, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.OK()
	}
	return out
}

// Failed returns the indices left incomplete by this run.
func (r *Report) Failed() []int {
	var out []int
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o.Index)
		}
	}
	return out
}

// Done reports whether every conversation is now complete.
func (r *Report) Done() bool {
	return len(r.Failed()) == 0
}

// Counts tallies outcomes by status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}
