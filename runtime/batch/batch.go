// Package batch drives large item sets through the command interface in
// fixed-size batches.
//
// Batches run one at a time. Items of a batch are dispatched concurrently and
// settle independently: a failing item never cancels its siblings. A pacing
// delay separates consecutive batches to bound the burst rate against the
// backend. Cancellation is observed between batches only; a started batch
// always runs to completion.
package batch

import (
	"context"
	"time"
)

type (
	// Summary is the non-generic state of one batch.
	Summary struct {
		ID          string
		JobID       string
		Index       int
		Status      Status
		Total       int
		Processed   int
		Failed      int
		StartedAt   time.Time
		CompletedAt time.Time
	}

	// Batch is one chunk of a job.
	Batch[T any] struct {
		Summary
		Items  []T
		Errors []ItemError
	}

	// ItemError records the failure of one item.
	ItemError struct {
		// Item is the index of the item in the job.
		Item int
		// Batch is the index of the batch holding the item.
		Batch int
		Err   error
	}

	// Report is the outcome of a job.
	Report[T any] struct {
		JobID     string
		Batches   []*Batch[T]
		Total     int
		Processed int
		Failed    int
		// Cancelled is set when the context ended before every batch ran.
		Cancelled bool
	}

	// Dispatch sends one item to the backend.
	Dispatch[T any] func(ctx context.Context, item T) error

	// Observer is notified after every batch.
	Observer func(ctx context.Context, s Summary)

	// Status is the lifecycle state of a batch.
	Status string
)

// Batch statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Chunk partitions items into consecutive slices of at most size elements.
// It returns ceil(len(items)/size) chunks; a non-positive size yields one
// chunk holding every item.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// Succeeded returns the number of items dispatched without error.
func (r *Report[T]) Succeeded() int { return r.Processed - r.Failed }

// Errors returns every item error in item order.
func (r *Report[T]) Errors() []ItemError {
	var out []ItemError
	for _, b := range r.Batches {
		out = append(out, b.Errors...)
	}
	return out
}

// Sizes returns the number of items of every batch.
func (r *Report[T]) Sizes() []int {
	out := make([]int, len(r.Batches))
	for i, b := range r.Batches {
		out[i] = b.Total
	}
	return out
}

// Error implements error.
func (e ItemError) Error() string { return e.Err.Error() }

// Unwrap returns the item failure.
func (e ItemError) Unwrap() error { return e.Err }
