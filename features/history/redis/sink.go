// Package redis provides a Redis-backed execution history. Terminal
// executions are pushed onto a capped list so several processes can share
// one audit trail.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"goa.design/agentdesk/runtime/tracker"
)

// DefaultLimit is the number of executions retained by default.
const DefaultLimit = 1000

type (
	// Sink implements tracker.HistorySink on a Redis list, newest first.
	Sink struct {
		client redis.UniversalClient
		key    string
		limit  int64
		ttl    time.Duration
	}

	// Option configures a Sink.
	Option func(*Sink)

	record struct {
		ID             string    `json:"id"`
		CapabilityID   string    `json:"capability_id"`
		OperationID    string    `json:"operation_id"`
		SessionID      string    `json:"session_id,omitempty"`
		Input          string    `json:"input,omitempty"`
		Status         string    `json:"status"`
		Output         string    `json:"output,omitempty"`
		Error          string    `json:"error,omitempty"`
		CreatedAt      time.Time `json:"created_at"`
		CompletedAt    time.Time `json:"completed_at"`
		ResponseTimeMs int64     `json:"response_time_ms"`
	}
)

var _ tracker.HistorySink = (*Sink)(nil)

// WithKey sets the list key. Defaults to "agentdesk:executions".
func WithKey(key string) Option {
	return func(s *Sink) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLimit caps the number of executions kept.
func WithLimit(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.limit = int64(n)
		}
	}
}

// WithTTL expires the whole list after ttl without writes. Zero keeps it
// forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Sink) { s.ttl = ttl }
}

// New returns a Sink writing to client.
func New(client redis.UniversalClient, opts ...Option) (*Sink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &Sink{client: client, key: "agentdesk:executions", limit: DefaultLimit}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Append implements tracker.HistorySink.
func (s *Sink) Append(ctx context.Context, e tracker.Execution) error {
	data, err := json.Marshal(record{
		ID:             e.ID,
		CapabilityID:   e.CapabilityID,
		OperationID:    e.OperationID,
		SessionID:      e.SessionID,
		Input:          e.Input,
		Status:         string(e.Status),
		Output:         e.Output,
		Error:          e.Error,
		CreatedAt:      e.CreatedAt,
		CompletedAt:    e.CompletedAt,
		ResponseTimeMs: e.ResponseTimeMs,
	})
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.limit-1)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append execution: %w", err)
	}
	return nil
}

// Recent returns up to n executions, most recent first. A non-positive n
// returns everything retained.
func (s *Sink) Recent(ctx context.Context, n int) ([]tracker.Execution, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n) - 1
	}
	raw, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read executions: %w", err)
	}
	out := make([]tracker.Execution, 0, len(raw))
	for _, r := range raw {
		var rec record
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal execution: %w", err)
		}
		out = append(out, tracker.Execution{
			ID:             rec.ID,
			CapabilityID:   rec.CapabilityID,
			OperationID:    rec.OperationID,
			SessionID:      rec.SessionID,
			Input:          rec.Input,
			Status:         tracker.Status(rec.Status),
			Output:         rec.Output,
			Error:          rec.Error,
			CreatedAt:      rec.CreatedAt,
			CompletedAt:    rec.CompletedAt,
			ResponseTimeMs: rec.ResponseTimeMs,
		})
	}
	return out, nil
}
