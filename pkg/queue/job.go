package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job processes one message type.
type Job interface {
	Type() string
	Handle(ctx context.Context, id string, payload json.RawMessage) error
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	StateDone     State = "done"
	StateDead     State = "dead"
)

// Status is the last known state of a message, kept for the status TTL.
type Status struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParsePayload decodes a raw payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %T payload: %w", v, err)
	}
	return &v, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the message goes straight to the
// dead-letter list.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
