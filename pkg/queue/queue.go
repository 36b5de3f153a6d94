package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher enqueues work without consuming it.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// Config controls the worker pool and retry policy.
type Config struct {
	Workers    int           `yaml:"workers" default:"1" validate:"min=1"`
	RetryLimit int           `yaml:"retry_limit" default:"3" validate:"min=0"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	KeyPrefix  string        `yaml:"key_prefix" default:"finscout:queue"`
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Stats reports queue depths.
type Stats struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

// ParsePayload converts a handler payload into T. Payloads arrive as
// json.RawMessage from Redis or as a typed value when handed over in-process.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		if p == nil {
			return nil, fmt.Errorf("nil payload")
		}
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	case []byte:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal map payload: %w", err)
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
