package base

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// DebugLogger writes JSON objects as JSONL.
// It is safe for concurrent use.
type DebugLogger struct {
	mu       sync.Mutex
	f        *os.File
	enc      *json.Encoder
	provider string
	model    string
}

// NewDebugLogger creates a debug logger that writes to the specified
// path, stamping every record with the provider and model names.
// If path is empty, returns nil (debug logging disabled).
func NewDebugLogger(path, provider, model string) (*DebugLogger, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &DebugLogger{f: f, enc: json.NewEncoder(f), provider: provider, model: model}, nil
}

func (l *DebugLogger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Log writes one JSON line of the given record type.
// Typical record types: "request", "frame", "chunk".
func (l *DebugLogger) Log(recordType string, data any) error {
	if l == nil || l.enc == nil {
		return nil
	}
	rec := DebugRecord{
		Time:     time.Now().UTC().Format(time.RFC3339Nano),
		Provider: l.provider,
		Model:    l.model,
		Type:     recordType,
		Data:     data,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(rec)
}

// DebugRecord is a normalized JSONL entry.
type DebugRecord struct {
	Time     string `json:"time"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Type     string `json:"type"`
	Data     any    `json:"data,omitempty"`
}
