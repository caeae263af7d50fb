package paper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// TradeRecorder captures executed trades for later inspection.
type TradeRecorder interface {
	Record(TradeRecord) error
}

// JSONLRecorder appends trades as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// RecorderOption configures how the target file is opened.
type RecorderOption func(*int)

// WithTruncate discards any trades already in the file instead of appending to them.
func WithTruncate() RecorderOption {
	return func(flags *int) { *flags = *flags&^os.O_APPEND | os.O_TRUNC }
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
// Existing content is appended to unless WithTruncate is given.
func NewJSONLRecorder(path string, opts ...RecorderOption) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	for _, opt := range opts {
		opt(&flags)
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single trade to the underlying JSONL file.
func (r *JSONLRecorder) Record(trade TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return os.ErrClosed
	}
	return r.enc.Encode(trade)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
