package checkpoint

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

// maxLineSize bounds a single record; long conversations easily exceed the
// scanner default.
const maxLineSize = 64 << 20

// Mode selects how AppendRecord opens the checkpoint file.
type Mode int

const (
	// ModeAppend appends to the file, creating it when absent.
	ModeAppend Mode = iota
	// ModeTruncate empties the file before writing the record.
	ModeTruncate
)

// FileStore implements Store on a JSONL file.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates a store backed by the file at path. The file is
// created on first append.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

// Path returns the checkpoint file path.
func (f *FileStore) Path() string {
	return f.path
}

// Append adds a record as one JSON line.
func (f *FileStore) Append(ctx context.Context, rec Record) error {
	return f.write(rec, ModeAppend)
}

// Write adds a record using the given mode.
func (f *FileStore) Write(rec Record, mode Mode) error {
	return f.write(rec, mode)
}

func (f *FileStore) write(rec Record, mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}

	data, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if mode == ModeTruncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	file, err := os.OpenFile(f.path, flags, 0600) // #nosec G304 - path chosen by the operator
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		_ = file.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	return file.Close()
}

// Load reads every record in write order.
func (f *FileStore) Load(ctx context.Context) ([]Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStoreClosed
	}

	file, err := os.Open(f.path) // #nosec G304 - path chosen by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() { _ = file.Close() }()

	var recs []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		rec, err := UnmarshalLine(scanner.Bytes())
		if err != nil {
			return nil, &CorruptError{Source: f.path, Line: line, Err: err}
		}
		recs = append(recs, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	return recs, nil
}

// Reset removes the checkpoint file.
func (f *FileStore) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Close marks the store closed.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// AppendRecord writes log to the checkpoint file at path, tagged with chatID
// when it is non-nil.
func AppendRecord(path string, log *chat.Log, chatID *int, mode Mode) error {
	store, err := NewFileStore(path)
	if err != nil {
		return err
	}
	return store.Write(Record{ChatID: chatID, Log: log}, mode)
}

// LoadView reconstructs the slot view of the checkpoint file at path.
// A missing file yields an empty view.
func LoadView(path string) (View, error) {
	store, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return LoadStoreView(context.Background(), store)
}

// LoadViewCount is LoadView resized to exactly expect slots.
func LoadViewCount(path string, expect int) (View, error) {
	view, err := LoadView(path)
	if err != nil {
		return nil, err
	}
	return view.Resize(expect), nil
}

// LoadLastMessages returns the last message content of every slot, nil for
// absent or empty conversations.
func LoadLastMessages(path string) ([]*string, error) {
	view, err := LoadView(path)
	if err != nil {
		return nil, err
	}
	return view.LastMessages(), nil
}
