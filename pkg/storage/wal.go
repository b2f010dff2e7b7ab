package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vjranagit/promdash/pkg/types"
)

// WAL is a write-ahead log of incoming write requests, one JSON entry
// per line, flushed to disk on a fixed cadence.
type WAL struct {
	path       string
	filename   string
	file       *os.File
	writer     *bufio.Writer
	mu         sync.Mutex
	flushTimer *time.Timer
	closed     bool
}

type walEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Series    []types.Series `json:"series"`
}

// NewWAL creates a write-ahead log under dataPath.
func NewWAL(dataPath string) (*WAL, error) {
	walPath := filepath.Join(dataPath, "wal")
	if err := os.MkdirAll(walPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating WAL directory: %w", err)
	}

	filename := filepath.Join(walPath, fmt.Sprintf("wal-%d.log", time.Now().UnixNano()))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening WAL file: %w", err)
	}

	w := &WAL{
		path:     walPath,
		filename: filename,
		file:     file,
		writer:   bufio.NewWriter(file),
	}
	w.flushTimer = time.AfterFunc(time.Second, w.autoFlush)
	return w, nil
}

// Append records a write request.
func (w *WAL) Append(req *types.WriteRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("WAL closed")
	}

	data, err := json.Marshal(walEntry{
		Timestamp: time.Now(),
		TenantID:  req.TenantID,
		Series:    req.Series,
	})
	if err != nil {
		return fmt.Errorf("marshaling WAL entry: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("writing WAL entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing WAL entry: %w", err)
	}
	return nil
}

// Flush forces buffered entries to disk.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if w.closed {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flushing WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing WAL: %w", err)
	}
	return nil
}

func (w *WAL) autoFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.flushLocked()
	w.flushTimer.Reset(time.Second)
}

// Close flushes and closes the log, then removes its file: by the time
// the store closes its WAL, all appended writes have already reached the
// block storage, so replaying them on the next start would be redundant.
// The file survives only an unclean shutdown.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.flushTimer != nil {
		w.flushTimer.Stop()
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return os.Remove(w.filename)
}

// ReplayWAL replays all WAL files under dataPath through handler and
// removes each file once replayed.
func ReplayWAL(dataPath string, handler func(*types.WriteRequest) error) error {
	walPath := filepath.Join(dataPath, "wal")

	entries, err := os.ReadDir(walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading WAL directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := filepath.Join(walPath, entry.Name())
		if err := replayWALFile(filename, handler); err != nil {
			return fmt.Errorf("replaying %s: %w", filename, err)
		}
		os.Remove(filename)
	}
	return nil
}

func replayWALFile(filename string, handler func(*types.WriteRequest) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var entry walEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("unmarshaling WAL entry: %w", err)
		}
		req := &types.WriteRequest{TenantID: entry.TenantID, Series: entry.Series}
		if err := handler(req); err != nil {
			return fmt.Errorf("replaying entry: %w", err)
		}
	}
	return scanner.Err()
}
