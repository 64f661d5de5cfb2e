package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"losslessMarket/internal/model"
)

const maxLineBytes = 10 * 1024 * 1024

// JsonlStorage appends one JSON document per line. Each call opens the file
// in append mode, so several writers in one process share it safely.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// Path returns the output file.
func (s *JsonlStorage) Path() string {
	return s.path
}

// Reset truncates the output file, creating parent directories as needed.
func (s *JsonlStorage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.open(os.O_TRUNC)
	if err != nil {
		return err
	}
	return file.Close()
}

// PutLogBatch appends raw logs.
func (s *JsonlStorage) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	values := make([]interface{}, 0, len(logs))
	for _, record := range logs {
		values = append(values, record)
	}
	return s.Append(values...)
}

// PutEventBatch appends decoded events.
func (s *JsonlStorage) PutEventBatch(ctx context.Context, events []model.TypedEvent) error {
	values := make([]interface{}, 0, len(events))
	for _, event := range events {
		values = append(values, event)
	}
	return s.Append(values...)
}

// Append marshals each value onto its own line.
func (s *JsonlStorage) Append(values ...interface{}) error {
	if len(values) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, value := range values {
		line, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.open(os.O_APPEND)
	if err != nil {
		return err
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return file.Close()
}

func (s *JsonlStorage) open(mode int) (*os.File, error) {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	return file, nil
}

// ScanLines calls fn with the 1-based line number of every non-blank line.
func ScanLines(path string, fn func(lineNo int, line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}

// ScanEvents calls fn for every typed event line in path, in file order.
// Lines that fail to parse are passed to onError and skipped.
func ScanEvents(path string, fn func(model.TypedEventRecord) error, onError func(error)) error {
	return ScanLines(path, func(lineNo int, line []byte) error {
		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			if onError != nil {
				onError(fmt.Errorf("line %d: %w", lineNo, err))
			}
			return nil
		}
		return fn(record)
	})
}
