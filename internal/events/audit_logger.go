// Package events provides the append-only run audit log and a non-blocking
// event bus for best-effort observers.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// Default maximum audit file size before rotation (100MB)
	DefaultMaxLogSize = 100 * 1024 * 1024
	// Audit file extension
	LogFileExtension = ".jsonl"
	// Archive directory name
	ArchiveDir = "archive"
)

// AuditRow is one line of the run audit trail: one row per policy verdict,
// approval outcome, tool result and terminal event, in step order.
type AuditRow struct {
	Timestamp time.Time      `json:"timestamp"`
	Step      int            `json:"step"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// AuditLogger appends JSONL rows to a per-run file, rotating to an archive
// directory when the size cap is reached.
type AuditLogger struct {
	mu              sync.Mutex
	file            *os.File
	currentSize     int64
	maxSize         int64
	logPath         string
	rotationCounter int

	// diag receives write-failure diagnostics. Audit failures must never
	// affect run control flow, but they are not silently invisible either.
	diag *log.Logger
}

// NewAuditLogger creates an audit logger writing to logPath. diag may be nil,
// in which case write failures are discarded.
func NewAuditLogger(logPath string, maxSize int64, diag *log.Logger) (*AuditLogger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}

	logger := &AuditLogger{
		logPath: logPath,
		maxSize: maxSize,
		diag:    diag,
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}

	return logger, nil
}

func (l *AuditLogger) openLogFile() error {
	file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit file: %w", err)
	}

	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// LogBestEffort writes one audit row, swallowing any failure after reporting
// it through the diagnostic logger. The run itself never fails on audit I/O.
func (l *AuditLogger) LogBestEffort(step int, rowType string, data map[string]any) {
	if l == nil {
		return
	}
	if err := l.write(step, rowType, data); err != nil && l.diag != nil {
		l.diag.Printf("audit write failed (row dropped): %v", err)
	}
}

func (l *AuditLogger) write(step int, rowType string, data map[string]any) error {
	row := AuditRow{
		Timestamp: time.Now().UTC(),
		Step:      step,
		Type:      rowType,
		Data:      data,
	}

	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal audit row: %w", err)
	}
	payload = append(payload, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentSize+int64(len(payload)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit file: %w", err)
		}
	}

	n, err := l.file.Write(payload)
	if err != nil {
		return fmt.Errorf("failed to write audit row: %w", err)
	}

	l.currentSize += int64(n)
	return nil
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close current audit file: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(l.logPath), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	l.rotationCounter++
	baseName := filepath.Base(l.logPath)
	archiveName := fmt.Sprintf("%s.%s.%d%s",
		baseName[:len(baseName)-len(LogFileExtension)],
		timestamp,
		l.rotationCounter,
		LogFileExtension)

	if err := os.Rename(l.logPath, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("failed to archive audit file: %w", err)
	}

	return l.openLogFile()
}

// Close flushes and closes the audit file.
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			return err
		}
		return l.file.Close()
	}
	return nil
}

// Path returns the audit file path.
func (l *AuditLogger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logPath
}
