package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"blockcraft.dev/internal/sim/engine"
)

const (
	segmentLayout = "2006-01-02-15"
	segmentExt    = ".jsonl.zst"
)

var ErrJournalClosed = errors.New("journal closed")

// Journal is an append-only JSONL log of T split into one zstd segment per
// UTC hour, named <prefix>-YYYY-MM-DD-HH.jsonl.zst. Each Append ends in a
// flushed zstd block, so readers see entries of the open segment.
type Journal[T any] struct {
	dir    string
	prefix string
	clock  func() time.Time

	mu      sync.Mutex
	segment string
	file    *os.File
	zw      *zstd.Encoder
	buf     *bufio.Writer
	lines   *json.Encoder
	count   uint64
	closed  bool
}

func NewJournal[T any](dir, prefix string) *Journal[T] {
	return &Journal[T]{dir: dir, prefix: prefix, clock: time.Now}
}

// Append writes v as one line. A new hour closes the open segment first.
func (j *Journal[T]) Append(v T) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}

	seg := j.clock().UTC().Format(segmentLayout)
	if seg != j.segment {
		if err := j.open(seg); err != nil {
			return fmt.Errorf("journal segment %s: %w", seg, err)
		}
	}
	// json.Encoder terminates every value with '\n'.
	if err := j.lines.Encode(v); err != nil {
		return err
	}
	if err := j.buf.Flush(); err != nil {
		return err
	}
	if err := j.zw.Flush(); err != nil {
		return err
	}
	j.count++
	return nil
}

// Appended counts entries written since the journal was created.
func (j *Journal[T]) Appended() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close ends the open segment. Later appends fail with ErrJournalClosed.
func (j *Journal[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return j.finish()
}

func (j *Journal[T]) path(seg string) string {
	return filepath.Join(j.dir, j.prefix+"-"+seg+segmentExt)
}

// open switches to segment seg. The zstd encoder is reused across segments;
// reopening an hour appends a new frame to its file.
func (j *Journal[T]) open(seg string) error {
	if err := j.finish(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path(seg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if j.zw == nil {
		j.zw, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return err
		}
	} else {
		j.zw.Reset(f)
	}
	j.file = f
	j.buf = bufio.NewWriterSize(j.zw, 32*1024)
	j.lines = json.NewEncoder(j.buf)
	j.segment = seg
	return nil
}

func (j *Journal[T]) finish() error {
	if j.file == nil {
		return nil
	}
	err := j.buf.Flush()
	if cerr := j.zw.Close(); err == nil {
		err = cerr
	}
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.file, j.buf, j.lines = nil, nil, nil
	j.segment = ""
	return err
}

const auditPrefix = "audit"

func AuditDir(dataDir string) string { return filepath.Join(dataDir, "audit") }

// AuditLogger journals world mutations under <data>/audit.
type AuditLogger struct {
	*Journal[engine.AuditEntry]
}

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{NewJournal[engine.AuditEntry](AuditDir(dataDir), auditPrefix)}
}

func (l *AuditLogger) WriteAudit(e engine.AuditEntry) error { return l.Append(e) }
