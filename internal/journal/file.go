package journal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the journal file inside a deployment directory.
const FileName = "journal.jsonl"

// FileJournal appends one JSON line per message to a file.
type FileJournal struct {
	path string
	mu   sync.Mutex
	// dirSynced is set once the parent directory has been fsynced, so the
	// file's directory entry is durable.
	dirSynced bool
}

// NewFileJournal returns a journal backed by path. The file is created on
// the first Record.
func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path}
}

// Path returns the journal file path.
func (j *FileJournal) Path() string { return j.path }

// Record implements Journal. The line is fsynced before Record returns, and
// the first Record also fsyncs the parent directory.
func (j *FileJournal) Record(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := Marshal(m)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if err := dropTornTail(f); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync journal: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	if !j.dirSynced {
		if err := SyncDir(filepath.Dir(j.path)); err != nil {
			return err
		}
		j.dirSynced = true
	}
	return nil
}

// SyncDir fsyncs a directory so that files created or renamed in it survive
// a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return d.Close()
}

// Read implements Journal. A missing file is an empty journal. A final line
// without its newline is the remains of an interrupted write and is skipped.
// Any malformed complete line is an error.
func (j *FileJournal) Read(ctx context.Context) ([]Message, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	messages := []Message{}
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("read journal: %w", readErr)
		}
		complete := len(line) > 0 && line[len(line)-1] == '\n'
		line = bytes.TrimSpace(line)
		switch {
		case len(line) == 0:
		case !complete:
			slog.Warn("ignoring torn journal line", "path", j.path, "line", lineNo)
		default:
			m, err := Unmarshal(line)
			if err != nil {
				return nil, fmt.Errorf("journal line %d: %w", lineNo, err)
			}
			messages = append(messages, m)
		}
		if errors.Is(readErr, io.EOF) {
			return messages, nil
		}
	}
}

// dropTornTail truncates bytes after the last newline. They are the remains
// of a write whose Record never returned, so nothing depends on them.
func dropTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	size := info.Size()
	buf := make([]byte, 4096)
	for end := size; end > 0; {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return fmt.Errorf("read journal tail: %w", err)
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return nil
			}
			return truncate(f, keep)
		}
		end = start
	}
	if size == 0 {
		return nil
	}
	return truncate(f, 0)
}

func truncate(f *os.File, size int64) error {
	slog.Warn("discarding torn journal tail", "path", f.Name(), "offset", size)
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	return nil
}
