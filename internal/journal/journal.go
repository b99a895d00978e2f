package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Header is the column order of every journal file.
var Header = []string{"time", "topic", "partition", "offset", "kind", "error", "payload"}

// Entry is one failed message.
type Entry struct {
	Time      time.Time
	Topic     string
	Partition int32
	Offset    int64
	Kind      string
	Err       string
	Payload   []byte
}

func (e Entry) row() []string {
	return []string{
		e.Time.UTC().Format(time.RFC3339Nano),
		e.Topic,
		strconv.FormatInt(int64(e.Partition), 10),
		strconv.FormatInt(e.Offset, 10),
		e.Kind,
		e.Err,
		string(e.Payload),
	}
}

// csvFile wraps an opened CSV file with its writer.
type csvFile struct {
	file   *os.File
	writer *csv.Writer
}

// Journal appends failed messages to per-topic CSV files so they can be
// inspected or replayed offline. The first time a topic is seen the file is
// created with a header row; files left over from a previous run are
// appended to as-is.
type Journal struct {
	dir   string
	mu    sync.Mutex
	files map[string]*csvFile // keyed by topic
}

// Open creates the journal directory if needed.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Journal{dir: dir, files: make(map[string]*csvFile)}, nil
}

// Record appends e to the file of its topic.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	name := e.Topic
	if name == "" {
		name = "unknown"
	}

	cf, ok := j.files[name]
	if !ok {
		var err error
		cf, err = j.open(name)
		if err != nil {
			return err
		}
		j.files[name] = cf
	}

	if err := cf.writer.Write(e.row()); err != nil {
		return err
	}
	cf.writer.Flush()
	return cf.writer.Error()
}

func (j *Journal) open(name string) (*csvFile, error) {
	fp := filepath.Join(j.dir, fmt.Sprintf("%s.failed.csv", filepath.Base(name)))

	_, err := os.Stat(fp)
	exists := !os.IsNotExist(err)

	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file %s: %w", fp, err)
	}

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write journal header for %s: %w", fp, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to flush journal header for %s: %w", fp, err)
		}
	}
	return &csvFile{file: f, writer: w}, nil
}

// Close flushes and closes every open file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var first error
	for name, cf := range j.files {
		cf.writer.Flush()
		if err := cf.writer.Error(); err != nil && first == nil {
			first = err
		}
		if err := cf.file.Close(); err != nil && first == nil {
			first = err
		}
		delete(j.files, name)
	}
	return first
}
