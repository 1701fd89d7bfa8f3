package infra

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/petekp/claude-hud-sub006/internal/domain"
)

// recordFile is the on-disk shape of one agent-published session record.
// The file name is a hash of the path, so the path lives in the body.
type recordFile struct {
	Path string `json:"path"`
	domain.SessionRecord
}

// FileRecordSource implements domain.RecordSource by reading the agent's
// state directory: one <hash>.json record per session path plus <hash>.lock
// presence files whose body is the locked path.
type FileRecordSource struct {
	dir    string
	logger *zap.Logger
}

// NewFileRecordSource creates a source over the agent state directory.
func NewFileRecordSource(dir string, logger *zap.Logger) *FileRecordSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRecordSource{dir: dir, logger: logger}
}

// Snapshot reads all current records keyed by session path. A missing state
// directory is an empty snapshot. Malformed files are skipped.
func (s *FileRecordSource) Snapshot() (map[string]domain.SessionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]domain.SessionRecord{}, nil
		}
		return nil, err
	}

	lockedPaths := make([]string, 0)
	records := make(map[string]domain.SessionRecord)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(s.dir, entry.Name())

		switch filepath.Ext(entry.Name()) {
		case ".lock":
			data, err := os.ReadFile(full)
			if err != nil {
				continue
			}
			if path := firstTrimmedLine(string(data)); path != "" {
				lockedPaths = append(lockedPaths, filepath.Clean(path))
			}

		case ".json":
			data, err := os.ReadFile(full)
			if err != nil {
				continue
			}
			var rf recordFile
			if err := json.Unmarshal(data, &rf); err != nil {
				s.logger.Debug("skipping malformed session record",
					zap.String("file", entry.Name()),
					zap.Error(err))
				continue
			}
			if rf.Path == "" || !rf.State.Valid() {
				s.logger.Debug("skipping session record with missing path or state",
					zap.String("file", entry.Name()))
				continue
			}
			records[filepath.Clean(rf.Path)] = rf.SessionRecord
		}
	}

	// A lock on a path covers the path itself and everything under it.
	for path, rec := range records {
		for _, locked := range lockedPaths {
			if path == locked || strings.HasPrefix(path, locked+string(filepath.Separator)) {
				rec.IsLocked = true
				records[path] = rec
				break
			}
		}
	}

	return records, nil
}

// Watch emits a coalesced signal whenever the state directory changes, so
// the poll loop can reconcile ahead of its next tick. The channel closes
// when ctx is cancelled.
func (s *FileRecordSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(wake)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default: // already pending, coalesce
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Debug("record watcher error", zap.Error(err))
			}
		}
	}()
	return wake, nil
}

func firstTrimmedLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Ensure FileRecordSource implements domain.RecordSource.
var _ domain.RecordSource = (*FileRecordSource)(nil)
