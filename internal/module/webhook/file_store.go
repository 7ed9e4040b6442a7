package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DurableQueueStore keeps the collection in a JSON file that is rewritten on
// every save and read back on every load, so it survives restarts.
type DurableQueueStore struct {
	path   string
	logger *zap.Logger
}

// NewDurableQueueStore creates a file-backed store at path.
func NewDurableQueueStore(path string, logger *zap.Logger) *DurableQueueStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DurableQueueStore{
		path:   path,
		logger: logger.Named("webhook-file-store"),
	}
}

// Load reads the file. A missing file is an empty queue; an unreadable or
// corrupt one is logged and also treated as empty.
func (s *DurableQueueStore) Load(_ context.Context) ([]*FailedWebhook, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("failed to read queue file, starting empty", zap.String("path", s.path), zap.Error(err))
		return nil, nil
	}

	var list []*FailedWebhook
	if err := json.Unmarshal(data, &list); err != nil {
		s.logger.Error("corrupt queue file, starting empty", zap.String("path", s.path), zap.Error(err))
		return nil, nil
	}
	return list, nil
}

// Save writes the collection to a temp file and renames it over the target.
func (s *DurableQueueStore) Save(_ context.Context, list []*FailedWebhook) error {
	if list == nil {
		list = []*FailedWebhook{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrQueueStore, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %v", ErrQueueStore, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrQueueStore, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %v", ErrQueueStore, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrQueueStore, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrQueueStore, err)
	}
	return nil
}

var _ QueueStore = (*DurableQueueStore)(nil)
