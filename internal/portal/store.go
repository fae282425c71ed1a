package portal

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"portal_automation/internal/util"
)

// Store loads and persists the whole state document.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}

// FileStore keeps the document in a single JSON file, replaced atomically on
// every save.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: strings.TrimSpace(path)}
}

func (s *FileStore) Load(ctx context.Context) (*Document, error) {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return nil, errors.New("state path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDocument(), nil
		}
		return nil, errors.Wrapf(err, "read state %s", path)
	}
	return ParseDocument(data)
}

func (s *FileStore) Save(ctx context.Context, doc *Document) error {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return errors.New("state path is empty")
	}
	if doc == nil {
		return errors.New("document is nil")
	}
	if err := util.EnsureParentDir(path); err != nil {
		return err
	}
	return util.WithFileLock(path+".lock", 5*time.Second, func() error {
		return util.WriteJSONAtomic(path, doc)
	})
}
