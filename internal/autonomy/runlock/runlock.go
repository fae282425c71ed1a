package runlock

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"portal_automation/internal/util"
)

// ErrHeld is returned by TryAcquire when another invocation holds the lock.
var ErrHeld = errors.New("automation lock is held by another run")

const DefaultStaleAfter = 15 * time.Minute

// Release gives the lock back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker serialises automation invocations that share one state document.
type Locker interface {
	TryAcquire(ctx context.Context) (Release, error)
}

// New builds a locker for driver "file", "redis" or "none"/"" (no locking,
// returns nil).
func New(driver string, path string, redisURL string, staleAfter time.Duration) (Locker, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "none", "off":
		return nil, nil
	case "file":
		return &FileLocker{Path: path, StaleAfter: staleAfter}, nil
	case "redis":
		l, err := NewRedisLocker(redisURL, "", staleAfter)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, errors.Newf("unknown lock driver %q", driver)
	}
}

// FileLocker holds an O_EXCL lock file next to the state document. A lock
// file older than StaleAfter is assumed abandoned and taken over.
type FileLocker struct {
	Path       string
	StaleAfter time.Duration
}

func (l *FileLocker) TryAcquire(ctx context.Context) (Release, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return nil, errors.New("lock path is empty")
	}
	stale := l.StaleAfter
	if stale <= 0 {
		stale = DefaultStaleAfter
	}
	content := fmt.Sprintf("pid=%d\nacquired_at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	ok, err := util.TryCreateLockFile(path, content, stale)
	if err != nil {
		return nil, errors.Wrapf(err, "create lock %s", path)
	}
	if !ok {
		return nil, errors.Wrapf(ErrHeld, "%s", path)
	}
	return func(context.Context) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}
