package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrLockTimeout is returned by WithFileLock when the lock file could not be
// created before the timeout elapsed.
var ErrLockTimeout = errors.New("acquire lock timeout")

func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteJSONAtomic writes payload as indented JSON to a temporary sibling and
// renames it over path, so readers never observe a half-written document.
func WriteJSONAtomic(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal json")
	}
	return WriteFileAtomic(path, data)
}

func WriteFileAtomic(path string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is empty")
	}
	if err := EnsureParentDir(path); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UTC().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

var writeLockContent = func(f *os.File, content string) error {
	_, err := f.WriteString(content)
	return err
}

// TryCreateLockFile creates lockPath exclusively. It reports false without an
// error when the file already exists. A lock file older than staleAfter is
// removed and the creation retried once.
func TryCreateLockFile(lockPath string, content string, staleAfter time.Duration) (bool, error) {
	if err := EnsureParentDir(lockPath); err != nil {
		return false, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			werr := writeLockContent(f, content)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				_ = os.Remove(lockPath)
				return false, errors.Wrapf(werr, "write lock file %s", lockPath)
			}
			return true, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return false, err
		}
		if staleAfter <= 0 || attempt > 0 {
			return false, nil
		}
		info, statErr := os.Stat(lockPath)
		if statErr != nil || time.Since(info.ModTime()) <= staleAfter {
			return false, nil
		}
		_ = os.Remove(lockPath)
	}
	return false, nil
}

// WithFileLock runs fn while holding lockPath, polling until timeout.
func WithFileLock(lockPath string, timeout time.Duration, fn func() error) error {
	start := time.Now().UTC()
	for {
		ok, err := TryCreateLockFile(lockPath, "", 0)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if timeout > 0 && time.Since(start) > timeout {
			return errors.Wrapf(ErrLockTimeout, "%s", lockPath)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer os.Remove(lockPath)
	return fn()
}
