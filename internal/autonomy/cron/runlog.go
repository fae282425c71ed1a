package cron

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"portal_automation/internal/util"
)

const runLogLockWait = 5 * time.Second

// AppendRunRecord writes rec as one json line at the end of the log at path.
// Concurrent writers are serialised through a sibling ".lock" file.
func AppendRunRecord(path string, rec RunRecord) error {
	logPath := strings.TrimSpace(path)
	if logPath == "" {
		return errors.New("run log path is empty")
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode run record")
	}
	line = append(line, '\n')
	if err := util.EnsureParentDir(logPath); err != nil {
		return err
	}
	return util.WithFileLock(logPath+".lock", runLogLockWait, func() error {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "open run log")
		}
		if _, err := f.Write(line); err != nil {
			_ = f.Close()
			return errors.Wrap(err, "append run record")
		}
		return f.Close()
	})
}

// ReadRunRecords returns up to limit of the newest records in the log, newest
// first. A missing log yields no records; unreadable lines are skipped.
func ReadRunRecords(path string, limit int) ([]RunRecord, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read run log")
	}

	var all []RunRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec RunRecord
		if json.Unmarshal(raw, &rec) == nil {
			all = append(all, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan run log")
	}

	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunRecord, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
