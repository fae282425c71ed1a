package cronrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/autonomy/runlock"
	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

type countingStore struct {
	portal.Store
	saves   int
	saveErr error
}

func (s *countingStore) Save(ctx context.Context, doc *portal.Document) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(ctx, doc)
}

type memoryRecorder struct {
	records []cron.RunRecord
}

func (r *memoryRecorder) Record(ctx context.Context, rec cron.RunRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type notification struct {
	subject string
	body    string
}

type memoryNotifier struct {
	sent []notification
}

func (n *memoryNotifier) Notify(ctx context.Context, subject string, body string) error {
	n.sent = append(n.sent, notification{subject: subject, body: body})
	return nil
}

func TestInvokeSavesOnceAndRecords(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	store := &countingStore{Store: portal.NewFileStore(statePath)}
	recorder := &memoryRecorder{}
	notifier := &memoryNotifier{}
	core, logs := observer.New(zapcore.InfoLevel)

	report, err := Invoke(context.Background(), Deps{
		Store:     store,
		Generator: staticFactory(newFakeGenerator(t)),
		Locker:    &runlock.FileLocker{Path: statePath + ".run.lock"},
		Recorder:  recorder,
		Notifier:  notifier,
		Logger:    zap.New(core).Sugar(),
	}, InvokeOptions{Now: scenarioNow(t)})
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.True(t, report.StateChanged())
	assert.True(t, report.Saved)
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, 1, store.saves)
	assert.Len(t, recorder.records, 3)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, 3, logs.FilterMessage("automation job finished").Len())

	_, err = os.Stat(statePath + ".run.lock")
	assert.True(t, os.IsNotExist(err), "run lock must be released")

	doc, err := portal.NewFileStore(statePath).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03T00:35:00Z", doc.UpdatedAt)
	assert.Equal(t, "2024-06-03T06:05:00+05:30", doc.AIAutomation.NewsDigest.LastRunAt)
	assert.Len(t, doc.BlogPosts, 1)
	require.NotNil(t, doc.AIAutomation.OperationsWatch.LastReport)

	// Nothing is due any more: no save, no records.
	second, err := Invoke(context.Background(), Deps{
		Store:     store,
		Generator: staticFactory(newFakeGenerator(t)),
		Recorder:  recorder,
	}, InvokeOptions{Now: scenarioNow(t)})
	require.NoError(t, err)
	assert.False(t, second.StateChanged())
	assert.False(t, second.Saved)
	assert.Equal(t, 1, store.saves)
	assert.Len(t, recorder.records, 3)
}

func TestInvokeSkipsWhenLockHeld(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	lockPath := statePath + ".run.lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("pid=1\n"), 0o644))
	store := &countingStore{Store: portal.NewFileStore(statePath)}
	gen := newFakeGenerator(t)

	report, err := Invoke(context.Background(), Deps{
		Store:     store,
		Generator: staticFactory(gen),
		Locker:    &runlock.FileLocker{Path: lockPath},
	}, InvokeOptions{Now: scenarioNow(t), Targets: []string{"news,blog"}})
	require.NoError(t, err)

	assert.True(t, report.Locked)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.Equal(t, StatusSkipped, res.Status)
		assert.Equal(t, "Another automation run is in progress.", res.Message)
	}
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, 0, store.saves)
	assert.Empty(t, gen.requests)

	_, err = os.Stat(lockPath)
	assert.NoError(t, err, "foreign lock must stay in place")
}

func TestInvokeSaveFailure(t *testing.T) {
	dir := t.TempDir()
	store := &countingStore{
		Store:   portal.NewFileStore(filepath.Join(dir, "state.json")),
		saveErr: errors.New("disk full"),
	}
	notifier := &memoryNotifier{}

	report, err := Invoke(context.Background(), Deps{
		Store:     store,
		Generator: staticFactory(newFakeGenerator(t)),
		Notifier:  notifier,
	}, InvokeOptions{Now: scenarioNow(t), Targets: []string{"news"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.False(t, report.Saved)
	assert.Equal(t, 1, report.ExitCode())
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusSuccess, report.Results[0].Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "automation failed: state save", notifier.sent[0].subject)
	assert.Contains(t, notifier.sent[0].body, "disk full")
}

func TestInvokeNotifiesJobFailures(t *testing.T) {
	dir := t.TempDir()
	gen := newFakeGenerator(t)
	gen.errs[llm.TaskOperationsWatch] = &llm.APIError{Provider: "gemini", Code: 503, Message: "backend unavailable"}
	recorder := &memoryRecorder{}
	notifier := &memoryNotifier{}

	report, err := Invoke(context.Background(), Deps{
		Store:     portal.NewFileStore(filepath.Join(dir, "state.json")),
		Generator: staticFactory(gen),
		Recorder:  recorder,
		Notifier:  notifier,
	}, InvokeOptions{Now: scenarioNow(t), Force: true})
	require.NoError(t, err)
	assert.True(t, report.Saved)
	assert.Equal(t, 1, report.ExitCode())

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "automation failed: operations_watch", notifier.sent[0].subject)
	assert.Contains(t, notifier.sent[0].body, "**operations_watch** (retryable)")

	require.Len(t, recorder.records, 3)
	failed := recorder.records[2]
	assert.Equal(t, portal.JobOperationsWatch, failed.Job)
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, portal.OutcomeRetryable, failed.Outcome)
	assert.True(t, failed.Forced)
	assert.Contains(t, failed.Error, "backend unavailable")
}

func TestInvokeRequiresStore(t *testing.T) {
	_, err := Invoke(context.Background(), Deps{}, InvokeOptions{})
	assert.Error(t, err)
}

func TestFileRunLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	log := FileRunLog{Path: path}
	require.NoError(t, log.Record(context.Background(), cron.RunRecord{Job: portal.JobNewsDigest, Status: StatusSuccess}))
	require.NoError(t, log.Record(context.Background(), cron.RunRecord{Job: portal.JobBlogResearch, Status: StatusError}))

	records, err := cron.ReadRunRecords(path, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
