package cron

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID   string
	Note string
}

func entryID(e entry) string { return e.ID }

func TestPrependHistoryDedupesAndCaps(t *testing.T) {
	var history []entry
	for i := 0; i < 12; i++ {
		history = PrependHistory(history, entry{ID: fmt.Sprintf("e%d", i)}, entryID, 10)
	}
	require.Len(t, history, 10)
	assert.Equal(t, "e11", history[0].ID)
	assert.Equal(t, "e2", history[9].ID)

	history = PrependHistory(history, entry{ID: "e5", Note: "again"}, entryID, 10)
	require.Len(t, history, 10)
	assert.Equal(t, entry{ID: "e5", Note: "again"}, history[0])

	seen := map[string]int{}
	for _, e := range history {
		seen[e.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "duplicate id %s", id)
	}
}

func TestPrependHistorySameIDTwiceKeepsOne(t *testing.T) {
	history := PrependHistory(nil, entry{ID: "news_20240506", Note: "first"}, entryID, 10)
	history = PrependHistory(history, entry{ID: "news_20240506", Note: "second"}, entryID, 10)

	require.Len(t, history, 1)
	assert.Equal(t, "second", history[0].Note)
}

func TestPrependHistoryDoesNotMutateInput(t *testing.T) {
	in := []entry{{ID: "a"}, {ID: "b"}}
	out := PrependHistory(in, entry{ID: "b"}, entryID, 0)

	assert.Equal(t, []entry{{ID: "a"}, {ID: "b"}}, in)
	assert.Equal(t, []entry{{ID: "b"}, {ID: "a"}}, out)
}

func TestRunLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "automation.jsonl")
	start := time.Date(2024, 5, 6, 0, 30, 0, 0, time.UTC)

	recs, err := ReadRunRecords(path, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, AppendRunRecord(path, RunRecord{Job: "news_digest", StartedAt: start, Status: "success"}))
	require.NoError(t, AppendRunRecord(path, RunRecord{Job: "blog_research", StartedAt: start, Status: "error", Error: "boom"}))

	recs, err = ReadRunRecords(path, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "blog_research", recs[0].Job)
	assert.Equal(t, "boom", recs[0].Error)

	recs, err = ReadRunRecords(path, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
