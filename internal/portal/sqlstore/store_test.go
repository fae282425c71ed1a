package sqlstore

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/portal"
)

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect(" PostgreSQL ")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestBindRewritesPlaceholdersForPostgres(t *testing.T) {
	pg := New(nil, DialectPostgres, "")
	assert.Equal(t, "a = $1 AND b = $2", pg.bind("a = ? AND b = ?"))

	lite := New(nil, DialectSQLite, "")
	assert.Equal(t, "a = ?", lite.bind("a = ?"))
	assert.Equal(t, DefaultDocumentName, lite.name)
}

func TestPostgresLoadAndSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres, "portal")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM portal_state WHERE name = $1`)).
		WithArgs("portal").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).
			AddRow(`{"users": [], "ai_automation": {"news_digest": {"last_run_at": "2024-05-06T06:05:00+05:30"}}}`))

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06T06:05:00+05:30", doc.AIAutomation.NewsDigest.LastRunAt)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO portal_state (name, document, updated_at) VALUES ($1, $2, $3)`)).
		WithArgs("portal", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Save(ctx, doc))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO automation_runs`)).
		WithArgs("news_digest", sqlmock.AnyArg(), sqlmock.AnyArg(), "success", "success", true, "done", "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Record(ctx, cron.RunRecord{
		Job:        "news_digest",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Status:     "success",
		Outcome:    "success",
		Forced:     true,
		Message:    "done",
	}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadMissingRowIsEmptyDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document FROM portal_state`)).
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	doc, err := New(db, DialectPostgres, "").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.BlogPosts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, DialectSQLite, filepath.Join(t.TempDir(), "state.db"), "")
	require.NoError(t, err)
	defer store.Close()

	doc, err := store.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, doc.Set("users", []map[string]string{{"id": "u1"}}))
	doc.RecordActivity(time.Now(), "Seeded", "Admin")
	require.NoError(t, doc.PrependBlogPost(portal.BlogPost{ID: "blog_1", Slug: "first"}))
	require.NoError(t, store.Save(ctx, doc))

	// Saving twice exercises the upsert path.
	doc.AIAutomation.BlogResearch.LastRunAt = "2024-05-06T06:00:00+05:30"
	require.NoError(t, store.Save(ctx, doc))

	reloaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06T06:00:00+05:30", reloaded.AIAutomation.BlogResearch.LastRunAt)
	assert.True(t, reloaded.BlogSlugs()["first"])
	_, ok := reloaded.Raw("users")
	assert.True(t, ok)

	start := time.Date(2024, 5, 6, 0, 30, 0, 0, time.UTC)
	for i, job := range []string{"news_digest", "blog_research", "operations_watch"} {
		require.NoError(t, store.Record(ctx, cron.RunRecord{
			Job:        job,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			FinishedAt: start.Add(time.Duration(i)*time.Minute + time.Second),
			Status:     "success",
			Forced:     i == 2,
		}))
	}
	runs, err := store.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "operations_watch", runs[0].Job)
	assert.Equal(t, "blog_research", runs[1].Job)
	assert.True(t, runs[0].StartedAt.Equal(start.Add(2*time.Minute)))
	assert.True(t, runs[0].Forced)
	assert.False(t, runs[1].Forced)
}
