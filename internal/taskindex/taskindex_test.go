package taskindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkanvault/corevault/internal/taskparser"
)

func dueOn(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestInsertAndGet(t *testing.T) {
	idx := New()
	r := Record{ID: "t1", Path: "a.md", Status: StatusTodo, Text: "hi"}
	require.NoError(t, idx.Insert(r))

	got, ok := idx.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "hi", got.Text)
}

func TestInsertDuplicateIDConflict(t *testing.T) {
	idx := New()
	r := Record{ID: "t1", Path: "a.md", Status: StatusTodo, Text: "hi"}
	require.NoError(t, idx.Insert(r))
	err := idx.Insert(r)
	assert.Error(t, err)
}

func TestUpdateChangesSecondaryMaps(t *testing.T) {
	idx := New()
	r := Record{ID: "t1", Path: "a.md", Status: StatusTodo, Project: "alpha", Text: "hi"}
	require.NoError(t, idx.Insert(r))

	r.Project = "beta"
	require.NoError(t, idx.Update(r))

	alphaResults := idx.Query(Query{Project: "alpha"})
	assert.Empty(t, alphaResults)

	betaResults := idx.Query(Query{Project: "beta"})
	require.Len(t, betaResults, 1)
	assert.Equal(t, "t1", betaResults[0].ID)
}

func TestRemoveDeletesFromAllMaps(t *testing.T) {
	idx := New()
	r := Record{ID: "t1", Path: "a.md", Status: StatusTodo, Tags: []string{"x"}}
	require.NoError(t, idx.Insert(r))
	require.NoError(t, idx.Remove("t1"))

	_, ok := idx.Get("t1")
	assert.False(t, ok)
	assert.Empty(t, idx.Query(Query{}))
}

func TestReplaceFileMinimalDiff(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Status: StatusTodo, Text: "one"}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Status: StatusTodo, Text: "two"}))

	idx.ReplaceFile("a.md", []Record{
		{ID: "t1", Path: "a.md", Status: StatusTodo, Text: "one"}, // unchanged
		{ID: "t3", Path: "a.md", Status: StatusTodo, Text: "three"}, // new
	})

	_, ok := idx.Get("t1")
	assert.True(t, ok, "unchanged record stays")
	_, ok = idx.Get("t2")
	assert.False(t, ok, "removed record is gone")
	_, ok = idx.Get("t3")
	assert.True(t, ok, "new record is added")
}

func TestQueryStatusAndProjectIntersection(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Status: StatusTodo, Project: "x"}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Status: StatusDone, Project: "x"}))
	require.NoError(t, idx.Insert(Record{ID: "t3", Path: "a.md", Status: StatusTodo, Project: "y"}))

	results := idx.Query(Query{Status: StatusTodo, Project: "x"})
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)
}

func TestQueryTagsRequiresAll(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Tags: []string{"work", "urgent"}}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Tags: []string{"work"}}))

	results := idx.Query(Query{Tags: []string{"work", "urgent"}})
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)
}

func TestQueryDueRange(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Due: dueOn(2026, 1, 1)}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Due: dueOn(2026, 6, 1)}))
	require.NoError(t, idx.Insert(Record{ID: "t3", Path: "a.md", Due: nil}))

	from := dueOn(2026, 3, 1)
	results := idx.Query(Query{DueFrom: from})
	require.Len(t, results, 1)
	assert.Equal(t, "t2", results[0].ID)
}

func TestEmptyQueryMatchesAll(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md"}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "b.md"}))
	assert.Len(t, idx.Query(Query{}), 2)
}

func TestTodayFiltersToTodayDue(t *testing.T) {
	idx := New()
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)

	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Status: StatusTodo, Due: &today}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Status: StatusTodo, Due: &tomorrow}))

	results := idx.Today()
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)
}

func TestOverdueExcludesFutureAndDone(t *testing.T) {
	idx := New()
	past := dueOn(2020, 1, 1)
	future := dueOn(2099, 1, 1)

	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Status: StatusTodo, Due: past}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Status: StatusTodo, Due: future}))
	require.NoError(t, idx.Insert(Record{ID: "t3", Path: "a.md", Status: StatusDone, Due: past}))

	results := idx.Overdue()
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)
}

func TestSortedByDueExcludesMissingDueDate(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Due: dueOn(2026, 6, 1)}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Due: dueOn(2026, 1, 1)}))
	require.NoError(t, idx.Insert(Record{ID: "t3", Path: "a.md", Due: nil}))

	results := idx.SortedByDue(true)
	require.Len(t, results, 2)
	assert.Equal(t, "t2", results[0].ID)
	assert.Equal(t, "t1", results[1].ID)
}

func TestSortedByPriorityOrdersHighMediumLow(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Priority: taskparser.PriorityLow}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "a.md", Priority: taskparser.PriorityHigh}))
	require.NoError(t, idx.Insert(Record{ID: "t3", Path: "a.md", Priority: taskparser.PriorityMedium}))
	require.NoError(t, idx.Insert(Record{ID: "t4", Path: "a.md"})) // no priority, excluded

	results := idx.SortedByPriority()
	require.Len(t, results, 3)
	assert.Equal(t, "t2", results[0].ID)
	assert.Equal(t, "t3", results[1].ID)
	assert.Equal(t, "t1", results[2].ID)
}

func TestSnapshotRestoreRoundTrips(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Status: StatusTodo, Project: "x", Tags: []string{"work"}}))
	require.NoError(t, idx.Insert(Record{ID: "t2", Path: "b.md", Status: StatusDone}))

	data, err := idx.Snapshot()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Restore(data))
	assert.Equal(t, 2, restored.Len())

	results := restored.Query(Query{Project: "x"})
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)
}

func TestRestoreRejectsUndecodableSnapshot(t *testing.T) {
	idx := New()
	err := idx.Restore([]byte("not a valid snapshot"))
	assert.Error(t, err)
}

func TestSaveAndLoadSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/taskindex.bin"

	idx := New()
	require.NoError(t, idx.Insert(Record{ID: "t1", Path: "a.md", Status: StatusTodo}))
	require.NoError(t, idx.SaveSnapshotFile(path))

	restored := New()
	require.NoError(t, restored.LoadSnapshotFile(path))
	assert.Equal(t, 1, restored.Len())
}

func TestLoadSnapshotFileMissingIsNotError(t *testing.T) {
	idx := New()
	err := idx.LoadSnapshotFile("/nonexistent/path/taskindex.bin")
	assert.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}
