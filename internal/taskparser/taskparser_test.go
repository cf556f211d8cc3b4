package taskparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicCheckbox(t *testing.T) {
	body := "- [ ] buy milk\n- [x] done thing\n"
	tasks := Parse(body)
	require.Len(t, tasks, 2)
	assert.False(t, tasks[0].Done)
	assert.Equal(t, "buy milk", tasks[0].CleanText)
	assert.True(t, tasks[1].Done)
	assert.Equal(t, 1, tasks[0].Line)
	assert.Equal(t, 2, tasks[1].Line)
}

func TestParseIgnoresNonCheckboxLines(t *testing.T) {
	body := "# heading\nsome text\n- not a checkbox\n- [ ] real one\n"
	tasks := Parse(body)
	require.Len(t, tasks, 1)
	assert.Equal(t, "real one", tasks[0].CleanText)
}

func TestParseDueDateISO(t *testing.T) {
	tasks := Parse("- [ ] ship release @due:2026-08-01\n")
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Due)
	assert.Equal(t, 2026, tasks[0].Due.Year())
	assert.Equal(t, time.August, tasks[0].Due.Month())
	assert.Equal(t, 1, tasks[0].Due.Day())
	assert.Equal(t, "ship release", tasks[0].CleanText)
}

func TestParseDueDateRelativeTokens(t *testing.T) {
	tasks := Parse("- [ ] a @due:today\n- [ ] b @due:tomorrow\n")
	require.Len(t, tasks, 2)
	require.NotNil(t, tasks[0].Due)
	require.NotNil(t, tasks[1].Due)
	assert.True(t, tasks[1].Due.After(*tasks[0].Due))
}

func TestParsePriorityNumericAndNamed(t *testing.T) {
	cases := []struct {
		line string
		want Priority
	}{
		{"- [ ] a !p1", PriorityHigh},
		{"- [ ] b !p2", PriorityMedium},
		{"- [ ] c !p3", PriorityMedium},
		{"- [ ] d !p4", PriorityLow},
		{"- [ ] e !p5", PriorityLow},
		{"- [ ] f !high", PriorityHigh},
		{"- [ ] g !medium", PriorityMedium},
		{"- [ ] h !low", PriorityLow},
	}
	for _, c := range cases {
		tasks := Parse(c.line + "\n")
		require.Len(t, tasks, 1, c.line)
		assert.Equal(t, c.want, tasks[0].Priority, c.line)
	}
}

func TestParseTagsAccumulate(t *testing.T) {
	tasks := Parse("- [ ] thing #work #urgent #work\n")
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"work", "urgent"}, tasks[0].Tags)
}

func TestParseProjectLastWins(t *testing.T) {
	tasks := Parse("- [ ] thing +alpha +beta\n")
	require.Len(t, tasks, 1)
	assert.Equal(t, "beta", tasks[0].Project)
}

func TestParseDueLastWins(t *testing.T) {
	tasks := Parse("- [ ] thing @due:2026-01-01 @due:2026-12-31\n")
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Due)
	assert.Equal(t, 2026, tasks[0].Due.Year())
	assert.Equal(t, time.December, tasks[0].Due.Month())
}

func TestParsePriorityLastWins(t *testing.T) {
	tasks := Parse("- [ ] thing !high !low\n")
	require.Len(t, tasks, 1)
	assert.Equal(t, PriorityLow, tasks[0].Priority)
}

func TestParseTaskIDComment(t *testing.T) {
	tasks := Parse("- [ ] thing <!-- tid:01936000-0000-7000-8000-000000000001 -->\n")
	require.Len(t, tasks, 1)
	assert.Equal(t, "01936000-0000-7000-8000-000000000001", tasks[0].TaskID)
	assert.Equal(t, "thing", tasks[0].CleanText)
}

func TestParseNoPropertiesLeavesCleanTextUntouched(t *testing.T) {
	tasks := Parse("- [ ] plain task with no annotations\n")
	require.Len(t, tasks, 1)
	assert.Equal(t, "plain task with no annotations", tasks[0].CleanText)
	assert.Equal(t, NoPriority, tasks[0].Priority)
	assert.Empty(t, tasks[0].Tags)
	assert.Empty(t, tasks[0].Project)
}

func TestParseIsPureAndRestartable(t *testing.T) {
	body := "- [ ] a #x\n- [x] b @due:2026-01-01\n"
	first := Parse(body)
	second := Parse(body)
	assert.Equal(t, first, second)
}

func TestParseAllCombinedAnnotations(t *testing.T) {
	tasks := Parse("- [ ] ship it @due:2026-09-01 !p1 #release +launchpad <!-- tid:abc -->\n")
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "ship it", task.CleanText)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Equal(t, []string{"release"}, task.Tags)
	assert.Equal(t, "launchpad", task.Project)
	assert.Equal(t, "abc", task.TaskID)
	require.NotNil(t, task.Due)
}
