package app

import (
	"testing"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestTaskViews(t *testing.T) {
	c, clk, _, _ := newTestController(t)
	due, _ := model.ParseDate("2024-01-26")

	mustAdd := func(in TaskInput) model.Task {
		task, err := c.AddTask(in)
		require.NoError(t, err)
		return task
	}
	mustAdd(TaskInput{Title: "review PR", Status: model.StatusReview})
	mustAdd(TaskInput{Title: "deploy", DueDate: due})
	first := mustAdd(TaskInput{Title: "old chore", Status: model.StatusDone})
	clk.advance(time.Hour)
	mustAdd(TaskInput{Title: "fresh chore", Status: model.StatusDone})
	clk.advance(-48 * time.Hour)
	mustAdd(TaskInput{Title: "ancient chore", Status: model.StatusDone})

	assert.Equal(t, []string{"deploy", "review PR"}, titles(c.ActiveTasks("")))
	assert.Equal(t, []string{"review PR"}, titles(c.ActiveTasks(model.StatusReview)))
	assert.Empty(t, c.ActiveTasks(model.StatusPause))

	assert.Equal(t, []string{"fresh chore", "old chore", "ancient chore"}, titles(c.DoneTasks()))

	counts := c.StatusCounts()
	assert.Equal(t, 3, counts[model.StatusDone])
	assert.Equal(t, 1, counts[model.StatusDoing])
	assert.Equal(t, 0, counts[model.StatusWaiting])
	assert.Len(t, counts, len(model.StatusOrder))

	assert.Equal(t, 2, c.CompletedOn(*first.CompletedAt))
	assert.Equal(t, []string{"deploy"}, titles(c.DueTasks(time.Date(2024, 1, 26, 23, 0, 0, 0, time.UTC))))
}

func TestSearch(t *testing.T) {
	c, _, _, _ := newTestController(t)
	task, err := c.AddTask(TaskInput{Title: "Quarterly report", Details: "numbers"})
	require.NoError(t, err)
	_, err = c.AddTask(TaskInput{Title: "Groceries"})
	require.NoError(t, err)
	_, err = c.AppendTaskMemo(task.ID, "asked Finance for Q3")
	require.NoError(t, err)
	_, err = c.AddItem(model.CategoryRoutine, "Finance standup")
	require.NoError(t, err)

	res := c.Search("FINANCE")
	assert.Equal(t, []string{"Quarterly report"}, titles(res.Tasks))
	require.Len(t, res.Items, 1)
	assert.Equal(t, model.CategoryRoutine, res.Items[0].Category)

	assert.Empty(t, c.Search("  ").Tasks)
	assert.Empty(t, c.Search("nothing matches").Items)
}

func TestDueItems(t *testing.T) {
	c, _, _, _ := newTestController(t)
	add := func(cat model.Category, text string, rule recurrence.Rule, hhmm string) {
		it, err := c.AddItem(cat, text)
		require.NoError(t, err)
		_, err = c.SetRecurrence(it.ID, rule)
		require.NoError(t, err)
		if hhmm != "" {
			_, err = c.SetItemTime(it.ID, hhmm)
			require.NoError(t, err)
		}
	}
	add(model.CategoryRoutine, "stretch", recurrence.Rule{Type: recurrence.Daily}, "")
	add(model.CategoryRoutine, "payroll", recurrence.Rule{Type: recurrence.MonthlyLast, Weekday: time.Friday}, "16:00")
	add(model.CategorySchedule, "standup", recurrence.Rule{Type: recurrence.Weekdays}, "09:30")
	add(model.CategoryAdhoc, "never", recurrence.Rule{Type: recurrence.None}, "")

	lastFriday := time.Date(2024, 1, 26, 0, 0, 0, 0, time.UTC)
	var got []string
	for _, ref := range c.DueItems(lastFriday) {
		got = append(got, ref.Item.Text)
	}
	assert.Equal(t, []string{"standup", "payroll", "stretch"}, got)

	got = nil
	for _, ref := range c.DueItems(lastFriday.AddDate(0, 0, -7)) {
		got = append(got, ref.Item.Text)
	}
	assert.Equal(t, []string{"standup", "stretch"}, got)
}
