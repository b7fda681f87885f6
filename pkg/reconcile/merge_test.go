package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func task(id, title string, updated int) model.Task {
	return model.Task{ID: id, Title: title, Status: model.StatusDoing, CreatedAt: at(0), UpdatedAt: at(updated)}
}

func item(id, text string, updated int) model.DashboardItem {
	return model.DashboardItem{ID: id, Text: text, CreatedAt: at(0), UpdatedAt: at(updated)}
}

func emptySnapshot() model.Snapshot {
	return model.Snapshot{
		Tasks:     []model.Task{},
		Dashboard: model.Dashboard{}.Normalize(),
		Links:     model.LinkBook{Categories: []model.LinkCategory{}},
	}
}

func TestMergeKeepsLocalWhenRemoteEmpty(t *testing.T) {
	local := emptySnapshot()
	local.Tasks = []model.Task{task("t1", "A", 1)}
	local.Dashboard.Adhoc = []model.DashboardItem{item("d1", "Call", 1)}
	local.Links.Categories = []model.LinkCategory{{ID: "c1", Name: "Work", Items: []model.LinkItem{}}}

	assert.Equal(t, local, Merge(local, emptySnapshot()))
	assert.Equal(t, local, Merge(local, model.Snapshot{}))
}

func TestMergeTasksLastWriteWins(t *testing.T) {
	tests := []struct {
		name          string
		local, remote int
		want          string
	}{
		{"remote newer", 1, 2, "B"},
		{"local newer", 2, 1, "A"},
		{"tie keeps local", 2, 2, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := MergeTasks(
				[]model.Task{task("t1", "A", tt.local)},
				[]model.Task{task("t1", "B", tt.remote)},
			)
			require.Len(t, merged, 1)
			assert.Equal(t, tt.want, merged[0].Title)
		})
	}
}

func TestMergeTasksFallsBackToCreatedAt(t *testing.T) {
	local := model.Task{ID: "t1", Title: "A", CreatedAt: at(5)}
	remote := model.Task{ID: "t1", Title: "B", CreatedAt: at(1), UpdatedAt: at(3)}
	merged := MergeTasks([]model.Task{local}, []model.Task{remote})
	assert.Equal(t, "A", merged[0].Title)
}

func TestMergeTasksUnion(t *testing.T) {
	local := []model.Task{task("l1", "local only", 1), task("both", "mine", 5)}
	remote := []model.Task{
		{ID: "r-old", Title: "old", CreatedAt: at(-10)},
		task("both", "theirs", 3),
		{ID: "r-new", Title: "new", CreatedAt: at(10)},
	}

	merged := MergeTasks(local, remote)
	ids := make([]string, len(merged))
	for i, m := range merged {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"l1", "both", "r-new", "r-old"}, ids)
	assert.Equal(t, "mine", merged[1].Title)
}

func TestMergeIndependentOfRemoteOrder(t *testing.T) {
	local := emptySnapshot()
	local.Tasks = []model.Task{task("a", "A", 1), task("b", "B", 9)}
	local.Dashboard.Routine = []model.DashboardItem{item("d1", "x", 1)}
	local.Links.Categories = []model.LinkCategory{{ID: "c2", Name: "mine"}}

	remote := emptySnapshot()
	remote.Tasks = []model.Task{task("b", "B2", 3), task("a", "A2", 4), task("c", "C", 0), task("d", "D", 0)}
	remote.Dashboard.Routine = []model.DashboardItem{item("d1", "y", 5), item("d2", "z", 0)}
	remote.Dashboard.Adhoc = []model.DashboardItem{item("d3", "w", 0)}
	remote.Links.Categories = []model.LinkCategory{{ID: "c3"}, {ID: "c1"}, {ID: "c2", Name: "theirs"}}

	want := Merge(local, remote)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := remote.Clone()
		rng.Shuffle(len(shuffled.Tasks), func(i, j int) {
			shuffled.Tasks[i], shuffled.Tasks[j] = shuffled.Tasks[j], shuffled.Tasks[i]
		})
		rng.Shuffle(len(shuffled.Dashboard.Routine), func(i, j int) {
			shuffled.Dashboard.Routine[i], shuffled.Dashboard.Routine[j] = shuffled.Dashboard.Routine[j], shuffled.Dashboard.Routine[i]
		})
		rng.Shuffle(len(shuffled.Links.Categories), func(i, j int) {
			shuffled.Links.Categories[i], shuffled.Links.Categories[j] = shuffled.Links.Categories[j], shuffled.Links.Categories[i]
		})
		assert.Equal(t, want, Merge(local, shuffled))
	}

	assert.Equal(t, "A2", want.Tasks[0].Title)
	assert.Equal(t, "B", want.Tasks[1].Title)
	assert.Equal(t, "y", want.Dashboard.Routine[0].Text)
	assert.Len(t, want.Dashboard.Routine, 2)
	assert.Len(t, want.Dashboard.Adhoc, 1)
}

func TestMergeDashboardKeepsLocalRecurrence(t *testing.T) {
	weekly := recurrence.Rule{Type: recurrence.Weekly, Weekday: time.Tuesday}

	local := item("d1", "Standup", 1)
	local.Recurrence = weekly
	newer := item("d1", "Standup (renamed)", 2)
	newer.Recurrence = recurrence.Rule{Type: recurrence.None}

	merged := MergeDashboard(
		model.Dashboard{Routine: []model.DashboardItem{local}},
		model.Dashboard{Routine: []model.DashboardItem{newer}},
	)
	require.Len(t, merged.Routine, 1)
	assert.Equal(t, "Standup (renamed)", merged.Routine[0].Text)
	assert.Equal(t, weekly, merged.Routine[0].Recurrence)

	// a missing rule is treated the same as none
	newer.Recurrence = recurrence.Rule{}
	merged = MergeDashboard(
		model.Dashboard{Routine: []model.DashboardItem{local}},
		model.Dashboard{Routine: []model.DashboardItem{newer}},
	)
	assert.Equal(t, weekly, merged.Routine[0].Recurrence)

	// a newer remote rule of its own still wins
	daily := recurrence.Rule{Type: recurrence.Daily}
	newer.Recurrence = daily
	merged = MergeDashboard(
		model.Dashboard{Routine: []model.DashboardItem{local}},
		model.Dashboard{Routine: []model.DashboardItem{newer}},
	)
	assert.Equal(t, daily, merged.Routine[0].Recurrence)
}

func TestMergeDashboardFollowsWinnerCategory(t *testing.T) {
	merged := MergeDashboard(
		model.Dashboard{Adhoc: []model.DashboardItem{item("d1", "Call", 1), item("d2", "Mail", 1)}},
		model.Dashboard{Schedule: []model.DashboardItem{item("d1", "Call", 4)}},
	)
	assert.Len(t, merged.Adhoc, 1)
	assert.Equal(t, "d2", merged.Adhoc[0].ID)
	require.Len(t, merged.Schedule, 1)
	assert.Equal(t, "d1", merged.Schedule[0].ID)
	assert.NotNil(t, merged.Routine)
}

func TestMergeLinksByCategory(t *testing.T) {
	local := model.LinkBook{Categories: []model.LinkCategory{
		{ID: "c1", Name: "Work", Items: []model.LinkItem{{ID: "i1", URL: "https://a.example.com"}}},
		{ID: "c2", Name: "Unsynced", Items: []model.LinkItem{}},
	}}
	remote := model.LinkBook{Categories: []model.LinkCategory{
		{ID: "c9", Name: "Other device", Items: []model.LinkItem{}},
		{ID: "c1", Name: "Work (renamed)", Items: []model.LinkItem{}},
	}}

	merged := MergeLinks(local, remote)
	require.Len(t, merged.Categories, 3)
	assert.Equal(t, "Work (renamed)", merged.Categories[0].Name)
	assert.Empty(t, merged.Categories[0].Items)
	assert.Equal(t, "Unsynced", merged.Categories[1].Name)
	assert.Equal(t, "c9", merged.Categories[2].ID)
}

func TestDuplicateRemoteRowsResolveStably(t *testing.T) {
	first, second := task("t1", "first", 3), task("t1", "second", 3)
	a := MergeTasks(nil, []model.Task{first, second})
	b := MergeTasks(nil, []model.Task{second, first})
	require.Len(t, a, 1)
	assert.Equal(t, a, b)

	newer := task("t1", "newer", 4)
	assert.Equal(t, "newer", MergeTasks(nil, []model.Task{newer, first})[0].Title)

	x, y := item("d1", "x", 3), item("d1", "y", 3)
	m1 := MergeDashboard(model.Dashboard{}, model.Dashboard{Routine: []model.DashboardItem{x, y}})
	m2 := MergeDashboard(model.Dashboard{}, model.Dashboard{Routine: []model.DashboardItem{y, x}})
	require.Len(t, m1.Routine, 1)
	assert.Equal(t, m1, m2)

	c1 := model.LinkCategory{ID: "c1", Name: "Alpha", Items: []model.LinkItem{}}
	c2 := model.LinkCategory{ID: "c1", Name: "Beta", Items: []model.LinkItem{}}
	l1 := MergeLinks(model.LinkBook{}, model.LinkBook{Categories: []model.LinkCategory{c1, c2}})
	l2 := MergeLinks(model.LinkBook{}, model.LinkBook{Categories: []model.LinkCategory{c2, c1}})
	assert.Equal(t, l1, l2)
	assert.Equal(t, "Alpha", l1.Categories[0].Name)
}

func TestMergeDoesNotAlias(t *testing.T) {
	local := emptySnapshot()
	local.Tasks = []model.Task{task("t1", "A", 1)}
	remote := emptySnapshot()
	remote.Tasks = []model.Task{{ID: "t1", Title: "B", UpdatedAt: at(5), Links: []model.Link{{ID: "l1"}}}}

	merged := Merge(local, remote)
	merged.Tasks[0].Links[0].ID = "changed"
	assert.Equal(t, "l1", remote.Tasks[0].Links[0].ID)
}
