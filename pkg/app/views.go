package app

import (
	"sort"
	"strings"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
)

// ItemRef is a dashboard item together with the category holding it.
type ItemRef struct {
	Category model.Category
	Item     model.DashboardItem
}

// SearchResult holds every match for a query, in stored order.
type SearchResult struct {
	Tasks []model.Task
	Items []ItemRef
}

// ActiveTasks returns open tasks, optionally only those in status st.
// An empty st means every status except done.
func (c *Controller) ActiveTasks(st model.Status) []model.Task {
	snap := c.Snapshot()
	var out []model.Task
	for _, t := range snap.Tasks {
		if t.Status == model.StatusDone {
			continue
		}
		if st != "" && t.Status != st {
			continue
		}
		out = append(out, t)
	}
	return out
}

// DoneTasks is the archive, most recently completed first.
func (c *Controller) DoneTasks() []model.Task {
	snap := c.Snapshot()
	var out []model.Task
	for _, t := range snap.Tasks {
		if t.Status == model.StatusDone {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return completedAt(out[i]).After(completedAt(out[j]))
	})
	return out
}

func completedAt(t model.Task) time.Time {
	if t.CompletedAt == nil {
		return time.Time{}
	}
	return *t.CompletedAt
}

// StatusCounts counts tasks per status; every status has an entry.
func (c *Controller) StatusCounts() map[model.Status]int {
	counts := make(map[model.Status]int, len(model.StatusOrder))
	for _, st := range model.StatusOrder {
		counts[st] = 0
	}
	for _, t := range c.Snapshot().Tasks {
		counts[t.Status]++
	}
	return counts
}

// CompletedOn counts tasks completed on day's calendar date in day's location.
func (c *Controller) CompletedOn(day time.Time) int {
	n := 0
	for _, t := range c.Snapshot().Tasks {
		if t.CompletedAt != nil && sameDay(t.CompletedAt.In(day.Location()), day) {
			n++
		}
	}
	return n
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Search matches query case-insensitively against titles, details and memos.
// A blank query matches nothing.
func (c *Controller) Search(query string) SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	var res SearchResult
	if q == "" {
		return res
	}
	match := func(fields ...string) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				return true
			}
		}
		return false
	}

	snap := c.Snapshot()
	for _, t := range snap.Tasks {
		if match(t.Title, t.Details, t.Memo) {
			res.Tasks = append(res.Tasks, t)
		}
	}
	for _, cat := range model.Categories {
		for _, it := range snap.Dashboard.Items(cat) {
			if match(it.Text, it.Details, it.Memo) {
				res.Items = append(res.Items, ItemRef{Category: cat, Item: it})
			}
		}
	}
	return res
}

// DueItems lists dashboard items whose recurrence fires on day, ordered by
// time of day with untimed items last.
func (c *Controller) DueItems(day time.Time) []ItemRef {
	var out []ItemRef
	snap := c.Snapshot()
	for _, cat := range model.Categories {
		for _, it := range snap.Dashboard.Items(cat) {
			if recurrence.IsDue(it.Recurrence, day) {
				out = append(out, ItemRef{Category: cat, Item: it})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Item.Time, out[j].Item.Time
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})
	return out
}

// DueTasks lists open tasks whose due date is day.
func (c *Controller) DueTasks(day time.Time) []model.Task {
	want := model.NewDate(day)
	var out []model.Task
	for _, t := range c.Snapshot().Tasks {
		if t.Status != model.StatusDone && t.DueDate.Equal(want) {
			out = append(out, t)
		}
	}
	return out
}
