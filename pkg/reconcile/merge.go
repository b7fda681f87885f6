// Package reconcile merges a pulled remote snapshot into local state.
//
// Tasks and dashboard items are resolved per id by last write (Stamp). Link
// categories are resolved per id with the remote copy taken whole. Entities held
// locally keep their local order; remote-only entities follow in a fixed order, so
// the result never depends on the order rows came back from the remote store.
package reconcile

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
)

// Merge combines local and remote. An all-empty remote means the remote store has
// never been written, and local comes back unchanged.
func Merge(local, remote model.Snapshot) model.Snapshot {
	if remote.IsEmpty() {
		return local.Clone()
	}
	return model.Snapshot{
		Tasks:     MergeTasks(local.Tasks, remote.Tasks),
		Dashboard: MergeDashboard(local.Dashboard, remote.Dashboard),
		Links:     MergeLinks(local.Links, remote.Links),
	}
}

// remoteWins is true only when the remote copy is strictly newer. Ties keep local.
func remoteWins(local, remote time.Time) bool {
	return remote.After(local)
}

// displaces decides between two remote rows sharing an id: the newer stamp wins,
// equal stamps fall back to the smaller encoding so row order never matters.
func displaces(prevStamp, candStamp time.Time, prev, cand any) bool {
	if !candStamp.Equal(prevStamp) {
		return candStamp.After(prevStamp)
	}
	return encoding(cand) < encoding(prev)
}

func encoding(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// newestFirst orders remote-only entities by createdAt desc, then id.
func newestFirst(aCreated time.Time, aID string, bCreated time.Time, bID string) bool {
	if !aCreated.Equal(bCreated) {
		return aCreated.After(bCreated)
	}
	return aID < bID
}

func MergeTasks(local, remote []model.Task) []model.Task {
	byID := make(map[string]model.Task, len(remote))
	for _, t := range remote {
		if prev, ok := byID[t.ID]; ok && !displaces(prev.Stamp(), t.Stamp(), prev, t) {
			continue
		}
		byID[t.ID] = t
	}

	out := make([]model.Task, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local))
	for _, l := range local {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		if r, ok := byID[l.ID]; ok && remoteWins(l.Stamp(), r.Stamp()) {
			out = append(out, r.Clone())
			continue
		}
		out = append(out, l.Clone())
	}

	var extra []model.Task
	for id, r := range byID {
		if !seen[id] {
			extra = append(extra, r.Clone())
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		return newestFirst(extra[i].CreatedAt, extra[i].ID, extra[j].CreatedAt, extra[j].ID)
	})
	return append(out, extra...)
}

type placed struct {
	cat  model.Category
	item model.DashboardItem
}

// MergeDashboard resolves items by id across all three categories. The winning
// copy also decides the category, so a move made on another device is honoured.
func MergeDashboard(local, remote model.Dashboard) model.Dashboard {
	remoteByID := map[string]placed{}
	for _, c := range model.Categories {
		for _, it := range remote.Items(c) {
			if prev, ok := remoteByID[it.ID]; ok &&
				!displaces(prev.item.Stamp(), it.Stamp(), []any{prev.cat, prev.item}, []any{c, it}) {
				continue
			}
			remoteByID[it.ID] = placed{c, it}
		}
	}

	lists := map[model.Category][]model.DashboardItem{}
	seen := map[string]bool{}
	var extra []placed

	for _, c := range model.Categories {
		for _, l := range local.Items(c) {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			r, ok := remoteByID[l.ID]
			if !ok || !remoteWins(l.Stamp(), r.item.Stamp()) {
				lists[c] = append(lists[c], l.Clone())
				continue
			}
			won := r.item.Clone()
			if won.Recurrence.IsNone() && !l.Recurrence.IsNone() {
				won.Recurrence = l.Clone().Recurrence
			}
			if r.cat == c {
				lists[c] = append(lists[c], won)
			} else {
				extra = append(extra, placed{r.cat, won})
			}
		}
	}

	for id, r := range remoteByID {
		if !seen[id] {
			extra = append(extra, placed{r.cat, r.item.Clone()})
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		a, b := extra[i].item, extra[j].item
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	for _, p := range extra {
		lists[p.cat] = append(lists[p.cat], p.item)
	}

	var out model.Dashboard
	for _, c := range model.Categories {
		out = out.With(c, lists[c])
	}
	return out.Normalize()
}

// MergeLinks takes every remote category as-is and keeps categories only known locally.
func MergeLinks(local, remote model.LinkBook) model.LinkBook {
	byID := make(map[string]model.LinkCategory, len(remote.Categories))
	for _, c := range remote.Categories {
		if prev, ok := byID[c.ID]; !ok || displaces(time.Time{}, time.Time{}, prev, c) {
			byID[c.ID] = c
		}
	}

	out := model.LinkBook{Categories: make([]model.LinkCategory, 0, len(local.Categories)+len(remote.Categories))}
	seen := map[string]bool{}
	for _, l := range local.Categories {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		if r, ok := byID[l.ID]; ok {
			out.Categories = append(out.Categories, r.Clone())
			continue
		}
		out.Categories = append(out.Categories, l.Clone())
	}

	var extra []model.LinkCategory
	for id, r := range byID {
		if !seen[id] {
			extra = append(extra, r.Clone())
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].ID < extra[j].ID })
	out.Categories = append(out.Categories, extra...)
	return out
}
