package model

// Snapshot is the full state of one identity: tasks, dashboard items and link categories.
// Values are treated as immutable; updates build new slices.
type Snapshot struct {
	Tasks     []Task    `json:"tasks"`
	Dashboard Dashboard `json:"dashboard"`
	Links     LinkBook  `json:"links"`
}

// IsEmpty reports whether every collection is empty.
func (s Snapshot) IsEmpty() bool {
	return len(s.Tasks) == 0 && s.Dashboard.Len() == 0 && len(s.Links.Categories) == 0
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Tasks: make([]Task, 0, len(s.Tasks)),
		Links: LinkBook{Categories: make([]LinkCategory, 0, len(s.Links.Categories))},
	}
	for _, t := range s.Tasks {
		out.Tasks = append(out.Tasks, t.Clone())
	}
	for _, c := range Categories {
		src := s.Dashboard.Items(c)
		items := make([]DashboardItem, 0, len(src))
		for _, it := range src {
			items = append(items, it.Clone())
		}
		out.Dashboard = out.Dashboard.With(c, items)
	}
	for _, cat := range s.Links.Categories {
		out.Links.Categories = append(out.Links.Categories, cat.Clone())
	}
	return out
}
