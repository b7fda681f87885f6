package model

import (
	"time"

	"github.com/harrisonrobin/kotonote/pkg/recurrence"
)

// Category names one of the three fixed dashboard columns.
type Category string

const (
	CategoryRoutine  Category = "routine"
	CategoryAdhoc    Category = "adhoc"
	CategorySchedule Category = "schedule"
)

var Categories = []Category{CategoryRoutine, CategoryAdhoc, CategorySchedule}

func (c Category) Valid() bool {
	return c == CategoryRoutine || c == CategoryAdhoc || c == CategorySchedule
}

// DashboardItem lives inside exactly one Category list of a Dashboard.
type DashboardItem struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	Details    string          `json:"details,omitempty"`
	Memo       string          `json:"memo,omitempty"`
	Links      []Link          `json:"links,omitempty"`
	Recurrence recurrence.Rule `json:"recurrence"`
	Time       string          `json:"time,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (i DashboardItem) Stamp() time.Time {
	if !i.UpdatedAt.IsZero() {
		return i.UpdatedAt
	}
	return i.CreatedAt
}

func (i DashboardItem) Clone() DashboardItem {
	i.Links = cloneLinks(i.Links)
	if i.Recurrence.CustomDays != nil {
		i.Recurrence.CustomDays = append(make([]time.Weekday, 0, len(i.Recurrence.CustomDays)), i.Recurrence.CustomDays...)
	}
	return i
}

// Dashboard partitions items into the three fixed categories.
type Dashboard struct {
	Routine  []DashboardItem `json:"routine"`
	Adhoc    []DashboardItem `json:"adhoc"`
	Schedule []DashboardItem `json:"schedule"`
}

// Items returns the list for c; unknown categories yield nil.
func (d Dashboard) Items(c Category) []DashboardItem {
	switch c {
	case CategoryRoutine:
		return d.Routine
	case CategoryAdhoc:
		return d.Adhoc
	case CategorySchedule:
		return d.Schedule
	}
	return nil
}

// With returns a copy of d whose c list is replaced by items.
func (d Dashboard) With(c Category, items []DashboardItem) Dashboard {
	switch c {
	case CategoryRoutine:
		d.Routine = items
	case CategoryAdhoc:
		d.Adhoc = items
	case CategorySchedule:
		d.Schedule = items
	}
	return d
}

// Len is the total number of items across all categories.
func (d Dashboard) Len() int {
	return len(d.Routine) + len(d.Adhoc) + len(d.Schedule)
}

// Normalize replaces nil lists with empty ones so the JSON form is stable.
func (d Dashboard) Normalize() Dashboard {
	for _, c := range Categories {
		if d.Items(c) == nil {
			d = d.With(c, []DashboardItem{})
		}
	}
	return d
}
