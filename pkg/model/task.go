package model

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDoing   Status = "doing"
	StatusReview  Status = "review"
	StatusPause   Status = "pause"
	StatusWaiting Status = "waiting"
	StatusDone    Status = "done"
)

// StatusOrder is the workflow order used for display and counts.
var StatusOrder = []Status{StatusDoing, StatusReview, StatusPause, StatusWaiting, StatusDone}

// Valid reports whether s is one of the known workflow statuses.
func (s Status) Valid() bool {
	for _, known := range StatusOrder {
		if s == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityNone   Priority = ""
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNone, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Link is a titled URL attached to a task or dashboard item.
type Link struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Task is a tracked piece of work.
// CompletedAt is non-nil exactly when Status is StatusDone.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Details     string     `json:"details,omitempty"`
	Memo        string     `json:"memo,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     Date       `json:"dueDate"`
	Links       []Link     `json:"links,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// Stamp returns the timestamp used to order concurrent versions of the task.
func (t Task) Stamp() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Task) Clone() Task {
	t.Links = cloneLinks(t.Links)
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

// NewID returns a fresh collision-free entity id.
func NewID() string {
	return uuid.NewString()
}

func cloneLinks(links []Link) []Link {
	if links == nil {
		return nil
	}
	return append(make([]Link, 0, len(links)), links...)
}
