package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
)

// TaskInput carries the user-editable task fields. A zero Status means doing.
type TaskInput struct {
	Title    string
	Details  string
	Status   model.Status
	Priority model.Priority
	DueDate  model.Date
}

func (in TaskInput) validate() (TaskInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, ErrEmptyTitle
	}
	if in.Status == "" {
		in.Status = model.StatusDoing
	}
	if !in.Status.Valid() {
		return in, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if !in.Priority.Valid() {
		return in, fmt.Errorf("%w: %q", ErrInvalidPriority, in.Priority)
	}
	return in, nil
}

// setStatus moves t to st, keeping completedAt set exactly while done.
// Re-marking a done task keeps its original completion time.
func setStatus(t *model.Task, st model.Status, at time.Time) {
	switch {
	case st == model.StatusDone && (t.Status != model.StatusDone || t.CompletedAt == nil):
		t.CompletedAt = &at
	case st != model.StatusDone:
		t.CompletedAt = nil
	}
	t.Status = st
}

func findTask(tasks []model.Task, id string) (int, error) {
	for i := range tasks {
		if tasks[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("task %s: %w", id, ErrNotFound)
}

// editTask applies fn to task id and refreshes its updatedAt.
func (c *Controller) editTask(id string, fn func(t *model.Task, now time.Time) error) (model.Task, error) {
	var out model.Task
	err := c.update(func(s *model.Snapshot, now time.Time) error {
		i, err := findTask(s.Tasks, id)
		if err != nil {
			return err
		}
		t := s.Tasks[i]
		stamp := touch(now, t.Stamp())
		if err := fn(&t, stamp); err != nil {
			return err
		}
		t.UpdatedAt = stamp
		s.Tasks[i] = t
		out = t.Clone()
		return nil
	})
	return out, err
}

// AddTask creates a task at the top of the list.
func (c *Controller) AddTask(in TaskInput) (model.Task, error) {
	in, err := in.validate()
	if err != nil {
		return model.Task{}, err
	}
	var out model.Task
	err = c.update(func(s *model.Snapshot, now time.Time) error {
		stamp := touch(now, time.Time{})
		t := model.Task{
			ID:        model.NewID(),
			Title:     in.Title,
			Details:   in.Details,
			Priority:  in.Priority,
			DueDate:   in.DueDate,
			CreatedAt: stamp,
			UpdatedAt: stamp,
		}
		setStatus(&t, in.Status, stamp)
		s.Tasks = append([]model.Task{t}, s.Tasks...)
		out = t.Clone()
		return nil
	})
	return out, err
}

// UpdateTask replaces the editable fields of task id.
func (c *Controller) UpdateTask(id string, in TaskInput) (model.Task, error) {
	in, err := in.validate()
	if err != nil {
		return model.Task{}, err
	}
	return c.editTask(id, func(t *model.Task, now time.Time) error {
		t.Title = in.Title
		t.Details = in.Details
		t.Priority = in.Priority
		t.DueDate = in.DueDate
		setStatus(t, in.Status, now)
		return nil
	})
}

func (c *Controller) SetStatus(id string, st model.Status) (model.Task, error) {
	if !st.Valid() {
		return model.Task{}, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
	}
	return c.editTask(id, func(t *model.Task, now time.Time) error {
		setStatus(t, st, now)
		return nil
	})
}

// ToggleDone completes an open task, or reverts a done one to doing.
func (c *Controller) ToggleDone(id string) (model.Task, error) {
	return c.editTask(id, func(t *model.Task, now time.Time) error {
		if t.Status == model.StatusDone {
			setStatus(t, model.StatusDoing, now)
		} else {
			setStatus(t, model.StatusDone, now)
		}
		return nil
	})
}

func (c *Controller) DeleteTask(id string) error {
	return c.update(func(s *model.Snapshot, now time.Time) error {
		i, err := findTask(s.Tasks, id)
		if err != nil {
			return err
		}
		s.Tasks = append(s.Tasks[:i:i], s.Tasks[i+1:]...)
		return nil
	})
}

// AppendTaskMemo adds a stamped line to the task's memo log.
func (c *Controller) AppendTaskMemo(id, text string) (model.Task, error) {
	if strings.TrimSpace(text) == "" {
		return model.Task{}, fmt.Errorf("memo text must not be empty")
	}
	return c.editTask(id, func(t *model.Task, now time.Time) error {
		t.Memo = model.AppendMemo(t.Memo, now.Local(), text)
		return nil
	})
}

// AddTaskLink attaches a link. A URL that does not normalize is stored empty and
// shows as no link.
func (c *Controller) AddTaskLink(id, rawURL, title string) (model.Link, error) {
	link := model.Link{ID: model.NewID(), URL: model.NormalizeURL(rawURL), Title: strings.TrimSpace(title)}
	_, err := c.editTask(id, func(t *model.Task, now time.Time) error {
		t.Links = append(t.Links, link)
		return nil
	})
	if err != nil {
		return model.Link{}, err
	}
	return link, nil
}

func (c *Controller) RemoveTaskLink(id, linkID string) error {
	_, err := c.editTask(id, func(t *model.Task, now time.Time) error {
		links, ok := removeLink(t.Links, linkID)
		if !ok {
			return fmt.Errorf("link %s: %w", linkID, ErrNotFound)
		}
		t.Links = links
		return nil
	})
	return err
}

func removeLink(links []model.Link, id string) ([]model.Link, bool) {
	for i, l := range links {
		if l.ID == id {
			return append(links[:i:i], links[i+1:]...), true
		}
	}
	return links, false
}
