package app

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
)

var clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func findItem(d model.Dashboard, id string) (model.Category, int, error) {
	for _, c := range model.Categories {
		for i, it := range d.Items(c) {
			if it.ID == id {
				return c, i, nil
			}
		}
	}
	return "", -1, fmt.Errorf("dashboard item %s: %w", id, ErrNotFound)
}

// editItem applies fn to item id and refreshes its updatedAt. fn sees the new stamp.
func (c *Controller) editItem(id string, fn func(it *model.DashboardItem, now time.Time) error) (model.DashboardItem, error) {
	var out model.DashboardItem
	err := c.update(func(s *model.Snapshot, now time.Time) error {
		cat, i, err := findItem(s.Dashboard, id)
		if err != nil {
			return err
		}
		items := s.Dashboard.Items(cat)
		it := items[i]
		stamp := touch(now, it.Stamp())
		if err := fn(&it, stamp); err != nil {
			return err
		}
		it.UpdatedAt = stamp
		items[i] = it
		out = it.Clone()
		return nil
	})
	return out, err
}

// AddItem appends an item to category cat.
func (c *Controller) AddItem(cat model.Category, text string) (model.DashboardItem, error) {
	if !cat.Valid() {
		return model.DashboardItem{}, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.DashboardItem{}, ErrEmptyTitle
	}
	var out model.DashboardItem
	err := c.update(func(s *model.Snapshot, now time.Time) error {
		stamp := touch(now, time.Time{})
		it := model.DashboardItem{
			ID:         model.NewID(),
			Text:       text,
			Recurrence: recurrence.Rule{Type: recurrence.None},
			CreatedAt:  stamp,
			UpdatedAt:  stamp,
		}
		s.Dashboard = s.Dashboard.With(cat, append(s.Dashboard.Items(cat), it))
		out = it
		return nil
	})
	return out, err
}

func (c *Controller) UpdateItem(id, text, details string) (model.DashboardItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.DashboardItem{}, ErrEmptyTitle
	}
	return c.editItem(id, func(it *model.DashboardItem, now time.Time) error {
		it.Text = text
		it.Details = details
		return nil
	})
}

// MoveItem puts item id at the end of category cat.
func (c *Controller) MoveItem(id string, cat model.Category) (model.DashboardItem, error) {
	if !cat.Valid() {
		return model.DashboardItem{}, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	var out model.DashboardItem
	err := c.update(func(s *model.Snapshot, now time.Time) error {
		from, i, err := findItem(s.Dashboard, id)
		if err != nil {
			return err
		}
		items := s.Dashboard.Items(from)
		it := items[i]
		it.UpdatedAt = touch(now, it.Stamp())
		s.Dashboard = s.Dashboard.With(from, append(items[:i:i], items[i+1:]...))
		s.Dashboard = s.Dashboard.With(cat, append(s.Dashboard.Items(cat), it))
		out = it.Clone()
		return nil
	})
	return out, err
}

// SetRecurrence replaces the item's rule after validating it.
func (c *Controller) SetRecurrence(id string, rule recurrence.Rule) (model.DashboardItem, error) {
	if rule.Type == "" {
		rule.Type = recurrence.None
	}
	if err := rule.Validate(); err != nil {
		return model.DashboardItem{}, fmt.Errorf("invalid recurrence: %w", err)
	}
	return c.editItem(id, func(it *model.DashboardItem, now time.Time) error {
		it.Recurrence = rule
		return nil
	})
}

// SetItemTime sets the HH:MM time shown for a due item. Empty clears it.
func (c *Controller) SetItemTime(id, hhmm string) (model.DashboardItem, error) {
	hhmm = strings.TrimSpace(hhmm)
	if hhmm != "" && !clockTime.MatchString(hhmm) {
		return model.DashboardItem{}, fmt.Errorf("%w: %q", ErrInvalidTime, hhmm)
	}
	return c.editItem(id, func(it *model.DashboardItem, now time.Time) error {
		it.Time = hhmm
		return nil
	})
}

func (c *Controller) DeleteItem(id string) error {
	return c.update(func(s *model.Snapshot, now time.Time) error {
		cat, i, err := findItem(s.Dashboard, id)
		if err != nil {
			return err
		}
		items := s.Dashboard.Items(cat)
		s.Dashboard = s.Dashboard.With(cat, append(items[:i:i], items[i+1:]...))
		return nil
	})
}

func (c *Controller) AppendItemMemo(id, text string) (model.DashboardItem, error) {
	if strings.TrimSpace(text) == "" {
		return model.DashboardItem{}, fmt.Errorf("memo text must not be empty")
	}
	return c.editItem(id, func(it *model.DashboardItem, now time.Time) error {
		it.Memo = model.AppendMemo(it.Memo, now.Local(), text)
		return nil
	})
}

func (c *Controller) AddItemLink(id, rawURL, title string) (model.Link, error) {
	link := model.Link{ID: model.NewID(), URL: model.NormalizeURL(rawURL), Title: strings.TrimSpace(title)}
	_, err := c.editItem(id, func(it *model.DashboardItem, now time.Time) error {
		it.Links = append(it.Links, link)
		return nil
	})
	if err != nil {
		return model.Link{}, err
	}
	return link, nil
}

func (c *Controller) RemoveItemLink(id, linkID string) error {
	_, err := c.editItem(id, func(it *model.DashboardItem, now time.Time) error {
		links, ok := removeLink(it.Links, linkID)
		if !ok {
			return fmt.Errorf("link %s: %w", linkID, ErrNotFound)
		}
		it.Links = links
		return nil
	})
	return err
}
