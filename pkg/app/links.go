package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
)

func findCategory(b model.LinkBook, id string) (int, error) {
	for i, c := range b.Categories {
		if c.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("link category %s: %w", id, ErrNotFound)
}

func (c *Controller) editCategory(id string, fn func(cat *model.LinkCategory) error) (model.LinkCategory, error) {
	var out model.LinkCategory
	err := c.update(func(s *model.Snapshot, now time.Time) error {
		i, err := findCategory(s.Links, id)
		if err != nil {
			return err
		}
		cat := s.Links.Categories[i]
		if err := fn(&cat); err != nil {
			return err
		}
		s.Links.Categories[i] = cat
		out = cat.Clone()
		return nil
	})
	return out, err
}

func (c *Controller) AddCategory(name string) (model.LinkCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.LinkCategory{}, ErrEmptyTitle
	}
	cat := model.LinkCategory{ID: model.NewID(), Name: name, Items: []model.LinkItem{}}
	err := c.update(func(s *model.Snapshot, now time.Time) error {
		s.Links.Categories = append(s.Links.Categories, cat)
		return nil
	})
	return cat, err
}

func (c *Controller) RenameCategory(id, name string) (model.LinkCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.LinkCategory{}, ErrEmptyTitle
	}
	return c.editCategory(id, func(cat *model.LinkCategory) error {
		cat.Name = name
		return nil
	})
}

func (c *Controller) DeleteCategory(id string) error {
	return c.update(func(s *model.Snapshot, now time.Time) error {
		i, err := findCategory(s.Links, id)
		if err != nil {
			return err
		}
		cats := s.Links.Categories
		s.Links.Categories = append(cats[:i:i], cats[i+1:]...)
		return nil
	})
}

// AddLink appends a bookmark to category catID. The URL is normalized; one that
// does not survive normalization is kept empty.
func (c *Controller) AddLink(catID, title, rawURL, note string) (model.LinkItem, error) {
	item := model.LinkItem{
		ID:    model.NewID(),
		Title: strings.TrimSpace(title),
		URL:   model.NormalizeURL(rawURL),
		Note:  strings.TrimSpace(note),
	}
	if item.Title == "" {
		item.Title = item.URL
	}
	if item.Title == "" {
		return model.LinkItem{}, ErrEmptyTitle
	}
	_, err := c.editCategory(catID, func(cat *model.LinkCategory) error {
		cat.Items = append(cat.Items, item)
		return nil
	})
	if err != nil {
		return model.LinkItem{}, err
	}
	return item, nil
}

func (c *Controller) RemoveLink(catID, itemID string) error {
	_, err := c.editCategory(catID, func(cat *model.LinkCategory) error {
		for i, it := range cat.Items {
			if it.ID == itemID {
				cat.Items = append(cat.Items[:i:i], cat.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("link %s: %w", itemID, ErrNotFound)
	})
	return err
}
