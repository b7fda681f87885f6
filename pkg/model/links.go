package model

import (
	"net/url"
	"strings"
)

type LinkItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Note  string `json:"note,omitempty"`
}

// LinkCategory is a user-named, ordered group of bookmarks.
type LinkCategory struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []LinkItem `json:"items"`
}

func (c LinkCategory) Clone() LinkCategory {
	if c.Items != nil {
		c.Items = append(make([]LinkItem, 0, len(c.Items)), c.Items...)
	}
	return c
}

// LinkBook is the link-category collection.
type LinkBook struct {
	Categories []LinkCategory `json:"categories"`
}

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// NormalizeURL prefixes https:// when no scheme is present and checks the result
// against the allowed schemes. Anything that does not survive collapses to "".
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] || u.Host == "" {
		return ""
	}
	return u.String()
}
