// Package recurrence decides whether a repeating dashboard item falls on a given day.
package recurrence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	None        Kind = "none"
	Daily       Kind = "daily"
	Weekly      Kind = "weekly"
	Monthly     Kind = "monthly"
	MonthlyLast Kind = "monthly_last"
	Yearly      Kind = "yearly"
	Weekdays    Kind = "weekdays"
	Custom      Kind = "custom"
)

// Rule is a tagged recurrence rule. Only the fields relevant to Type are read.
// StartTime and EndTime are display-only and never evaluated.
type Rule struct {
	Type        Kind           `json:"type"`
	Weekday     time.Weekday   `json:"weekday"`
	WeekOfMonth int            `json:"weekOfMonth,omitempty"`
	Month       time.Month     `json:"month,omitempty"`
	Day         int            `json:"day,omitempty"`
	CustomDays  []time.Weekday `json:"customDays,omitempty"`
	StartTime   string         `json:"startTime,omitempty"`
	EndTime     string         `json:"endTime,omitempty"`
}

// IsNone reports whether the rule never fires. A missing type counts as none.
func (r Rule) IsNone() bool {
	return r.Type == "" || r.Type == None
}

// IsDue reports whether r fires on the calendar date of d.
func IsDue(r Rule, d time.Time) bool {
	switch r.Type {
	case Daily:
		return true
	case Weekly:
		return d.Weekday() == r.Weekday
	case Monthly:
		weekOfMonth := (d.Day() + 6) / 7
		return weekOfMonth == r.WeekOfMonth && d.Weekday() == r.Weekday
	case MonthlyLast:
		return d.Weekday() == r.Weekday && d.AddDate(0, 0, 7).Month() != d.Month()
	case Yearly:
		return d.Month() == r.Month && d.Day() == r.Day
	case Weekdays:
		wd := d.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case Custom:
		for _, wd := range r.CustomDays {
			if wd == d.Weekday() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

var (
	errWeekday     = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")
	errWeekOfMonth = errors.New("week of month must be between 1 and 5")
	errMonthDay    = errors.New("month/day is not a calendar date")
)

// Validate checks that the fields required by r.Type are in range.
func (r Rule) Validate() error {
	validWeekday := func(wd time.Weekday) bool { return wd >= time.Sunday && wd <= time.Saturday }
	switch r.Type {
	case "", None, Daily, Weekdays:
		return nil
	case Weekly, MonthlyLast:
		if !validWeekday(r.Weekday) {
			return errWeekday
		}
	case Monthly:
		if !validWeekday(r.Weekday) {
			return errWeekday
		}
		if r.WeekOfMonth < 1 || r.WeekOfMonth > 5 {
			return errWeekOfMonth
		}
	case Yearly:
		// 2024 is a leap year so Feb 29 stays valid.
		if r.Month < time.January || r.Month > time.December || r.Day < 1 ||
			time.Date(2024, r.Month, r.Day, 0, 0, 0, 0, time.UTC).Month() != r.Month {
			return errMonthDay
		}
	case Custom:
		for _, wd := range r.CustomDays {
			if !validWeekday(wd) {
				return errWeekday
			}
		}
	default:
		return fmt.Errorf("unknown recurrence type '%s'", r.Type)
	}
	return nil
}

// Decode parses the JSON form of a rule. Empty input is a none rule. On any decode
// failure it returns a none rule together with the error, so callers can log and carry on.
func Decode(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{Type: None}, nil
	}
	var r Rule
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Rule{Type: None}, fmt.Errorf("failed to decode recurrence: %w", err)
	}
	if r.Type == "" {
		r.Type = None
	}
	return r, nil
}

// Encode returns the JSON form of r, or "" for a none rule.
func Encode(r Rule) string {
	if r.IsNone() {
		return ""
	}
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}
