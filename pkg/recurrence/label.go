package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Label renders a short human description of r. It returns false for a none rule.
func Label(r Rule) (string, bool) {
	var label string
	switch r.Type {
	case Daily:
		label = "Every day"
	case Weekly:
		label = "Every " + r.Weekday.String()
	case Monthly:
		label = fmt.Sprintf("%s %s of every month", ordinal(r.WeekOfMonth), r.Weekday)
	case MonthlyLast:
		label = fmt.Sprintf("Last %s of every month", r.Weekday)
	case Yearly:
		label = fmt.Sprintf("Every year on %s %d", r.Month, r.Day)
	case Weekdays:
		label = "Weekdays (Mon-Fri)"
	case Custom:
		days := append([]time.Weekday(nil), r.CustomDays...)
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		names := make([]string, 0, len(days))
		for _, wd := range days {
			names = append(names, wd.String()[:3])
		}
		if len(names) == 0 {
			label = "Custom"
		} else {
			label = "Every " + strings.Join(names, ", ")
		}
	default:
		return "", false
	}

	if r.StartTime != "" {
		if r.EndTime != "" {
			label += fmt.Sprintf(" %s-%s", r.StartTime, r.EndTime)
		} else {
			label += fmt.Sprintf(" %s~", r.StartTime)
		}
	}
	return label, true
}

func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
