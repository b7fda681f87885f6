package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const memoStampLayout = "2006-01-02 15:04"

var memoLine = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2})\] ?(.*)$`)

// MemoEntry is one line of the append-only memo log. At is zero for lines
// written without a stamp (hand edits, older data).
type MemoEntry struct {
	At   time.Time
	Text string
}

// AppendMemo adds a stamped entry to the end of memo. Blank text leaves memo unchanged.
func AppendMemo(memo string, at time.Time, text string) string {
	text = strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
	if text == "" {
		return memo
	}
	entry := fmt.Sprintf("[%s] %s", at.Format(memoStampLayout), text)
	if memo == "" {
		return entry
	}
	return strings.TrimRight(memo, "\n") + "\n" + entry
}

// ParseMemo splits a memo field into entries, oldest first.
func ParseMemo(memo string) []MemoEntry {
	var entries []MemoEntry
	for _, line := range strings.Split(memo, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := memoLine.FindStringSubmatch(line)
		if m == nil {
			entries = append(entries, MemoEntry{Text: line})
			continue
		}
		at, err := time.Parse(memoStampLayout, m[1])
		if err != nil {
			entries = append(entries, MemoEntry{Text: line})
			continue
		}
		entries = append(entries, MemoEntry{At: at, Text: m[2]})
	}
	return entries
}
