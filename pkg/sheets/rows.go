package sheets

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
)

const (
	tasksSheet     = "Tasks"
	dashboardSheet = "Dashboard"
	linksSheet     = "Links"
)

// Column order is significant. New columns only ever go on the end so rows
// written by older versions still line up.
var (
	taskHeader      = []string{"id", "title", "details", "memo", "status", "dueDate", "links", "createdAt", "completedAt", "updatedAt", "priority"}
	dashboardHeader = []string{"id", "categoryId", "text", "details", "memo", "links", "recurrence", "time", "createdAt", "updatedAt"}
	linkHeader      = []string{"categoryId", "categoryName", "itemId", "itemTitle", "url", "note"}
)

type section struct {
	sheet  string
	header []string
}

var sections = []section{
	{tasksSheet, taskHeader},
	{dashboardSheet, dashboardHeader},
	{linksSheet, linkHeader},
}

// dataRange covers every row below the header, e.g. "Tasks!A2:K".
func (s section) dataRange() string {
	return fmt.Sprintf("%s!A2:%c", s.sheet, 'A'+len(s.header)-1)
}

func (s section) headerRange() string {
	return s.sheet + "!A1"
}

func (s section) writeRange() string {
	return s.sheet + "!A2"
}

// RowError describes a row that was skipped while reading a section.
type RowError struct {
	Sheet  string
	Row    int // 1-based sheet row number
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Sheet, e.Row, e.Reason)
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return fmt.Sprint(row[i])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeLinks(links []model.Link) string {
	if len(links) == 0 {
		return ""
	}
	b, err := json.Marshal(links)
	if err != nil {
		return ""
	}
	return string(b)
}

// decodeLinks never fails; bad JSON means no links.
func decodeLinks(s string) []model.Link {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var links []model.Link
	if err := json.Unmarshal([]byte(s), &links); err != nil {
		return nil
	}
	return links
}

func taskRow(t model.Task) []interface{} {
	completed := ""
	if t.CompletedAt != nil {
		completed = formatTime(*t.CompletedAt)
	}
	return []interface{}{
		t.ID,
		t.Title,
		t.Details,
		t.Memo,
		string(t.Status),
		t.DueDate.String(),
		encodeLinks(t.Links),
		formatTime(t.CreatedAt),
		completed,
		formatTime(t.UpdatedAt),
		string(t.Priority),
	}
}

// parseTaskRow decodes one task row. Only a missing id rejects the row; every
// other malformed field falls back to its zero value. The done/completedAt
// pairing is restored if the sheet was hand-edited out of shape.
func parseTaskRow(row []interface{}, n int) (model.Task, error) {
	id := strings.TrimSpace(cell(row, 0))
	if id == "" {
		return model.Task{}, &RowError{Sheet: tasksSheet, Row: n, Reason: "missing id"}
	}
	t := model.Task{
		ID:        id,
		Title:     cell(row, 1),
		Details:   cell(row, 2),
		Memo:      cell(row, 3),
		Status:    model.Status(cell(row, 4)),
		Links:     decodeLinks(cell(row, 6)),
		CreatedAt: parseTime(cell(row, 7)),
		UpdatedAt: parseTime(cell(row, 9)),
		Priority:  model.Priority(cell(row, 10)),
	}
	if due, err := model.ParseDate(cell(row, 5)); err == nil {
		t.DueDate = due
	}
	if !t.Status.Valid() {
		t.Status = model.StatusDoing
	}
	if !t.Priority.Valid() {
		t.Priority = model.PriorityNone
	}

	if t.Status == model.StatusDone {
		completed := parseTime(cell(row, 8))
		if completed.IsZero() {
			completed = t.Stamp()
		}
		t.CompletedAt = &completed
	}
	return t, nil
}

func dashboardRow(c model.Category, it model.DashboardItem) []interface{} {
	return []interface{}{
		it.ID,
		string(c),
		it.Text,
		it.Details,
		it.Memo,
		encodeLinks(it.Links),
		recurrence.Encode(it.Recurrence),
		it.Time,
		formatTime(it.CreatedAt),
		formatTime(it.UpdatedAt),
	}
}

func parseDashboardRow(row []interface{}, n int) (model.Category, model.DashboardItem, error) {
	id := strings.TrimSpace(cell(row, 0))
	if id == "" {
		return "", model.DashboardItem{}, &RowError{Sheet: dashboardSheet, Row: n, Reason: "missing id"}
	}
	c := model.Category(cell(row, 1))
	if !c.Valid() {
		return "", model.DashboardItem{}, &RowError{Sheet: dashboardSheet, Row: n, Reason: fmt.Sprintf("unknown category %q", c)}
	}
	// A broken recurrence cell degrades to "none" instead of dropping the item.
	rule, _ := recurrence.Decode(cell(row, 6))
	return c, model.DashboardItem{
		ID:         id,
		Text:       cell(row, 2),
		Details:    cell(row, 3),
		Memo:       cell(row, 4),
		Links:      decodeLinks(cell(row, 5)),
		Recurrence: rule,
		Time:       cell(row, 7),
		CreatedAt:  parseTime(cell(row, 8)),
		UpdatedAt:  parseTime(cell(row, 9)),
	}, nil
}

// linkRows flattens categories. Empty categories emit one row with blank item
// fields so their name survives a round trip.
func linkRows(book model.LinkBook) [][]interface{} {
	var rows [][]interface{}
	for _, c := range book.Categories {
		if len(c.Items) == 0 {
			rows = append(rows, []interface{}{c.ID, c.Name, "", "", "", ""})
			continue
		}
		for _, it := range c.Items {
			rows = append(rows, []interface{}{c.ID, c.Name, it.ID, it.Title, it.URL, it.Note})
		}
	}
	return rows
}

// parseLinkRows groups rows by category id in first-seen order.
func parseLinkRows(rows [][]interface{}, firstRow int) (model.LinkBook, []error) {
	var errs []error
	book := model.LinkBook{Categories: []model.LinkCategory{}}
	index := map[string]int{}

	for i, row := range rows {
		catID := strings.TrimSpace(cell(row, 0))
		if catID == "" {
			errs = append(errs, &RowError{Sheet: linksSheet, Row: firstRow + i, Reason: "missing category id"})
			continue
		}
		pos, ok := index[catID]
		if !ok {
			pos = len(book.Categories)
			index[catID] = pos
			book.Categories = append(book.Categories, model.LinkCategory{
				ID:    catID,
				Name:  cell(row, 1),
				Items: []model.LinkItem{},
			})
		}
		itemID := strings.TrimSpace(cell(row, 2))
		if itemID == "" {
			continue
		}
		cat := &book.Categories[pos]
		cat.Items = append(cat.Items, model.LinkItem{
			ID:    itemID,
			Title: cell(row, 3),
			URL:   cell(row, 4),
			Note:  cell(row, 5),
		})
	}
	return book, errs
}

// encodeSnapshot renders the three sections' data rows.
func encodeSnapshot(snap model.Snapshot) map[string][][]interface{} {
	out := map[string][][]interface{}{}
	for _, t := range snap.Tasks {
		out[tasksSheet] = append(out[tasksSheet], taskRow(t))
	}
	for _, c := range model.Categories {
		for _, it := range snap.Dashboard.Items(c) {
			out[dashboardSheet] = append(out[dashboardSheet], dashboardRow(c, it))
		}
	}
	if rows := linkRows(snap.Links); len(rows) > 0 {
		out[linksSheet] = rows
	}
	return out
}

// decodeSnapshot parses the three sections' data rows (header excluded).
// Rows that cannot be used are reported and skipped.
func decodeSnapshot(tasks, dashboard, links [][]interface{}) (model.Snapshot, []error) {
	var errs []error
	snap := model.Snapshot{
		Tasks:     []model.Task{},
		Dashboard: model.Dashboard{}.Normalize(),
	}

	for i, row := range tasks {
		t, err := parseTaskRow(row, i+2)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snap.Tasks = append(snap.Tasks, t)
	}

	for i, row := range dashboard {
		c, it, err := parseDashboardRow(row, i+2)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snap.Dashboard = snap.Dashboard.With(c, append(snap.Dashboard.Items(c), it))
	}

	book, linkErrs := parseLinkRows(links, 2)
	snap.Links = book
	errs = append(errs, linkErrs...)
	return snap, errs
}
