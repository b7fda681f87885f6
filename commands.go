package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/kotonote/pkg/app"
	"github.com/harrisonrobin/kotonote/pkg/auth"
	"github.com/harrisonrobin/kotonote/pkg/config"
	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/recurrence"
	"github.com/harrisonrobin/kotonote/pkg/sheets"
)

var (
	addDetails  string
	addStatus   string
	addPriority string
	addDue      string

	listStatus string
	listDone   bool

	authLogout bool

	dashRecur   string
	dashWeekday string
	dashWeek    int
	dashDays    string
	dashDate    string
	dashStart   string
	dashEnd     string
	dashTime    string

	linkTitle string
	linkNote  string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in with Google (or --logout)",
	Long: `Runs the browser consent flow and stores the token next to credentials.json
in ~/.config/kotonote. Download credentials.json for a desktop OAuth client from
the Google Cloud console first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		p, err := auth.NewProvider("", sheets.Scopes, auth.WithLogger(newLogger(logOutput(cfg), "auth")))
		if err != nil {
			return err
		}
		if authLogout {
			p.Logout()
			fmt.Println("Signed out")
			return nil
		}
		id, err := p.Login(cmd.Context())
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		fmt.Printf("Signed in as %s\n", id.Principal)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		due, err := model.ParseDate(addDue)
		if err != nil {
			return err
		}
		task, err := s.ctrl.AddTask(app.TaskInput{
			Title:    strings.Join(args, " "),
			Details:  addDetails,
			Status:   model.Status(addStatus),
			Priority: model.Priority(addPriority),
			DueDate:  due,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added %s  %s\n", shortID(task.ID), task.Title)
		return nil
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List open tasks (or --done for the archive)",
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		var tasks []model.Task
		if listDone {
			tasks = s.ctrl.DoneTasks()
		} else {
			st := model.Status(listStatus)
			if st != "" && !st.Valid() {
				return fmt.Errorf("%w: %q", app.ErrInvalidStatus, st)
			}
			tasks = s.ctrl.ActiveTasks(st)
		}
		for _, t := range tasks {
			fmt.Println(formatTask(t))
		}

		counts := s.ctrl.StatusCounts()
		var parts []string
		for _, st := range model.StatusOrder {
			parts = append(parts, fmt.Sprintf("%s %d", st, counts[st]))
		}
		fmt.Printf("\n%s  [%s]\n", strings.Join(parts, " · "), s.status())
		return nil
	}),
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done, or reopen a done task",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		id, err := resolveTask(s.ctrl.Snapshot().Tasks, args[0])
		if err != nil {
			return err
		}
		task, err := s.ctrl.ToggleDone(id)
		if err != nil {
			return err
		}
		fmt.Println(formatTask(task))
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status <id> <doing|review|pause|waiting|done>",
	Short: "Move a task to another status",
	Args:  cobra.ExactArgs(2),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		id, err := resolveTask(s.ctrl.Snapshot().Tasks, args[0])
		if err != nil {
			return err
		}
		task, err := s.ctrl.SetStatus(id, model.Status(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(formatTask(task))
		return nil
	}),
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		id, err := resolveTask(s.ctrl.Snapshot().Tasks, args[0])
		if err != nil {
			return err
		}
		if err := s.ctrl.DeleteTask(id); err != nil {
			return err
		}
		fmt.Printf("✓ Deleted %s\n", shortID(id))
		return nil
	}),
}

var memoCmd = &cobra.Command{
	Use:   "memo <id> [text]",
	Short: "Append to a task's memo, or print it",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		id, err := resolveTask(s.ctrl.Snapshot().Tasks, args[0])
		if err != nil {
			return err
		}
		var task model.Task
		if len(args) > 1 {
			if task, err = s.ctrl.AppendTaskMemo(id, strings.Join(args[1:], " ")); err != nil {
				return err
			}
		} else {
			for _, t := range s.ctrl.Snapshot().Tasks {
				if t.ID == id {
					task = t
				}
			}
		}
		for _, e := range model.ParseMemo(task.Memo) {
			if e.At.IsZero() {
				fmt.Printf("                   %s\n", e.Text)
				continue
			}
			fmt.Printf("  %s  %s\n", e.At.Format("2006-01-02 15:04"), e.Text)
		}
		return nil
	}),
}

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show what is due today",
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		now := time.Now()
		fmt.Printf("%s\n\n", now.Format("Monday, January 2"))
		for _, ref := range s.ctrl.DueItems(now) {
			label, _ := recurrence.Label(ref.Item.Recurrence)
			clock := ref.Item.Time
			if clock == "" {
				clock = "     "
			}
			fmt.Printf("  %s  %-40s %s (%s)\n", clock, ref.Item.Text, label, ref.Category)
		}
		for _, t := range s.ctrl.DueTasks(now) {
			fmt.Println(formatTask(t))
		}
		fmt.Printf("\nCompleted today: %d  [%s]\n", s.ctrl.CompletedOn(now), s.status())
		return nil
	}),
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search tasks and dashboard items",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		res := s.ctrl.Search(strings.Join(args, " "))
		for _, t := range res.Tasks {
			fmt.Println(formatTask(t))
		}
		for _, ref := range res.Items {
			fmt.Printf("  %-8s  %s (%s)\n", shortID(ref.Item.ID), ref.Item.Text, ref.Category)
		}
		if len(res.Tasks)+len(res.Items) == 0 {
			fmt.Println("No matches")
		}
		return nil
	}),
}

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Manage dashboard items",
}

var dashAddCmd = &cobra.Command{
	Use:   "add <routine|adhoc|schedule> <text>",
	Short: "Add a dashboard item, optionally recurring",
	Args:  cobra.MinimumNArgs(2),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		rule, err := parseRule()
		if err != nil {
			return err
		}
		item, err := s.ctrl.AddItem(model.Category(args[0]), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if !rule.IsNone() {
			if item, err = s.ctrl.SetRecurrence(item.ID, rule); err != nil {
				return err
			}
		}
		if dashTime != "" {
			if item, err = s.ctrl.SetItemTime(item.ID, dashTime); err != nil {
				return err
			}
		}
		label, ok := recurrence.Label(item.Recurrence)
		if !ok {
			label = "once"
		}
		fmt.Printf("✓ Added %s  %s (%s)\n", shortID(item.ID), item.Text, label)
		return nil
	}),
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage bookmark links",
}

var linkAddCmd = &cobra.Command{
	Use:   "add <category> <url>",
	Short: "Bookmark a URL in a category, creating the category if needed",
	Args:  cobra.ExactArgs(2),
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		catID := ""
		for _, c := range s.ctrl.Snapshot().Links.Categories {
			if strings.EqualFold(c.Name, args[0]) {
				catID = c.ID
				break
			}
		}
		if catID == "" {
			cat, err := s.ctrl.AddCategory(args[0])
			if err != nil {
				return err
			}
			catID = cat.ID
		}
		item, err := s.ctrl.AddLink(catID, linkTitle, args[1], linkNote)
		if err != nil {
			return err
		}
		if item.URL == "" {
			fmt.Printf("Warning: %q is not an http(s) URL, saved without a link\n", args[1])
		}
		fmt.Printf("✓ Saved %s in %s\n", item.Title, args[0])
		return nil
	}),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull, merge and push now",
	RunE: withSession(func(ctx context.Context, s *session, args []string) error {
		if s.sched == nil {
			return fmt.Errorf("not connected: run 'kotonote auth' first")
		}
		if err := s.sched.Flush(ctx); err != nil {
			return err
		}
		snap := s.ctrl.Snapshot()
		fmt.Printf("%s: %d tasks, %d dashboard items, %d link categories\n",
			s.sched.Status(), len(snap.Tasks), snap.Dashboard.Len(), len(snap.Links.Categories))
		return nil
	}),
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("kv_backend: %s\ndata_dir: %s\ndebounce: %s\nspreadsheet_title: %s\nlog_file: %s\n",
			cfg.KVBackend, cfg.DataDir, cfg.Debounce, cfg.SpreadsheetTitle, cfg.LogFile)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in the config file",
	Long: `Keys: kv_backend (sqlite or file), data_dir, debounce (e.g. 1.5s),
spreadsheet_title, log_file. An empty value resets data_dir and log_file.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(configPath, cfg); err != nil {
			return err
		}
		fmt.Printf("Set %s\n", args[0])
		return nil
	},
}

func init() {
	authCmd.Flags().BoolVar(&authLogout, "logout", false, "forget the stored token")

	addCmd.Flags().StringVarP(&addDetails, "details", "d", "", "details")
	addCmd.Flags().StringVarP(&addStatus, "status", "s", "", "initial status (default doing)")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "", "high, medium or low")
	addCmd.Flags().StringVar(&addDue, "due", "", "due date, YYYY-MM-DD")

	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "only this status")
	listCmd.Flags().BoolVar(&listDone, "done", false, "show completed tasks, newest first")

	dashAddCmd.Flags().StringVar(&dashRecur, "recur", "", "none, daily, weekly, monthly, monthly_last, yearly, weekdays or custom")
	dashAddCmd.Flags().StringVar(&dashWeekday, "weekday", "", "weekday for weekly/monthly rules, e.g. tue")
	dashAddCmd.Flags().IntVar(&dashWeek, "week", 0, "week of month (1-5) for monthly rules")
	dashAddCmd.Flags().StringVar(&dashDays, "days", "", "comma separated weekdays for custom rules")
	dashAddCmd.Flags().StringVar(&dashDate, "date", "", "MM-DD for yearly rules")
	dashAddCmd.Flags().StringVar(&dashStart, "start", "", "start time label")
	dashAddCmd.Flags().StringVar(&dashEnd, "end", "", "end time label")
	dashAddCmd.Flags().StringVar(&dashTime, "time", "", "HH:MM shown when due")
	dashCmd.AddCommand(dashAddCmd)

	linkAddCmd.Flags().StringVarP(&linkTitle, "title", "t", "", "title (default the URL)")
	linkAddCmd.Flags().StringVarP(&linkNote, "note", "n", "", "note")
	linkCmd.AddCommand(linkAddCmd)

	configCmd.AddCommand(configShowCmd, configSetCmd)

	rootCmd.AddCommand(authCmd, configCmd, addCmd, listCmd, doneCmd, statusCmd, rmCmd, memoCmd,
		todayCmd, searchCmd, dashCmd, linkCmd, syncCmd)
}

// setConfigValue applies one key=value edit and revalidates cfg.
func setConfigValue(cfg *config.Config, key, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "kv_backend":
		cfg.KVBackend = value
	case "data_dir":
		cfg.DataDir = value
	case "debounce":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid debounce %q: %w", value, err)
		}
		cfg.Debounce = d
	case "spreadsheet_title":
		if value == "" {
			return fmt.Errorf("spreadsheet_title cannot be empty")
		}
		cfg.SpreadsheetTitle = value
	case "log_file":
		cfg.LogFile = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return cfg.Validate()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTask(t model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %-8s  %-7s  %s", shortID(t.ID), t.Status, t.Title)
	if t.Priority != model.PriorityNone {
		fmt.Fprintf(&b, "  !%s", t.Priority)
	}
	if !t.DueDate.IsZero() {
		fmt.Fprintf(&b, "  due %s", t.DueDate)
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(&b, "  done %s", t.CompletedAt.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}

// resolveTask finds the task whose id starts with prefix; the prefix must be unambiguous.
func resolveTask(tasks []model.Task, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	var matches []string
	for _, t := range tasks {
		if t.ID == prefix {
			return t.ID, nil
		}
		if prefix != "" && strings.HasPrefix(t.ID, prefix) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("task %s: %w", prefix, app.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return "", fmt.Errorf("task id %q is ambiguous (%d matches)", prefix, len(matches))
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		if wd, ok := weekdayNames[s[:3]]; ok {
			return wd, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// parseRule builds a recurrence rule from the dash add flags.
func parseRule() (recurrence.Rule, error) {
	rule := recurrence.Rule{
		Type:        recurrence.Kind(strings.ToLower(strings.TrimSpace(dashRecur))),
		WeekOfMonth: dashWeek,
		StartTime:   dashStart,
		EndTime:     dashEnd,
	}
	if rule.Type == "" {
		rule.Type = recurrence.None
	}
	if dashWeekday != "" {
		wd, err := parseWeekday(dashWeekday)
		if err != nil {
			return rule, err
		}
		rule.Weekday = wd
	}
	if dashDays != "" {
		for _, d := range strings.Split(dashDays, ",") {
			wd, err := parseWeekday(d)
			if err != nil {
				return rule, err
			}
			rule.CustomDays = append(rule.CustomDays, wd)
		}
	}
	if dashDate != "" {
		t, err := time.Parse("01-02", dashDate)
		if err != nil {
			return rule, fmt.Errorf("yearly date must be MM-DD: %w", err)
		}
		rule.Month, rule.Day = t.Month(), t.Day()
	}
	if err := rule.Validate(); err != nil {
		return rule, fmt.Errorf("invalid recurrence: %w", err)
	}
	return rule, nil
}
