package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/harrisonrobin/kotonote/pkg/app"
	"github.com/harrisonrobin/kotonote/pkg/auth"
	"github.com/harrisonrobin/kotonote/pkg/config"
	"github.com/harrisonrobin/kotonote/pkg/kv"
	"github.com/harrisonrobin/kotonote/pkg/localstore"
	"github.com/harrisonrobin/kotonote/pkg/sheets"
	"github.com/harrisonrobin/kotonote/pkg/syncer"
)

var (
	configPath string
	offline    bool
)

var rootCmd = &cobra.Command{
	Use:   "kotonote",
	Short: "Tasks and a daily dashboard, mirrored to a Google spreadsheet",
	Long: `kotonote keeps tasks, a routine/ad-hoc/scheduled dashboard and link
bookmarks in a local store, and mirrors them to a spreadsheet named after
spreadsheet_title in your Google Drive once you have run 'kotonote auth'.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/kotonote/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "do not contact the remote store")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session is everything one command invocation needs.
type session struct {
	cfg      *config.Config
	logOut   io.Writer
	kv       kv.Store
	local    *localstore.Store
	provider *auth.Provider
	identity auth.Identity
	ctrl     *app.Controller
	sched    *syncer.Scheduler
}

func newLogger(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

func logOutput(cfg *config.Config) io.Writer {
	if cfg.LogFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

func openKV(cfg *config.Config) (kv.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch cfg.KVBackend {
	case config.BackendFile:
		return kv.OpenFile(cfg.StorePath())
	default:
		return kv.OpenSQLite(cfg.StorePath())
	}
}

// openSession loads configuration and local state and, unless offline or
// anonymous, runs the initial sync. Sync problems are logged; local work goes on.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logOut: logOutput(cfg)}

	if s.kv, err = openKV(cfg); err != nil {
		return nil, err
	}
	s.local = localstore.New(s.kv, newLogger(s.logOut, "localstore"))

	s.provider, err = auth.NewProvider("", sheets.Scopes, auth.WithLogger(newLogger(s.logOut, "auth")))
	if err != nil {
		s.kv.Close()
		return nil, err
	}
	identity, client, err := currentIdentity(ctx, s.provider, newLogger(s.logOut, "auth"))
	if err != nil {
		s.kv.Close()
		return nil, err
	}
	s.identity = identity

	s.ctrl = app.New(s.local, identity.Principal, app.WithLogger(newLogger(s.logOut, "app")))
	if offline || client == nil {
		return s, nil
	}

	remote, err := sheets.NewFromClient(ctx, client, s.local,
		sheets.WithTitle(cfg.SpreadsheetTitle),
		sheets.WithLogger(newLogger(s.logOut, "sheets")))
	if err != nil {
		newLogger(s.logOut, "sheets").Printf("Warning: continuing local-only: %v", err)
		return s, nil
	}
	s.sched = syncer.New(remote, s.ctrl, identity.Principal, &syncer.Config{
		Debounce:    cfg.Debounce,
		Logger:      newLogger(s.logOut, "sync"),
		Credentials: s.provider,
	})
	s.ctrl.Attach(s.sched)

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.sched.Load(loadCtx); err != nil {
		newLogger(s.logOut, "sync").Printf("Warning: %v", err)
	}
	return s, nil
}

type identitySource interface {
	Current(ctx context.Context) (auth.Identity, *http.Client, error)
}

// currentIdentity picks the identity local edits are filed under. Most sign-in
// problems degrade to local-only work, but a stored token whose account is not
// known yet stops the command: its edits belong to neither the anonymous bucket
// nor any account we can name.
func currentIdentity(ctx context.Context, src identitySource, logger *log.Logger) (auth.Identity, *http.Client, error) {
	identity, client, err := src.Current(ctx)
	switch {
	case errors.Is(err, auth.ErrPrincipalUnknown):
		return auth.Identity{}, nil, fmt.Errorf("%w; retry when online, or run 'kotonote auth --logout' to work anonymously", err)
	case err != nil:
		logger.Printf("Warning: continuing local-only: %v", err)
		return identity, nil, nil
	}
	return identity, client, nil
}

// status is the connectivity state to report to the user.
func (s *session) status() string {
	switch {
	case s.sched != nil:
		return s.sched.Status().String()
	case s.identity.Anonymous():
		return "local (not signed in)"
	default:
		return syncer.StatusLocal.String()
	}
}

// close pushes anything still pending and releases the local store.
func (s *session) close(ctx context.Context) {
	if s.sched != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.sched.Flush(flushCtx); err != nil {
			newLogger(s.logOut, "sync").Printf("Warning: %v", err)
		}
	}
	if err := s.kv.Close(); err != nil {
		newLogger(s.logOut, "localstore").Printf("Warning: %v", err)
	}
}

// withSession wraps a command body with openSession/close.
func withSession(run func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close(ctx)
		return run(ctx, s, args)
	}
}
