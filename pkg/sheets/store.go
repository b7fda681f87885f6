// Package sheets keeps an identity's snapshot in a Google Sheets spreadsheet,
// one sheet per collection.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/harrisonrobin/kotonote/pkg/model"
	"github.com/harrisonrobin/kotonote/pkg/remote"
)

const (
	// DefaultTitle is the well-known spreadsheet name searched for on Drive.
	DefaultTitle = "KotoNote"

	spreadsheetMime = "application/vnd.google-apps.spreadsheet"
	inspectLimit    = 4
)

// Scopes are the OAuth scopes the store needs.
var Scopes = []string{
	sheetsapi.SpreadsheetsScope,
	drive.DriveMetadataReadonlyScope,
}

// HandleCache remembers the spreadsheet chosen for each identity.
type HandleCache interface {
	Handle(identity string) (string, bool)
	SetHandle(identity, id string)
	ClearHandle(identity string)
}

// Store is a remote.Store backed by Google Sheets, discovered through Drive.
type Store struct {
	sheets *sheetsapi.Service
	drive  *drive.Service
	cache  HandleCache
	title  string
	logger *log.Logger
}

var _ remote.Store = (*Store)(nil)

type Option func(*Store)

func WithTitle(title string) Option {
	return func(s *Store) {
		if title != "" {
			s.title = title
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps already constructed services.
func New(sheetsSrv *sheetsapi.Service, driveSrv *drive.Service, cache HandleCache, opts ...Option) *Store {
	s := &Store{
		sheets: sheetsSrv,
		drive:  driveSrv,
		cache:  cache,
		title:  DefaultTitle,
		logger: log.New(os.Stderr, "[sheets] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromClient builds the Sheets and Drive services on an authenticated client.
func NewFromClient(ctx context.Context, client *http.Client, cache HandleCache, opts ...Option) (*Store, error) {
	sheetsSrv, err := sheetsapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	driveSrv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return New(sheetsSrv, driveSrv, cache, opts...), nil
}

// Resolve returns the cached spreadsheet for identity while it is neither deleted
// nor trashed, otherwise searches Drive for one named s.title owned by the caller,
// creating it when none exists.
func (s *Store) Resolve(ctx context.Context, identity string) (remote.Handle, error) {
	if id, ok := s.cache.Handle(identity); ok {
		usable, err := s.usable(ctx, id)
		if err != nil {
			return "", err
		}
		if usable {
			return remote.Handle(id), nil
		}
		s.logger.Printf("Cached spreadsheet %s is deleted or trashed, searching again", id)
		s.cache.ClearHandle(identity)
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and 'me' in owners and trashed = false",
		escapeQuery(s.title), spreadsheetMime)
	list, err := s.drive.Files.List().
		Q(q).
		Spaces("drive").
		OrderBy("modifiedTime desc").
		Fields("files(id,name,modifiedTime)").
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapErr("search spreadsheet", err)
	}

	var id string
	switch len(list.Files) {
	case 0:
		id, err = s.create(ctx)
	case 1:
		id = list.Files[0].Id
	default:
		s.logger.Printf("Found %d spreadsheets named %q, picking the most recently used", len(list.Files), s.title)
		ids := make([]string, len(list.Files))
		for i, f := range list.Files {
			ids[i] = f.Id
		}
		id, err = s.pickCandidate(ctx, ids)
	}
	if err != nil {
		return "", err
	}

	s.cache.SetHandle(identity, id)
	return remote.Handle(id), nil
}

// usable reports whether spreadsheet id still exists outside the trash.
func (s *Store) usable(ctx context.Context, id string) (bool, error) {
	f, err := s.drive.Files.Get(id).Fields("id,trashed").Context(ctx).Do()
	if err != nil {
		err = wrapErr("check spreadsheet", err)
		if remote.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !f.Trashed, nil
}

// Forget drops the cached spreadsheet for identity.
func (s *Store) Forget(identity string) {
	s.cache.ClearHandle(identity)
}

type candidate struct {
	id     string
	order  int // position in the search results, most recently modified first
	latest time.Time
	rows   int
}

// pickCandidate chooses among duplicate spreadsheets: latest task updatedAt wins,
// then more task rows, then search order.
func (s *Store) pickCandidate(ctx context.Context, ids []string) (string, error) {
	cands := make([]candidate, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectLimit)

	for i, id := range ids {
		cands[i] = candidate{id: id, order: i}
		g.Go(func() error {
			resp, err := s.sheets.Spreadsheets.Values.Get(id, sections[0].dataRange()).Context(gctx).Do()
			if err != nil {
				err = wrapErr("inspect spreadsheet "+id, err)
				if remote.IsAuth(err) {
					return err
				}
				s.logger.Printf("Warning: %v", err)
				return nil
			}
			for _, row := range resp.Values {
				if strings.TrimSpace(cell(row, 0)) == "" {
					continue
				}
				cands[i].rows++
				if ts := parseTime(cell(row, 9)); ts.After(cands[i].latest) {
					cands[i].latest = ts
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	sort.SliceStable(cands, func(a, b int) bool {
		ca, cb := cands[a], cands[b]
		if !ca.latest.Equal(cb.latest) {
			return ca.latest.After(cb.latest)
		}
		if ca.rows != cb.rows {
			return ca.rows > cb.rows
		}
		return ca.order < cb.order
	})
	return cands[0].id, nil
}

func (s *Store) create(ctx context.Context) (string, error) {
	book := &sheetsapi.Spreadsheet{
		Properties: &sheetsapi.SpreadsheetProperties{Title: s.title},
	}
	for _, sec := range sections {
		book.Sheets = append(book.Sheets, &sheetsapi.Sheet{
			Properties: &sheetsapi.SheetProperties{Title: sec.sheet},
		})
	}
	created, err := s.sheets.Spreadsheets.Create(book).Context(ctx).Do()
	if err != nil {
		return "", wrapErr("create spreadsheet", err)
	}

	req := &sheetsapi.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, sec := range sections {
		header := make([]interface{}, len(sec.header))
		for i, h := range sec.header {
			header[i] = h
		}
		req.Data = append(req.Data, &sheetsapi.ValueRange{
			Range:  sec.headerRange(),
			Values: [][]interface{}{header},
		})
	}
	if _, err := s.sheets.Spreadsheets.Values.BatchUpdate(created.SpreadsheetId, req).Context(ctx).Do(); err != nil {
		return "", wrapErr("write headers", err)
	}
	s.logger.Printf("Created spreadsheet %q (%s)", s.title, created.SpreadsheetId)
	return created.SpreadsheetId, nil
}

// Pull reads all three sections in one batch request. Unusable rows are logged and skipped.
func (s *Store) Pull(ctx context.Context, h remote.Handle) (model.Snapshot, error) {
	ranges := make([]string, len(sections))
	for i, sec := range sections {
		ranges[i] = sec.dataRange()
	}
	resp, err := s.sheets.Spreadsheets.Values.BatchGet(string(h)).Ranges(ranges...).Context(ctx).Do()
	if err != nil {
		return model.Snapshot{}, wrapErr("pull", err)
	}

	values := make([][][]interface{}, len(sections))
	for i, vr := range resp.ValueRanges {
		if i < len(values) && vr != nil {
			values[i] = vr.Values
		}
	}

	snap, rowErrs := decodeSnapshot(values[0], values[1], values[2])
	for _, e := range rowErrs {
		s.logger.Printf("Warning: skipped %v", e)
	}
	return snap, nil
}

// Push clears every data range and rewrites the full snapshot. The API has no
// merge primitive, so this is always a complete overwrite.
func (s *Store) Push(ctx context.Context, h remote.Handle, snap model.Snapshot) error {
	clearReq := &sheetsapi.BatchClearValuesRequest{}
	for _, sec := range sections {
		clearReq.Ranges = append(clearReq.Ranges, sec.dataRange())
	}
	if _, err := s.sheets.Spreadsheets.Values.BatchClear(string(h), clearReq).Context(ctx).Do(); err != nil {
		return wrapErr("clear", err)
	}

	rows := encodeSnapshot(snap)
	req := &sheetsapi.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, sec := range sections {
		if len(rows[sec.sheet]) == 0 {
			continue
		}
		req.Data = append(req.Data, &sheetsapi.ValueRange{
			Range:  sec.writeRange(),
			Values: rows[sec.sheet],
		})
	}
	if len(req.Data) == 0 {
		return nil
	}
	if _, err := s.sheets.Spreadsheets.Values.BatchUpdate(string(h), req).Context(ctx).Do(); err != nil {
		return wrapErr("write", err)
	}
	return nil
}

// wrapErr maps client errors onto remote.Error. A failed token refresh is
// reported as 401 so the caller drops the credential.
func wrapErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return fmt.Errorf("%s: %w", op, &remote.Error{Status: gerr.Code, Message: msg})
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%s: %w", op, &remote.Error{Status: http.StatusUnauthorized, Message: rerr.Error()})
	}
	return fmt.Errorf("%s: %w", op, &remote.Error{Message: err.Error()})
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
