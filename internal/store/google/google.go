// Package google stores subscriptions in a Google Sheets tab, one row per
// subscription.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/store"
)

// Config selects the spreadsheet and the credentials. OAuth client plus
// token take precedence over a service account.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenJSON     string
	OAuthTokenFile     string
}

// valuesAPI is the slice of the Sheets values API the store needs.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]interface{}, error)
	Clear(ctx context.Context, rng string) error
	Update(ctx context.Context, rng string, rows [][]interface{}) error
}

type Store struct {
	// Sheets has no transactions; serialize read-modify-write cycles.
	mu     sync.Mutex
	values valuesAPI
	sheet  string
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Subscriptions"
	}
	return newWithAPI(&sheetsValues{svc: svc, spreadsheetID: cfg.SpreadsheetID}, sheet), nil
}

func newWithAPI(api valuesAPI, sheet string) *Store {
	return &Store{values: api, sheet: sheet}
}

func (s *Store) dataRange() string {
	return fmt.Sprintf("%s!A2:G", s.sheet)
}

func (s *Store) Load(ctx context.Context) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) ([]core.Subscription, error) {
	rows, err := s.values.Get(ctx, s.dataRange())
	if err != nil {
		return nil, core.Unavailable("read "+s.dataRange(), err)
	}
	subs := make([]core.Subscription, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 || (i == 0 && isHeader(row)) {
			continue
		}
		sub, err := parseRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unparseable subscription row",
				log.FieldComponent, log.ComponentSheets,
				"row", i+2,
				log.FieldError, err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// SaveAll rewrites the header and every data row.
func (s *Store) SaveAll(ctx context.Context, subs []core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, subs)
}

func (s *Store) saveLocked(ctx context.Context, subs []core.Subscription) error {
	if err := s.values.Clear(ctx, s.dataRange()); err != nil {
		return core.Unavailable("clear "+s.dataRange(), err)
	}
	rows := make([][]interface{}, 0, len(subs)+1)
	rows = append(rows, header)
	for _, sub := range subs {
		rows = append(rows, toRow(sub))
	}
	rng := fmt.Sprintf("%s!A1:G%d", s.sheet, len(rows))
	if err := s.values.Update(ctx, rng, rows); err != nil {
		return core.Unavailable("write "+rng, err)
	}
	slog.DebugContext(ctx, "Subscriptions written to Google Sheets",
		log.FieldComponent, log.ComponentSheets,
		log.FieldCount, len(subs))
	return nil
}

func (s *Store) Upsert(ctx context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	return s.saveLocked(ctx, store.ReplaceByID(subs, sub))
}

func (s *Store) DeleteByID(ctx context.Context, id string) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	remaining, found := store.RemoveByID(subs, id)
	if !found {
		return nil, fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	if err := s.saveLocked(ctx, remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

// Ping reads the header row.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.values.Get(ctx, fmt.Sprintf("%s!A1:G1", s.sheet))
	return err
}

type sheetsValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (v *sheetsValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(v.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v *sheetsValues) Clear(ctx context.Context, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(v.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (v *sheetsValues) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	_, err := v.svc.Spreadsheets.Values.Update(v.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	if cfg.OAuthClientJSON != "" || cfg.OAuthClientFile != "" {
		client, err := oauthHTTPClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth credentials for Google Sheets", log.FieldComponent, log.ComponentSheets)
		return gsheet.NewService(ctx, goption.WithHTTPClient(client))
	}

	credentialsJSON, err := readSecret(cfg.ServiceAccountJSON, cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("service account credentials: %w", err)
	}
	slog.InfoContext(ctx, "Using service account credentials for Google Sheets", log.FieldComponent, log.ComponentSheets)
	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func oauthHTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	clientJSON, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tokenJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return oauthCfg.Client(ctx, &tok), nil
}

// readSecret prefers the inline value and falls back to reading path.
func readSecret(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		return b, nil
	}
	return nil, errors.New("neither inline value nor file path set")
}

var (
	_ store.SubscriptionStore = (*Store)(nil)
	_ store.Pinger            = (*Store)(nil)
)
