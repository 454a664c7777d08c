// Package mirror maintains a best-effort remote copy of the reminder store
// as a single JSON document in a GitHub repository, written wholesale
// through the contents API. The local store is always authoritative: mirror
// failures are logged and never surfaced to a user-facing flow.
//
// Writes are debounced with a token bucket so bursts of reminder mutations
// collapse into at most one remote round-trip per interval; a notification
// arriving too soon after the last write is simply skipped. The document is
// read back exactly once, at startup, and only to seed a store with no
// active reminders.
package mirror

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/repo"
)

// Snapshot is the wire shape of the mirror document: three arrays matching
// the three store tables. It is overwritten wholesale on each backup; it
// is not a log and not incremental.
type Snapshot struct {
	Users         []domain.User           `json:"users"`
	Reminders     []domain.Reminder       `json:"reminders"`
	ScheduledJobs []domain.TriggerMapping `json:"scheduled_jobs"`
}

// Config carries the GitHub coordinates of the mirror document. An empty
// Token disables the mirror entirely.
type Config struct {
	Token       string
	Owner       string
	Repo        string
	File        string
	MinInterval time.Duration
}

// Mirror writes and reads the remote snapshot. Safe for concurrent use.
type Mirror struct {
	db      *gorm.DB
	cfg     Config
	hc      *http.Client
	limiter *rate.Limiter
	lg      zerolog.Logger

	// baseURL is a seam for tests; defaults to the public GitHub API.
	baseURL string
}

// New constructs a Mirror. cfg.MinInterval below one second is raised to
// the default of five seconds.
func New(db *gorm.DB, cfg Config) *Mirror {
	if cfg.MinInterval < time.Second {
		cfg.MinInterval = 5 * time.Second
	}
	return &Mirror{
		db:  db,
		cfg: cfg,
		hc:  &http.Client{Timeout: 15 * time.Second},
		// Burst 1: the first notify goes through, the rest wait out the interval.
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		lg:      log.With().Str("component", "mirror").Logger(),
		baseURL: "https://api.github.com",
	}
}

// Enabled reports whether the mirror is configured.
func (m *Mirror) Enabled() bool {
	return m.cfg.Token != "" && m.cfg.Owner != "" && m.cfg.Repo != "" && m.cfg.File != ""
}

// Notify schedules a backup unless one ran too recently. It returns
// immediately; the upload happens on its own goroutine so store mutations
// never wait on the network.
func (m *Mirror) Notify() {
	if !m.Enabled() {
		return
	}
	if !m.limiter.Allow() {
		m.lg.Debug().Msg("backup skipped, too soon after previous write")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.Backup(ctx); err != nil {
			m.lg.Error().Err(err).Msg("backup failed")
		}
	}()
}

// Backup reads the whole store and overwrites the remote document.
func (m *Mirror) Backup(ctx context.Context) error {
	snap, err := m.snapshot(ctx)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	// The contents API requires the current blob sha to overwrite.
	_, sha, err := m.fetch(ctx)
	if err != nil && !errors.Is(err, errMissing) {
		return err
	}
	return m.put(ctx, body, sha)
}

// ImportIfEmpty seeds the store from the remote document when the store
// holds no active reminders; a store with live reminders is left untouched
// to avoid duplicating them. Registry rows in the document reference dead
// handles from a previous process; they are restored for shape fidelity
// and superseded by recovery.
func (m *Mirror) ImportIfEmpty(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	n, err := repo.CountActiveReminders(ctx, m.db)
	if err != nil {
		return err
	}
	if n > 0 {
		m.lg.Info().Int64("active", n).Msg("store has live reminders, mirror import skipped")
		return nil
	}

	raw, _, err := m.fetch(ctx)
	if errors.Is(err, errMissing) {
		m.lg.Info().Msg("no mirror document yet")
		return nil
	}
	if err != nil {
		return err
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode mirror document: %w", err)
	}

	// Rows already present (completed reminders, their owners) are kept
	// as-is; only missing rows are seeded.
	keep := clause.OnConflict{DoNothing: true}
	for i := range snap.Users {
		if err := m.db.WithContext(ctx).Clauses(keep).Create(&snap.Users[i]).Error; err != nil {
			return err
		}
	}
	for i := range snap.Reminders {
		if err := m.db.WithContext(ctx).Clauses(keep).Create(&snap.Reminders[i]).Error; err != nil {
			return err
		}
	}
	for i := range snap.ScheduledJobs {
		if err := m.db.WithContext(ctx).Clauses(keep).Create(&snap.ScheduledJobs[i]).Error; err != nil {
			return err
		}
	}

	m.lg.Info().
		Int("users", len(snap.Users)).
		Int("reminders", len(snap.Reminders)).
		Msg("store seeded from mirror")
	return nil
}

func (m *Mirror) snapshot(ctx context.Context) (*Snapshot, error) {
	users, err := repo.ListUsers(ctx, m.db)
	if err != nil {
		return nil, err
	}
	reminders, err := repo.ListAllReminders(ctx, m.db)
	if err != nil {
		return nil, err
	}
	jobs, err := repo.ListAllTriggerMappings(ctx, m.db)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Users: users, Reminders: reminders, ScheduledJobs: jobs}, nil
}

// errMissing marks a 404 from the contents API (document not created yet).
var errMissing = errors.New("mirror document missing")

// contentsResponse is the subset of the contents API response we read.
type contentsResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

func (m *Mirror) url() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", m.baseURL, m.cfg.Owner, m.cfg.Repo, m.cfg.File)
}

// fetch downloads the current document, returning its decoded bytes and
// blob sha, or errMissing when it does not exist.
func (m *Mirror) fetch(ctx context.Context) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "token "+m.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := m.hc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", errMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("contents GET: unexpected status %d", resp.StatusCode)
	}

	var cr contentsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&cr); err != nil {
		return nil, "", err
	}
	raw, err := base64.StdEncoding.DecodeString(stripNewlines(cr.Content))
	if err != nil {
		return nil, "", fmt.Errorf("decode contents: %w", err)
	}
	return raw, cr.SHA, nil
}

// put uploads body as the new document content, replacing sha when the
// document already exists.
func (m *Mirror) put(ctx context.Context, body []byte, sha string) error {
	payload := map[string]string{
		"message": "backup update",
		"content": base64.StdEncoding.EncodeToString(body),
	}
	if sha != "" {
		payload["sha"] = sha
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, m.url(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+m.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("contents PUT: unexpected status %d", resp.StatusCode)
	}
	m.lg.Debug().Int("bytes", len(body)).Msg("mirror written")
	return nil
}

// stripNewlines removes the line breaks GitHub inserts into base64 content.
func stripNewlines(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			b = append(b, s[i])
		}
	}
	return string(b)
}
