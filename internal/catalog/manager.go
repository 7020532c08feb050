package catalog

import (
	"context"
	"log/slog"
	"time"
)

// hardFreshnessCeiling forces a refresh attempt regardless of the configured
// max age.
const hardFreshnessCeiling = 24 * time.Hour

// Fetcher retrieves the live project list from the document store.
type Fetcher interface {
	FetchProjects(ctx context.Context) ([]Project, error)
}

// fallbackProjects is the last-resort list used when both the store and the
// cache are unavailable. Matching still works; relations will be absent
// because these entries carry no store IDs.
var fallbackProjects = []Project{
	{Name: "Life Admin HQ", Aliases: []string{"life admin", "admin"}},
	{Name: "Home Projects", Aliases: []string{"home", "house"}},
	{Name: "Work"},
	{Name: "Health & Fitness", Aliases: []string{"health", "fitness"}},
	{Name: "Personal Development", Aliases: []string{"personal dev"}},
}

// Manager owns the catalog cache and its refresh policy. Refresh is
// synchronous: it happens at the start of the analysis stage and on cache
// miss, never in the background.
type Manager struct {
	path    string
	maxAge  time.Duration
	fetcher Fetcher
	now     func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a catalog manager over the given cache file.
func NewManager(path string, maxAge time.Duration, fetcher Fetcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		path:    path,
		maxAge:  maxAge,
		fetcher: fetcher,
		now:     time.Now,
	}
	if m.maxAge <= 0 {
		m.maxAge = time.Hour
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure returns a usable catalog, refreshing it when the policy demands.
// The chain never fails outright: a failed refresh falls back to stale
// cached contents, and an empty cache falls back to the built-in list.
func (m *Manager) Ensure(ctx context.Context) *Catalog {
	cached := loadCache(m.path)
	if !m.needsRefresh(cached) {
		return cached
	}

	start := m.now()
	projects, err := m.fetcher.FetchProjects(ctx)
	if err != nil {
		cached.Metadata.FailedAttempts++
		if saveErr := saveCache(m.path, cached); saveErr != nil {
			slog.Warn("cannot record failed catalog fetch", "error", saveErr)
		}
		if !cached.Empty() {
			slog.Warn("project fetch failed, using stale cache",
				"error", err,
				"age", m.now().Sub(cached.Metadata.LastFetch).Round(time.Minute),
				"failed_attempts", cached.Metadata.FailedAttempts)
			return cached
		}
		slog.Warn("project fetch failed and cache is empty, using built-in list", "error", err)
		fb := Build(fallbackProjects, "fallback", m.now(), 0)
		fb.Metadata.FailedAttempts = cached.Metadata.FailedAttempts
		return fb
	}

	fresh := Build(projects, "store", m.now(), m.now().Sub(start))
	if err := saveCache(m.path, fresh); err != nil {
		slog.Warn("cannot persist refreshed catalog", "error", err)
	}
	slog.Info("project catalog refreshed",
		"projects", len(projects),
		"duration_ms", fresh.Metadata.FetchDurationMS)
	return fresh
}

func (m *Manager) needsRefresh(c *Catalog) bool {
	if c.Empty() {
		return true
	}
	age := c.Age(m.now())
	return age > hardFreshnessCeiling || age > m.maxAge
}
