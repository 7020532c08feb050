// Package catalog maintains the file-backed project catalog and resolves
// spoken project names against it.
package catalog

import (
	"sort"
	"strings"
	"time"
)

// Project is one entry from the projects database.
type Project struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Status  string   `json:"status,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// Metadata records provenance of the cached catalog. Age is always derived
// from LastFetch at access time, never stored.
type Metadata struct {
	LastFetch       time.Time `json:"last_fetch"`
	Source          string    `json:"source"`
	TotalProjects   int       `json:"total_projects"`
	FetchDurationMS int64     `json:"fetch_duration_ms"`
	FailedAttempts  int       `json:"failed_attempts"`
}

// Catalog is the in-memory form of the project cache.
type Catalog struct {
	// Projects is keyed by exact project name.
	Projects map[string]Project `json:"projects"`

	// Aliases maps a normalized alias to the project name owning it.
	Aliases map[string]string `json:"aliases"`

	Metadata Metadata `json:"metadata"`
}

// Build assembles a Catalog from fetched projects.
func Build(projects []Project, source string, fetchedAt time.Time, fetchDuration time.Duration) *Catalog {
	c := &Catalog{
		Projects: make(map[string]Project, len(projects)),
		Aliases:  make(map[string]string),
		Metadata: Metadata{
			LastFetch:       fetchedAt,
			Source:          source,
			TotalProjects:   len(projects),
			FetchDurationMS: fetchDuration.Milliseconds(),
		},
	}
	for _, p := range projects {
		c.Projects[p.Name] = p
		for _, a := range p.Aliases {
			c.Aliases[normalizePhrase(a)] = p.Name
		}
	}
	return c
}

// Empty reports whether the catalog holds no projects.
func (c *Catalog) Empty() bool {
	return c == nil || len(c.Projects) == 0
}

// Age returns how old the cached contents are.
func (c *Catalog) Age(now time.Time) time.Duration {
	if c == nil || c.Metadata.LastFetch.IsZero() {
		return 1<<63 - 1
	}
	return now.Sub(c.Metadata.LastFetch)
}

// Names returns all project names sorted alphabetically.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Projects))
	for name := range c.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ordinals maps spoken ordinal forms to their word equivalents so that
// "2nd Brain" and "Second Brain" resolve identically.
var ordinals = map[string]string{
	"1st": "first", "2nd": "second", "3rd": "third", "4th": "fourth",
	"5th": "fifth", "6th": "sixth", "7th": "seventh", "8th": "eighth",
	"9th": "ninth", "10th": "tenth",
}

// normalizeWord lowercases, strips edge punctuation, and maps ordinals.
func normalizeWord(w string) string {
	w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()"))
	if mapped, ok := ordinals[w]; ok {
		return mapped
	}
	return w
}

// normalizePhrase normalizes every word of a phrase.
func normalizePhrase(phrase string) string {
	fields := strings.Fields(phrase)
	for i, f := range fields {
		fields[i] = normalizeWord(f)
	}
	return strings.Join(fields, " ")
}
