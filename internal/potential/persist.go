// FILE: persist.go
// Package potential – disk persistence for the "all" column.
//
// Only the "all" column is ever written; "potential" is cheap to
// re-derive from it plus a strategy key and is never persisted. Loading
// is additive: existing in-memory entries are preserved, and a loaded
// entry fills only the (window, asset) scores the table doesn't already
// have a value for.
package potential

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// persistedEntry is one (window, asset->score) row in the YAML document.
type persistedEntry struct {
	StartUnixMs int64              `yaml:"start_unix_ms"`
	EndUnixMs   int64              `yaml:"end_unix_ms"`
	Scores      map[string]float64 `yaml:"scores"`
}

// Save writes the table's "all" column to path as a sorted-by-key YAML
// document.
func (t *Table) Save(path string) error {
	t.mu.Lock()
	entries := make([]persistedEntry, 0, len(t.all))
	for wk, scores := range t.all {
		entries = append(entries, persistedEntry{StartUnixMs: wk.StartMs, EndUnixMs: wk.EndMs, Scores: scores})
	}
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartUnixMs != entries[j].StartUnixMs {
			return entries[i].StartUnixMs < entries[j].StartUnixMs
		}
		return entries[i].EndUnixMs < entries[j].EndUnixMs
	})

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("potential: marshal cache: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a persisted "all" column from path. For each window
// registered in this table's multi-index it fills only the asset scores
// that window doesn't already have (additive load); unregistered windows
// are skipped. A second Load or Resolve call with the same
// strategy key after this is idempotent.
func (t *Table) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("potential: read cache %s: %w", path, err)
	}
	var entries []persistedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("potential: parse cache %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		wk := WindowKey{StartMs: e.StartUnixMs, EndMs: e.EndUnixMs}
		if !t.allIndex[wk] {
			continue
		}
		existing, ok := t.all[wk]
		if !ok {
			t.all[wk] = e.Scores
			continue
		}
		// Additive: a loaded entry only fills asset slots this window's
		// in-memory map doesn't already have a value for.
		for asset, score := range e.Scores {
			if _, has := existing[asset]; !has {
				existing[asset] = score
			}
		}
	}
	return nil
}
