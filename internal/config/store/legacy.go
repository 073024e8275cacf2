package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// legacyServerEntry matches the richest of the historical servers.json shapes.
type legacyServerEntry struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	LastPath string `json:"lastPath"`
	Username string `json:"username"`
	Password string `json:"password"`
	AuthURL  string `json:"authUrl"`
}

// MigrateLegacyServers imports servers from a legacy servers.json file left
// behind by older releases. Historical loaders accepted three shapes: a bare
// url string, an array of url strings, and an object keyed either by url
// (value: server entry) or by title (value: url string). The shape is
// detected here, exactly once; nothing else in the system ever branches on
// it. The file is renamed aside after a successful import so the migration
// never runs twice.
//
// Records are only imported when the servers table is empty; an already
// populated store wins over stale legacy data.
func (s *Store) MigrateLegacyServers(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("config: read legacy servers file: %w", err)
	}

	existing, err := s.ListServers(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, s.retireLegacyFile(path)
	}

	records, err := parseLegacyServers(data)
	if err != nil {
		return 0, fmt.Errorf("config: parse legacy servers file: %w", err)
	}

	for i, rec := range records {
		rec.Position = i
		if err := s.UpsertServer(ctx, rec); err != nil {
			return 0, err
		}
	}

	if len(records) > 0 {
		urls := make([]string, len(records))
		for i, rec := range records {
			urls[i] = rec.URL
		}
		if err := s.SaveServerOrder(ctx, urls); err != nil {
			return 0, err
		}
	}

	if err := s.retireLegacyFile(path); err != nil {
		return len(records), err
	}
	return len(records), nil
}

func (s *Store) retireLegacyFile(path string) error {
	if err := os.Rename(path, path+".migrated"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: retire legacy servers file: %w", err)
	}
	return nil
}

func parseLegacyServers(data []byte) ([]ServerRecord, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	// Shape 1: bare url string.
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		single = strings.TrimRight(strings.TrimSpace(single), "/")
		if single == "" {
			return nil, nil
		}
		return []ServerRecord{{URL: single, Title: single}}, nil
	}

	// Shape 2: array of url strings.
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		var records []ServerRecord
		for _, raw := range list {
			url := strings.TrimRight(strings.TrimSpace(raw), "/")
			if url == "" {
				continue
			}
			records = append(records, ServerRecord{URL: url, Title: url})
		}
		return records, nil
	}

	// Shape 3a: object keyed by url with entry values.
	var keyed map[string]legacyServerEntry
	if err := json.Unmarshal(data, &keyed); err == nil && objectOfEntries(data) {
		keys := sortedKeys(keyed)
		var records []ServerRecord
		for _, key := range keys {
			entry := keyed[key]
			url := entry.URL
			if url == "" {
				url = key
			}
			url = strings.TrimRight(url, "/")
			title := entry.Title
			if title == "" {
				title = url
			}
			records = append(records, ServerRecord{
				URL:      url,
				Title:    title,
				LastPath: entry.LastPath,
				Username: entry.Username,
				Password: entry.Password,
				AuthURL:  entry.AuthURL,
			})
		}
		return records, nil
	}

	// Shape 3b: object mapping title -> url string.
	var titled map[string]string
	if err := json.Unmarshal(data, &titled); err == nil {
		titles := sortedKeys(titled)
		var records []ServerRecord
		for _, title := range titles {
			url := strings.TrimRight(strings.TrimSpace(titled[title]), "/")
			if url == "" {
				continue
			}
			records = append(records, ServerRecord{URL: url, Title: title})
		}
		return records, nil
	}

	return nil, fmt.Errorf("unrecognised legacy shape")
}

// objectOfEntries distinguishes {"url": {...}} from {"title": "url"}.
func objectOfEntries(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	for _, raw := range probe {
		inner := strings.TrimSpace(string(raw))
		return strings.HasPrefix(inner, "{")
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
