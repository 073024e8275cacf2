package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeLegacyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}
	return path
}

func TestMigrateLegacyServersShapes(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantURLs []string
	}{
		{
			name:     "bare string",
			content:  `"https://chat.example.com/"`,
			wantURLs: []string{"https://chat.example.com"},
		},
		{
			name:     "array of urls",
			content:  `["https://a.example/", "https://b.example"]`,
			wantURLs: []string{"https://a.example", "https://b.example"},
		},
		{
			name:     "object keyed by url",
			content:  `{"https://a.example": {"url": "https://a.example", "title": "Team A", "lastPath": "/channel/dev"}}`,
			wantURLs: []string{"https://a.example"},
		},
		{
			name:     "object keyed by title",
			content:  `{"Team B": "https://b.example"}`,
			wantURLs: []string{"https://b.example"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()
			path := writeLegacyFile(t, tt.content)

			n, err := s.MigrateLegacyServers(ctx, path)
			if err != nil {
				t.Fatalf("MigrateLegacyServers: %v", err)
			}
			if n != len(tt.wantURLs) {
				t.Fatalf("migrated %d records, want %d", n, len(tt.wantURLs))
			}

			got, err := s.ListServers(ctx)
			if err != nil {
				t.Fatalf("ListServers: %v", err)
			}
			if len(got) != len(tt.wantURLs) {
				t.Fatalf("got %d servers, want %d", len(got), len(tt.wantURLs))
			}
			for i, url := range tt.wantURLs {
				if got[i].URL != url {
					t.Errorf("server %d: got %q, want %q", i, got[i].URL, url)
				}
			}

			// File must be renamed aside so the migration never reruns.
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Error("legacy file still present after migration")
			}
			if _, err := os.Stat(path + ".migrated"); err != nil {
				t.Errorf("retired legacy file missing: %v", err)
			}
		})
	}
}

func TestMigrateLegacyServersDetails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	path := writeLegacyFile(t, `{"https://a.example": {"url": "https://a.example", "title": "Team A", "lastPath": "/channel/dev", "username": "u", "password": "p", "authUrl": "https://u:p@a.example"}}`)

	if _, err := s.MigrateLegacyServers(ctx, path); err != nil {
		t.Fatalf("MigrateLegacyServers: %v", err)
	}

	got, _ := s.ListServers(ctx)
	if len(got) != 1 {
		t.Fatalf("got %d servers", len(got))
	}
	rec := got[0]
	if rec.Title != "Team A" || rec.LastPath != "/channel/dev" || rec.Username != "u" || rec.Password != "p" || rec.AuthURL != "https://u:p@a.example" {
		t.Fatalf("legacy fields lost: %+v", rec)
	}
}

func TestMigrateLegacyServersSkipsPopulatedStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertServer(ctx, ServerRecord{URL: "https://existing.example", Title: "Existing"}); err != nil {
		t.Fatalf("UpsertServer: %v", err)
	}

	path := writeLegacyFile(t, `["https://stale.example"]`)
	n, err := s.MigrateLegacyServers(ctx, path)
	if err != nil {
		t.Fatalf("MigrateLegacyServers: %v", err)
	}
	if n != 0 {
		t.Fatalf("populated store imported %d legacy records", n)
	}

	got, _ := s.ListServers(ctx)
	if len(got) != 1 || got[0].URL != "https://existing.example" {
		t.Fatalf("store contents changed: %+v", got)
	}
}

func TestMigrateLegacyServersMissingFile(t *testing.T) {
	s := openTestStore(t)
	n, err := s.MigrateLegacyServers(context.Background(), filepath.Join(t.TempDir(), "servers.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if n != 0 {
		t.Fatalf("migrated %d records from a missing file", n)
	}
}

func TestParseLegacyServersGarbage(t *testing.T) {
	if _, err := parseLegacyServers([]byte(`42`)); err == nil {
		t.Fatal("expected error for unrecognised shape")
	}
}
