package updates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parley-im/parley/internal/testutil"
)

func writeAppSettings(t *testing.T, s string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), AppSettingsFile)
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		t.Fatalf("write app settings: %v", err)
	}
	return path
}

func TestDefaultsWithoutAppTier(t *testing.T) {
	t.Parallel()

	u := New(testutil.OpenStore(t), nil, "1.0.0",
		WithAppSettingsPath(filepath.Join(t.TempDir(), AppSettingsFile)))

	if !u.CanUpdate() || !u.CanAutoUpdate() || !u.CanSetAutoUpdate() {
		t.Errorf("defaults = %+v, want everything allowed", u.Effective())
	}
}

func TestForcedAppTierWins(t *testing.T) {
	t.Parallel()

	path := writeAppSettings(t, `{"forced":true,"canUpdate":false,"autoUpdate":false}`)
	st := testutil.OpenStore(t)
	ctx := context.Background()

	u := New(st, nil, "1.0.0", WithAppSettingsPath(path))

	if u.CanUpdate() {
		t.Error("forced canUpdate=false not honored")
	}
	if u.CanSetAutoUpdate() {
		t.Error("user can change settings despite forced tier")
	}
	if err := u.SetAutoUpdate(ctx, true); !errors.Is(err, ErrLocked) {
		t.Errorf("SetAutoUpdate err = %v, want ErrLocked", err)
	}
}

func TestUnforcedAppTierConstrainsCanUpdate(t *testing.T) {
	t.Parallel()

	path := writeAppSettings(t, `{"forced":false,"canUpdate":false,"autoUpdate":true}`)
	u := New(testutil.OpenStore(t), nil, "1.0.0", WithAppSettingsPath(path))

	if u.CanUpdate() {
		t.Error("administrator canUpdate=false overridden by user tier")
	}
	if !u.CanSetAutoUpdate() {
		t.Error("unforced tier should leave settings changeable")
	}
}

func TestUserPrefsPersist(t *testing.T) {
	t.Parallel()

	st := testutil.OpenStore(t)
	ctx := context.Background()
	appPath := filepath.Join(t.TempDir(), AppSettingsFile)

	u := New(st, nil, "1.0.0", WithAppSettingsPath(appPath))
	if err := u.SetAutoUpdate(ctx, false); err != nil {
		t.Fatalf("SetAutoUpdate: %v", err)
	}
	if err := u.SkipVersion(ctx, "2.0.0"); err != nil {
		t.Fatalf("SkipVersion: %v", err)
	}

	reloaded := New(st, nil, "1.0.0", WithAppSettingsPath(appPath))
	if reloaded.CanAutoUpdate() {
		t.Error("auto-update preference lost on reload")
	}
	if got := reloaded.Effective().SkippedVersion; got != "2.0.0" {
		t.Errorf("skipped version = %q", got)
	}
}

func TestCorruptAppTierIgnored(t *testing.T) {
	t.Parallel()

	path := writeAppSettings(t, `{not json`)
	u := New(testutil.OpenStore(t), nil, "1.0.0", WithAppSettingsPath(path))

	if !u.CanUpdate() {
		t.Error("corrupt administrator file should leave defaults intact")
	}
}

func TestCheckHonorsSkippedVersion(t *testing.T) {
	t.Parallel()

	st := testutil.OpenStore(t)
	ctx := context.Background()
	appPath := filepath.Join(t.TempDir(), AppSettingsFile)

	source := func(ctx context.Context) (string, error) { return "2.0.0", nil }
	u := New(st, nil, "1.0.0", WithAppSettingsPath(appPath), WithVersionSource(source))

	got, err := u.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != "2.0.0" {
		t.Fatalf("new version = %q, want 2.0.0", got)
	}

	if err := u.SkipVersion(ctx, "2.0.0"); err != nil {
		t.Fatalf("SkipVersion: %v", err)
	}
	got, err = u.Check(ctx)
	if err != nil {
		t.Fatalf("Check after skip: %v", err)
	}
	if got != "" {
		t.Errorf("skipped version still announced: %q", got)
	}
}

func TestCheckCurrentVersionIsNoUpdate(t *testing.T) {
	t.Parallel()

	appPath := filepath.Join(t.TempDir(), AppSettingsFile)
	source := func(ctx context.Context) (string, error) { return "1.0.0", nil }
	u := New(testutil.OpenStore(t), nil, "1.0.0", WithAppSettingsPath(appPath), WithVersionSource(source))

	got, err := u.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != "" {
		t.Errorf("current version announced as update: %q", got)
	}
}
