package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elcuervo/otx/internal/cache"
	"github.com/elcuervo/otx/internal/status"
	"github.com/elcuervo/otx/internal/store"
	"github.com/elcuervo/otx/internal/task"
	"github.com/elcuervo/otx/internal/vault"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupVault creates a vault with two documents and a query file, and a
// config pointing at it.
func setupVault(t *testing.T) (string, string) {
	t.Helper()

	root := t.TempDir()
	vaultDir := filepath.Join(root, "vault")

	writeFile(t, filepath.Join(vaultDir, "work", "project.md"), "# Project\n\n- [ ] #task write report 📅 2000-01-01\n- [x] #task kickoff ✅ 1999-12-01\n- [ ] not tracked\n")
	writeFile(t, filepath.Join(vaultDir, "home.md"), "## Chores\n\n- [/] #task paint fence ⏫\n")
	writeFile(t, filepath.Join(vaultDir, "Tasks.md"), "## Open\n\n```tasks\nnot done\nsort by description\n```\n\n## SQL\n\n```task-sql\nWHERE completed = 1\n```\n")

	configDir := filepath.Join(root, "config")
	writeFile(t, filepath.Join(configDir, "otx", "config.toml"), `default_profile = "notes"
global_filter = "#task"
remove_global_filter = true

[profiles.notes]
vault = "`+filepath.ToSlash(vaultDir)+`"
query = "Tasks.md"
`)
	t.Setenv("XDG_CONFIG_HOME", configDir)

	return root, vaultDir
}

func TestResolveProfile(t *testing.T) {
	root, vaultDir := setupVault(t)
	wantVault, _ := filepath.EvalSymlinks(vaultDir)

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}

	t.Run("default profile", func(t *testing.T) {
		p, err := resolveProfile(cfg, cfgPath, flags{})
		if err != nil {
			t.Fatal(err)
		}
		if p.Name != "notes" || p.VaultPath != wantVault || !p.QueryIsFile {
			t.Errorf("profile = %+v", p)
		}
	})

	t.Run("flags override", func(t *testing.T) {
		other := filepath.Join(root, "other")
		if err := os.MkdirAll(other, 0o755); err != nil {
			t.Fatal(err)
		}

		p, err := resolveProfile(cfg, cfgPath, flags{vault: other, query: "not done"})
		if err != nil {
			t.Fatal(err)
		}
		wantOther, _ := filepath.EvalSymlinks(other)
		if p.VaultPath != wantOther || p.QueryIsFile || p.Query != "not done" {
			t.Errorf("profile = %+v", p)
		}
	})

	t.Run("no vault", func(t *testing.T) {
		if _, err := resolveProfile(Config{}, cfgPath, flags{}); err == nil {
			t.Error("expected an error without a vault")
		}
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := resolveProfile(cfg, cfgPath, flags{profile: "missing"})
		var pe *ProfileError
		if !errors.As(err, &pe) {
			t.Errorf("error = %v, want ProfileError", err)
		}
	})
}

func TestRunListMode(t *testing.T) {
	root, _ := setupVault(t)
	mirror := filepath.Join(root, "index.db")

	var out bytes.Buffer
	if err := run(context.Background(), flags{list: true, mirror: mirror}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Found 3 task(s):",
		"## Open (2)",
		"- [ ] [/] paint fence ⏫",
		"- [ ] write report 📅 2000-01-01",
		"## SQL (1)",
		"- [x] kickoff ✅ 1999-12-01",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "not tracked") {
		t.Errorf("line without the global filter was listed:\n%s", got)
	}

	db, err := store.Open(context.Background(), mirror)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	n, err := db.Count(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("mirror holds %d tasks, want 3", n)
	}
}

func TestWatchLoadsThroughResolved(t *testing.T) {
	_, vaultDir := setupVault(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	codec := task.NewCodec()
	codec.GlobalFilter = "#task"

	docs := vault.New(vaultDir)
	index := cache.New(docs, codec)
	index.Start(ctx)
	defer index.Close()

	resolved := watch(ctx, docs, index, slog.New(slog.DiscardHandler))
	if err := waitWarm(ctx, index, resolved); err != nil {
		t.Fatalf("waitWarm() error = %v", err)
	}

	if got := len(index.Tasks()); got != 3 {
		t.Errorf("indexed %d tasks, want 3", got)
	}
}

func TestWaitWarmReportsFailedLoad(t *testing.T) {
	docs := vault.New(filepath.Join(t.TempDir(), "missing"))
	index := cache.New(docs, task.NewCodec())
	index.Start(context.Background())
	defer index.Close()

	index.Notify(cache.Event{Kind: cache.Resolved})
	if err := waitWarm(context.Background(), index, nil); !errors.Is(err, errNotIndexed) {
		t.Errorf("waitWarm() error = %v, want %v", err, errNotIndexed)
	}
}

func TestReconfigureReindexesWithNewSettings(t *testing.T) {
	root, vaultDir := setupVault(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, _, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	current, err := cfg.taskSettings()
	if err != nil {
		t.Fatal(err)
	}
	registries := status.NewShared(current.registry)

	index := cache.New(vault.New(vaultDir), current.codec)
	index.Start(ctx)
	defer index.Close()

	if err := index.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := len(index.Tasks()); got != 3 {
		t.Fatalf("indexed %d tasks, want 3", got)
	}

	writeFile(t, filepath.Join(root, "config", "otx", "config.toml"), `default_profile = "notes"

[profiles.notes]
vault = "`+filepath.ToSlash(vaultDir)+`"
query = "Tasks.md"

[[statuses]]
symbol = " "
name = "Open"
next = "/"

[[statuses]]
symbol = "/"
name = "Doing"
next = "x"

[[statuses]]
symbol = "x"
name = "Closed"
next = " "
completed = true
`)

	next, err := reconfigure(ctx, index, registries)
	if err != nil {
		t.Fatalf("reconfigure() error = %v", err)
	}

	if next.codec.GlobalFilter != "" || index.Codec().GlobalFilter != "" {
		t.Errorf("global filter still set: %q / %q", next.codec.GlobalFilter, index.Codec().GlobalFilter)
	}
	if got := registries.Load().ByIndicator("x").Name; got != "Closed" {
		t.Errorf("published registry names x %q, want Closed", got)
	}
	if index.State() != cache.Warm {
		t.Errorf("state = %v, want Warm", index.State())
	}
	if got := len(index.Tasks()); got != 4 {
		t.Errorf("indexed %d tasks after reload, want 4", got)
	}
}

func TestToggleLineCommand(t *testing.T) {
	_, vaultDir := setupVault(t)

	var out bytes.Buffer
	if err := run(context.Background(), flags{toggle: "home.md:3"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); !strings.HasPrefix(got, "- [x] #task paint fence ⏫ ✅ ") {
		t.Errorf("output = %q", got)
	}

	out.Reset()
	if err := run(context.Background(), flags{toggle: "work/project.md:5", status: "-"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(vaultDir, "work", "project.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "- [-] not tracked") {
		t.Errorf("unmanaged checklist line not updated:\n%s", raw)
	}

	for _, target := range []string{"home.md", "home.md:0", "home.md:99"} {
		if err := run(context.Background(), flags{toggle: target}, io.Discard); err == nil {
			t.Errorf("toggle %q: expected an error", target)
		}
	}
}
