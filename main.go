package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/elcuervo/otx/internal/cache"
	"github.com/elcuervo/otx/internal/query"
	"github.com/elcuervo/otx/internal/recurrence"
	"github.com/elcuervo/otx/internal/status"
	"github.com/elcuervo/otx/internal/store"
	"github.com/elcuervo/otx/internal/task"
	"github.com/elcuervo/otx/internal/vault"
)

var (
	version  = "dev"
	buildSHA = ""
)

var errNotIndexed = errors.New("vault could not be indexed")

type flags struct {
	vault   string
	profile string
	list    bool
	mirror  string
	toggle  string
	status  string
	query   string
}

func main() {
	var f flags

	pflag.StringVar(&f.vault, "vault", "", "Path to Obsidian vault")
	pflag.StringVarP(&f.profile, "profile", "p", "", "Profile name from config (optional)")
	pflag.BoolVarP(&f.list, "list", "l", false, "List tasks without TUI (non-interactive)")
	pflag.StringVar(&f.mirror, "mirror", "", "Mirror the index into this sqlite database")
	pflag.StringVarP(&f.toggle, "toggle", "t", "", "Toggle the line at path:line in the vault and exit")
	pflag.StringVarP(&f.status, "status", "s", "", "Status indicator for --toggle (default: next status)")
	showVersion := pflag.BoolP("version", "v", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("otx %s (%s)\n", version, buildSHA)
		return
	}

	if args := pflag.Args(); len(args) > 0 {
		f.query = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, f, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveProfile merges the selected profile with the command line. Flags
// win over the config file.
func resolveProfile(cfg Config, cfgPath string, f flags) (*ResolvedProfile, error) {
	name, profile, err := selectProfile(f.profile, cfg)
	if err != nil {
		return nil, err
	}

	p := Profile{}
	if profile != nil {
		p = *profile
	}

	if f.vault != "" {
		vaultPath, err := expandPath(f.vault)
		if err != nil {
			return nil, err
		}
		if vaultPath, err = filepath.Abs(vaultPath); err != nil {
			return nil, err
		}
		p.Vault = vaultPath
	}

	if f.query != "" {
		p.Query = f.query
		if expanded, err := expandPath(f.query); err == nil {
			if _, statErr := os.Stat(expanded); statErr == nil {
				p.Query, _ = filepath.Abs(expanded)
			}
		}
	}

	if p.Vault == "" {
		return nil, fmt.Errorf("no vault: pass --vault or set default_profile in %s", cfgPath)
	}

	return resolveProfilePaths(name, p)
}

func run(ctx context.Context, f flags, stdout io.Writer) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	profile, err := resolveProfile(cfg, cfgPath, f)
	if err != nil {
		return err
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger, closer, err := newLogger(cfg.LogFile, level)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer closer.Close()

	current, err := cfg.taskSettings()
	if err != nil {
		return err
	}
	registries := status.NewShared(current.registry)
	initRenderer(cfg.Theme)

	docs := vault.New(profile.VaultPath, vault.WithLogger(logger))

	if f.toggle != "" {
		return toggleLine(ctx, docs, current.toggler(), f.toggle, f.status, stdout)
	}

	blocks, err := loadQueryBlocks(profile)
	if err != nil {
		return err
	}

	opts := []cache.Option{cache.WithLogger(logger), cache.WithConcurrency(loadConcurrency)}

	mirrorPath := f.mirror
	if mirrorPath == "" {
		mirrorPath = cfg.Mirror
	}
	if mirrorPath != "" {
		if mirrorPath, err = expandPath(mirrorPath); err != nil {
			return err
		}
		db, err := store.Open(ctx, mirrorPath)
		if err != nil {
			return fmt.Errorf("opening mirror: %w", err)
		}
		defer db.Close()
		opts = append(opts, cache.WithMirror(db))
	}

	index := cache.New(docs, current.codec, opts...)
	index.Start(ctx)
	defer index.Close()

	logger.Info("starting", "vault", profile.VaultPath, "profile", profile.Name, "version", version)

	options := func() query.Options {
		return query.Options{GlobalFilter: index.Codec().GlobalFilter, Registry: registries.Load(), Now: time.Now}
	}

	if f.list {
		index.Notify(cache.Event{Kind: cache.Resolved})
		if err := timed(logger, "load", func() error { return waitWarm(ctx, index, nil) }); err != nil {
			return err
		}

		results := evaluate(ctx, compileBlocks(blocks, options()), index.Tasks())
		printResults(stdout, results, current.display, profile.VaultPath, terminalLink)
		return nil
	}

	resolved := watch(ctx, docs, index, logger)

	title := profile.Name
	if title == "" {
		title = filepath.Base(profile.VaultPath)
	}

	err = RunWithLoader(ctx, title, func(ctx context.Context) error {
		return timed(logger, "load", func() error { return waitWarm(ctx, index, resolved) })
	})
	if err != nil {
		return err
	}

	updates, unsubscribe := index.Subscribe()
	defer unsubscribe()

	m := newModel(modelConfig{
		Profile:  profile,
		Blocks:   blocks,
		Options:  options,
		Snapshot: index.Tasks(),
		Updates:  updates,
		Toggler:  current.toggler(),
		Writer:   docs,
		Display:  current.display,
		Reconfigure: func() (settings, error) {
			return reconfigure(ctx, index, registries)
		},
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	return nil
}

func (s settings) toggler() task.Toggler {
	return task.Toggler{
		Codec:       s.codec,
		Recurrence:  recurrence.New(),
		SetDoneDate: s.setDoneDate,
	}
}

// reconfigure reads the config file again, publishes its statuses and
// re-indexes the vault with the new codec.
func reconfigure(ctx context.Context, index *cache.Cache, registries *status.Shared) (settings, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return settings{}, fmt.Errorf("loading config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return settings{}, err
	}

	next, err := cfg.taskSettings()
	if err != nil {
		return settings{}, err
	}

	registries.Replace(next.registry)
	index.SetCodec(next.codec)

	if err := index.Load(ctx); err != nil {
		return settings{}, err
	}
	return next, nil
}

// toggleLine toggles the line at target ("path:line", line one based) the
// way the editor command does and prints what was written.
func toggleLine(ctx context.Context, docs *vault.Vault, tg task.Toggler, target, indicator string, w io.Writer) error {
	i := strings.LastIndex(target, ":")
	if i < 0 {
		return fmt.Errorf("toggle %q: want path:line", target)
	}

	n, err := strconv.Atoi(target[i+1:])
	if err != nil || n < 1 {
		return fmt.Errorf("toggle %q: invalid line number", target)
	}

	path := target[:i]
	if filepath.IsAbs(path) {
		if path, err = docs.Rel(path); err != nil {
			return err
		}
	}

	var written string
	err = docs.EditLine(ctx, path, n-1, func(line string) (string, error) {
		out, err := tg.ToggleLine(line, path, indicator)
		written = out
		return out, err
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(w, written)
	return nil
}

// watch forwards document changes to the index. The returned channel is
// closed once the watcher is ready and the bulk load has been queued.
func watch(ctx context.Context, docs *vault.Vault, index *cache.Cache, logger *slog.Logger) <-chan struct{} {
	events := make(chan cache.Event, 64)
	resolved := make(chan struct{})
	var once sync.Once

	go func() {
		for ev := range events {
			index.Notify(ev)
			if ev.Kind == cache.Resolved {
				once.Do(func() { close(resolved) })
			}
		}
	}()

	go func() {
		defer close(events)
		if err := docs.Watch(ctx, events); err != nil {
			logger.Warn("watching disabled", "err", err)
			events <- cache.Event{Kind: cache.Resolved}
		}
	}()

	return resolved
}

// waitWarm blocks until the queued bulk load has run. A nil resolved means
// the load was already queued.
func waitWarm(ctx context.Context, index *cache.Cache, resolved <-chan struct{}) error {
	if resolved != nil {
		select {
		case <-resolved:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := index.Flush(ctx); err != nil {
		return err
	}

	if index.State() != cache.Warm {
		return errNotIndexed
	}

	return nil
}
