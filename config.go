package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/elcuervo/otx/internal/status"
	"github.com/elcuervo/otx/internal/task"
)

type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`
	Theme          string             `toml:"theme"`

	GlobalFilter       string         `toml:"global_filter"`
	AppendGlobalFilter bool           `toml:"append_global_filter"`
	RemoveGlobalFilter bool           `toml:"remove_global_filter"`
	SetDoneDate        *bool          `toml:"set_done_date"`
	Statuses           []StatusConfig `toml:"statuses"`

	Mirror   string `toml:"mirror"`
	LogFile  string `toml:"log_file"`
	LogLevel string `toml:"log_level"`
}

type Profile struct {
	Vault string `toml:"vault"`
	Query string `toml:"query"`
}

// StatusConfig is one [[statuses]] table. When any are given they replace
// the built-in statuses.
type StatusConfig struct {
	Symbol    string `toml:"symbol"`
	Name      string `toml:"name"`
	Next      string `toml:"next"`
	Completed bool   `toml:"completed"`
}

type ResolvedProfile struct {
	Name        string
	VaultPath   string
	Query       string
	QueryIsFile bool
}

type ProfileError struct {
	Profile string
	Field   string
	Err     error
}

func (e *ProfileError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}

	if e.Field == "" {
		return fmt.Sprintf("profile %q: %v", e.Profile, e.Err)
	}

	return fmt.Sprintf("profile %q: %s: %v", e.Profile, e.Field, e.Err)
}

func (e *ProfileError) Unwrap() error {
	return e.Err
}

var (
	ErrEmptyPath    = errors.New("path is empty")
	ErrPathNotExist = errors.New("path does not exist")
	ErrNotDirectory = errors.New("path is not a directory")
)

func validateProfile(name string, p Profile) error {
	if strings.TrimSpace(p.Vault) == "" {
		return &ProfileError{Profile: name, Field: "vault", Err: ErrEmptyPath}
	}

	// Query is optional - without one every task is listed
	return nil
}

func validateVaultExists(name, vaultPath string) error {
	info, err := os.Stat(vaultPath)

	if err != nil {
		if os.IsNotExist(err) {
			return &ProfileError{Profile: name, Field: "vault", Err: fmt.Errorf("%w: %s", ErrPathNotExist, vaultPath)}
		}

		return &ProfileError{Profile: name, Field: "vault", Err: err}
	}

	if !info.IsDir() {
		return &ProfileError{Profile: name, Field: "vault", Err: fmt.Errorf("%w: %s", ErrNotDirectory, vaultPath)}
	}

	return nil
}

func validateConfig(cfg Config) error {
	if cfg.DefaultProfile != "" && cfg.Profiles != nil {
		if _, ok := cfg.Profiles[cfg.DefaultProfile]; !ok {
			return &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", cfg.DefaultProfile)}
		}
	}

	if _, err := cfg.registry(); err != nil {
		return &ProfileError{Field: "statuses", Err: err}
	}

	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return &ProfileError{Field: "log_level", Err: err}
	}

	return nil
}

func selectProfile(profileFlag string, cfg Config) (string, *Profile, error) {
	if profileFlag != "" {
		if cfg.Profiles == nil {
			return "", nil, &ProfileError{Profile: profileFlag, Err: errors.New("no profiles defined in config")}
		}

		p, ok := cfg.Profiles[profileFlag]

		if !ok {
			return "", nil, &ProfileError{Profile: profileFlag, Err: errors.New("profile not found")}
		}

		return profileFlag, &p, nil
	}

	if cfg.DefaultProfile != "" {
		p, ok := cfg.Profiles[cfg.DefaultProfile]

		if !ok {
			return "", nil, &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", cfg.DefaultProfile)}
		}

		return cfg.DefaultProfile, &p, nil
	}

	return "", nil, nil
}

func resolveProfilePaths(name string, p Profile) (*ResolvedProfile, error) {
	if err := validateProfile(name, p); err != nil {
		return nil, err
	}

	vaultPath, err := resolveVaultPath(p.Vault)

	if err != nil {
		return nil, &ProfileError{Profile: name, Field: "vault", Err: err}
	}

	vaultPath = filepath.Clean(vaultPath)
	if resolved, err := filepath.EvalSymlinks(vaultPath); err == nil {
		vaultPath = resolved
	}

	if err := validateVaultExists(name, vaultPath); err != nil {
		return nil, err
	}

	query := strings.TrimSpace(p.Query)
	queryIsFile := false

	if query != "" {
		// an existing file holds query blocks, anything else is an inline query
		if queryPath, err := resolveQueryPath(query, vaultPath); err == nil {
			queryPath = filepath.Clean(queryPath)
			if info, statErr := os.Stat(queryPath); statErr == nil && !info.IsDir() {
				query = queryPath
				queryIsFile = true
			}
		}
	}

	return &ResolvedProfile{Name: name, VaultPath: vaultPath, Query: query, QueryIsFile: queryIsFile}, nil
}

// registry builds the status registry from [[statuses]]. An empty list keeps
// the built-in statuses.
func (cfg Config) registry() (*status.Registry, error) {
	if len(cfg.Statuses) == 0 {
		return status.NewDefault(), nil
	}

	r := status.New()
	for i, s := range cfg.Statuses {
		err := r.Add(status.Status{
			Indicator:     s.Symbol,
			Name:          s.Name,
			NextIndicator: s.Next,
			Completed:     s.Completed,
		})
		if err != nil {
			return nil, fmt.Errorf("statuses[%d] %q: %w", i, s.Symbol, err)
		}
	}

	return r, nil
}

// codec is the settings snapshot every decode and encode uses.
func (cfg Config) codec(registry *status.Registry) task.Codec {
	placement := task.Prepend
	if cfg.AppendGlobalFilter {
		placement = task.Append
	}

	return task.Codec{
		GlobalFilter: strings.TrimSpace(cfg.GlobalFilter),
		Placement:    placement,
		Registry:     registry,
	}
}

func (cfg Config) setDoneDate() bool {
	return cfg.SetDoneDate == nil || *cfg.SetDoneDate
}

// settings is what tasks are decoded, shown and toggled with. It is rebuilt
// when the config file is reloaded.
type settings struct {
	registry    *status.Registry
	codec       task.Codec
	display     display
	setDoneDate bool
}

func (cfg Config) taskSettings() (settings, error) {
	registry, err := cfg.registry()
	if err != nil {
		return settings{}, err
	}

	codec := cfg.codec(registry)
	return settings{
		registry:    registry,
		codec:       codec,
		display:     display{codec: codec, removeGlobalFilter: cfg.RemoveGlobalFilter},
		setDoneDate: cfg.setDoneDate(),
	}, nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(value) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

func configPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "otx", "config.toml"), nil
}

func loadConfig() (Config, string, error) {
	path, err := configPath()

	if err != nil {
		return Config{}, "", err
	}

	cfg, err := readConfig(path)
	return cfg, path, err
}

// readConfig decodes the file at path. A missing file is an empty config.
func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}

		return Config{}, err
	}

	var cfg Config

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func expandPath(value string) (string, error) {
	value = strings.TrimSpace(value)

	if value == "" {
		return value, nil
	}

	expanded := os.ExpandEnv(value)

	if !strings.HasPrefix(expanded, "~") {
		return expanded, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if expanded == "~" {
		return homeDir, nil
	}

	if strings.HasPrefix(expanded, "~/") || strings.HasPrefix(expanded, "~\\") {
		return filepath.Join(homeDir, expanded[2:]), nil
	}

	return expanded, nil
}

func resolveVaultPath(value string) (string, error) {
	expanded, err := expandPath(value)

	if err != nil {
		return "", err
	}

	if expanded == "" || filepath.IsAbs(expanded) {
		return expanded, nil
	}

	homeDir, err := os.UserHomeDir()

	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, expanded), nil
}

func resolveQueryPath(value, vault string) (string, error) {
	expanded, err := expandPath(value)

	if err != nil {
		return "", err
	}

	if expanded == "" || filepath.IsAbs(expanded) || vault == "" {
		return expanded, nil
	}

	return filepath.Join(vault, expanded), nil
}
