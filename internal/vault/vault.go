// Package vault is the filesystem side of the index: it lists and reads the
// markdown documents under a root directory, extracts their structure,
// watches them for changes and writes edited tasks back.
package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/elcuervo/otx/internal/cache"
)

type Option func(*Vault)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// Vault is a directory of markdown documents. Paths handed out and accepted
// by Vault are relative to the root and use forward slashes.
type Vault struct {
	root   string
	logger *slog.Logger
}

func New(root string, opts ...Option) *Vault {
	v := &Vault{root: filepath.Clean(root), logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vault) Root() string { return v.root }

// Abs turns a vault path into a filesystem path.
func (v *Vault) Abs(path string) string {
	return filepath.Join(v.root, filepath.FromSlash(path))
}

// Rel turns a filesystem path into a vault path.
func (v *Vault) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func isMarkdown(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".md")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// List returns every markdown document, skipping hidden directories.
func (v *Vault) List(ctx context.Context) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != v.root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !isMarkdown(d.Name()) {
			return nil
		}

		rel, err := v.Rel(path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})

	return paths, err
}

// Read returns the content of a document with line endings normalized to
// "\n".
func (v *Vault) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := os.ReadFile(v.Abs(path))
	if err != nil {
		return "", err
	}

	return normalize(string(raw)), nil
}

// Metadata parses the structure of content read from path.
func (v *Vault) Metadata(ctx context.Context, path, content string) (*cache.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseMetadata([]byte(content)), nil
}

func normalize(content string) string {
	return strings.ReplaceAll(content, "\r\n", "\n")
}
