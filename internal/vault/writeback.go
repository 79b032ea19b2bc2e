package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/elcuervo/otx/internal/cache"
	"github.com/elcuervo/otx/internal/task"
)

var (
	ErrTaskNotFound   = errors.New("task not found in document")
	ErrLineOutOfRange = errors.New("line out of range")
)

// ReplaceTask swaps the line of original for the lines of replacements, in
// order, and rewrites the document atomically. The line is found again by
// its section anchor; when the document moved under it, the first line equal
// to the original markdown is used instead.
func (v *Vault) ReplaceTask(ctx context.Context, codec task.Codec, original task.Task, replacements []task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	abs := v.Abs(original.Path)

	lines, crlf, err := readLines(abs)
	if err != nil {
		return err
	}

	idx := anchoredLine(codec, original, lines, []byte(strings.Join(lines, "\n")))
	if idx < 0 {
		idx = slices.Index(lines, original.OriginalMarkdown)
	}
	if idx < 0 {
		return fmt.Errorf("%s: %w", original.Path, ErrTaskNotFound)
	}

	out := make([]string, 0, len(replacements))
	for _, r := range replacements {
		out = append(out, codec.FileLine(r))
	}
	lines = slices.Replace(lines, idx, idx+1, out...)

	v.logger.Debug("writing task", "path", original.Path, "line", idx+1, "lines", len(out))

	return writeLines(abs, lines, crlf)
}

// EditLine replaces line n (zero based) of a document with what edit returns
// for it, which may span several lines, and rewrites the document
// atomically.
func (v *Vault) EditLine(ctx context.Context, path string, n int, edit func(line string) (string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	abs := v.Abs(path)

	lines, crlf, err := readLines(abs)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(lines) {
		return fmt.Errorf("%s: line %d: %w", path, n+1, ErrLineOutOfRange)
	}

	out, err := edit(lines[n])
	if err != nil {
		return err
	}
	lines = slices.Replace(lines, n, n+1, strings.Split(out, "\n")...)

	v.logger.Debug("editing line", "path", path, "line", n+1)

	return writeLines(abs, lines, crlf)
}

func readLines(abs string) ([]string, bool, error) {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, err
	}

	content := string(raw)
	crlf := strings.Contains(content, "\r\n")
	return strings.Split(normalize(content), "\n"), crlf, nil
}

func writeLines(abs string, lines []string, crlf bool) error {
	result := strings.Join(lines, "\n")
	if crlf {
		result = strings.ReplaceAll(result, "\n", "\r\n")
	}
	return atomic.WriteFile(abs, strings.NewReader(result))
}

// anchoredLine finds the SectionIndex-th task of the list section starting
// at SectionStart and returns its line when it still reads as the original.
func anchoredLine(codec task.Codec, original task.Task, lines []string, source []byte) int {
	md := ParseMetadata(source)

	for _, s := range md.Sections {
		if s.Type != cache.SectionList || s.Start != original.SectionStart {
			continue
		}

		index := 0
		for _, item := range md.ListItems {
			if !item.Task || item.Line < s.Start || item.Line > s.End || item.Line >= len(lines) {
				continue
			}

			_, ok, err := codec.Decode(lines[item.Line], original.Location())
			if err != nil || !ok {
				continue
			}

			if index == original.SectionIndex {
				if original.OriginalMarkdown != "" && lines[item.Line] != original.OriginalMarkdown {
					return -1
				}
				return item.Line
			}
			index++
		}
	}

	return -1
}
