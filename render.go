package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/savioxavier/termlink"

	"github.com/elcuervo/otx/internal/query"
	"github.com/elcuervo/otx/internal/task"
)

const defaultTheme = "dracula"

var glamourRenderer *glamour.TermRenderer

func init() {
	initRenderer(defaultTheme)
}

func initRenderer(theme string) {
	if theme == "" {
		theme = defaultTheme
	}
	glamourRenderer, _ = glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme),
		glamour.WithWordWrap(0),
	)
}

// display encodes tasks for reading rather than writing back.
type display struct {
	codec              task.Codec
	removeGlobalFilter bool
}

func (d display) body(t task.Task, layout task.LayoutOptions) string {
	codec := d.codec
	if d.removeGlobalFilter {
		codec.GlobalFilter = ""
	}
	return strings.TrimSpace(codec.Encode(t, layout))
}

// checkbox keeps unknown indicators visible while glamour only knows
// "[ ]" and "[x]".
func checkbox(t task.Task) (string, string) {
	switch {
	case t.IsDone():
		return "- [x]", ""
	case t.Status.Indicator == " ":
		return "- [ ]", ""
	default:
		return "- [ ]", "[" + t.Status.Indicator + "] "
	}
}

// renderTask renders a full task line with checkbox using Glamour
func renderTask(t task.Task, body string) string {
	box, marker := checkbox(t)
	taskLine := fmt.Sprintf("%s %s%s", box, marker, body)

	if glamourRenderer == nil {
		return taskLine
	}

	rendered, err := glamourRenderer.Render(taskLine)
	if err != nil {
		return taskLine
	}

	// Keep as single line
	return strings.TrimSpace(rendered)
}

// sectionResult is one evaluated query section.
type sectionResult struct {
	Section QuerySection
	Groups  query.Groups
	Err     error
}

func evaluate(ctx context.Context, sections []QuerySection, tasks []task.Task) []sectionResult {
	results := make([]sectionResult, 0, len(sections))
	for _, s := range sections {
		groups, err := s.Engine.Apply(ctx, tasks)
		if err != nil && s.Engine.Err() != "" {
			err = fmt.Errorf("%s: %s", s.Engine.Name(), s.Engine.Err())
		}
		results = append(results, sectionResult{Section: s, Groups: groups, Err: err})
	}
	return results
}

type linker func(text, target string) string

// terminalLink points at the document as a file URL when the terminal
// supports hyperlinks.
func terminalLink(text, target string) string {
	if !termlink.SupportsHyperlinks() {
		return text
	}
	return termlink.Link(text, (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String())
}

// printResults writes the non-interactive listing.
func printResults(w io.Writer, results []sectionResult, d display, vaultPath string, link linker) {
	total := 0
	for _, r := range results {
		total += r.Groups.TotalCount()
	}
	fmt.Fprintf(w, "Found %d task(s):\n\n", total)

	for _, r := range results {
		layout := r.Section.Engine.Layout()

		if r.Section.Name != "" {
			if layout.HideTaskCount {
				fmt.Fprintf(w, "## %s\n", r.Section.Name)
			} else {
				fmt.Fprintf(w, "## %s (%d)\n", r.Section.Name, r.Groups.TotalCount())
			}
		}

		if r.Err != nil {
			fmt.Fprintf(w, "error: %v\n\n", r.Err)
			continue
		}

		if r.Groups.TotalCount() == 0 {
			fmt.Fprintln(w, "(no matching tasks)")
			fmt.Fprintln(w)
			continue
		}

		for _, group := range r.Groups.Groups {
			for _, h := range group.Headings {
				fmt.Fprintf(w, "%s %s\n", strings.Repeat("#", h.Level+3), h.Name)
			}

			for _, t := range group.Tasks {
				box, marker := checkbox(t)
				line := box + " " + marker + d.body(t, layout)
				if !layout.HideBacklinks && t.Path != "" {
					line += " (" + link(t.LinkText(), filepath.Join(vaultPath, filepath.FromSlash(t.Path))) + ")"
				}
				fmt.Fprintln(w, line)
			}
		}

		if !layout.HideTaskCount && r.Section.Name == "" {
			fmt.Fprintf(w, "%d tasks\n", r.Groups.TotalCount())
		}
		fmt.Fprintln(w)
	}
}
