package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/elcuervo/otx/internal/query"
)

const (
	tasksBlock = "tasks"
	sqlBlock   = "task-sql"
)

var (
	blockRe  = regexp.MustCompile("(?s)```(tasks|task-sql)[ \\t]*\\n(.*?)```")
	headerRe = regexp.MustCompile(`(?m)^##\s+(.+)$`)
)

// queryBlock is the source of one query as found in a query file, kept so
// the engine can be rebuilt against a new settings snapshot or day.
type queryBlock struct {
	Name   string
	Kind   string
	Source string
}

func (b queryBlock) compile(opts query.Options) query.Engine {
	if b.Kind == sqlBlock {
		return query.ParseSQL(b.Source)
	}
	return query.Parse(b.Source, opts)
}

// QuerySection is one rendered block: its heading and the compiled engine.
type QuerySection struct {
	Name   string
	Engine query.Engine
}

func compileBlocks(blocks []queryBlock, opts query.Options) []QuerySection {
	sections := make([]QuerySection, 0, len(blocks))
	for _, b := range blocks {
		sections = append(sections, QuerySection{Name: b.Name, Engine: b.compile(opts)})
	}
	return sections
}

// parseQueryBlocks finds every tasks and task-sql block in content. Each
// block is named after the last "##" heading above it.
func parseQueryBlocks(content string) []queryBlock {
	matches := blockRe.FindAllStringSubmatchIndex(content, -1)
	headers := headerRe.FindAllStringSubmatchIndex(content, -1)

	var blocks []queryBlock

	for _, match := range matches {
		blockStart := match[0]
		name := ""

		for _, header := range headers {
			if header[1] >= blockStart {
				break
			}
			name = strings.TrimSpace(content[header[2]:header[3]])
		}

		blocks = append(blocks, queryBlock{
			Name:   name,
			Kind:   content[match[2]:match[3]],
			Source: content[match[4]:match[5]],
		})
	}

	return blocks
}

// loadQueryBlocks reads the blocks of a query file, or wraps an inline query
// in a single unnamed block.
func loadQueryBlocks(profile *ResolvedProfile) ([]queryBlock, error) {
	if !profile.QueryIsFile {
		return []queryBlock{{Kind: tasksBlock, Source: inlineQuery(profile.Query)}}, nil
	}

	content, err := os.ReadFile(profile.Query)
	if err != nil {
		return nil, err
	}

	blocks := parseQueryBlocks(strings.ReplaceAll(string(content), "\r\n", "\n"))
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no ```tasks block found in %s", profile.Query)
	}

	return blocks, nil
}

// inlineQuery lets a one-line query hold several instructions separated by
// semicolons.
func inlineQuery(value string) string {
	parts := strings.Split(value, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, "\n")
}
