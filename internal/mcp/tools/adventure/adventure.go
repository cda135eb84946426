// Package adventure provides read-only tools over a directory of adventure
// notes (Markdown or plain text). Every path is resolved inside the
// configured root and traversal outside it is rejected.
//
//   - "adventure_reference" searches the notes, optionally within one
//     adventure subdirectory, and returns the best matching sections.
//   - "adventure_read" returns a whole note by relative path.
package adventure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

const (
	maxReadBytes   = 1 << 20
	maxMatches     = 5
	maxExcerptRune = 600
)

var noteExts = []string{".md", ".markdown", ".txt"}

// safePath resolves rel against root and rejects anything that escapes it.
func safePath(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("adventure: path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("adventure: path %q must be relative", rel)
	}
	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, rel)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("adventure: path %q escapes the notes directory", rel)
	}
	return joined, nil
}

// Section is one heading-delimited part of a note.
type Section struct {
	File    string `json:"file"`
	Heading string `json:"heading,omitempty"`
	Excerpt string `json:"excerpt"`
	Score   int    `json:"score"`
}

// ReferenceResult is the output of adventure_reference.
type ReferenceResult struct {
	Query      string    `json:"query"`
	Adventure  string    `json:"adventure,omitempty"`
	Found      bool      `json:"found"`
	Matches    []Section `json:"matches"`
	Adventures []string  `json:"available_adventures,omitempty"`
	Message    string    `json:"message,omitempty"`
}

type referenceArgs struct {
	Query            string `json:"query"`
	AdventureContext string `json:"adventure_context,omitempty"`
}

type readArgs struct {
	Path string `json:"path"`
}

type readResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Library searches notes under Root.
type Library struct {
	Root string
}

// Search returns the sections under l.Root (or its adventure subdirectory)
// that share the most words with query.
func (l Library) Search(ctx context.Context, query, adventure string) (ReferenceResult, error) {
	res := ReferenceResult{Query: query, Adventure: adventure, Matches: []Section{}}
	if l.Root == "" {
		res.Message = "No adventure notes are configured."
		return res, nil
	}

	dir := filepath.Clean(l.Root)
	if adventure != "" {
		var err error
		if dir, err = safePath(l.Root, adventure); err != nil {
			return res, err
		}
	}
	words := keywords(query)
	if len(words) == 0 {
		return res, errors.New("adventure: query has no searchable words")
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !slices.Contains(noteExts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxReadBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(filepath.Clean(l.Root), path)
		for _, s := range sections(data) {
			if score := scoreText(words, s.heading, s.body); score > 0 {
				res.Matches = append(res.Matches, Section{
					File:    filepath.ToSlash(rel),
					Heading: s.heading,
					Excerpt: excerpt(s.body),
					Score:   score,
				})
			}
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) && adventure != "" {
		res.Message = fmt.Sprintf("No adventure named %q.", adventure)
		res.Adventures = l.adventures()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("adventure: search: %w", err)
	}

	slices.SortStableFunc(res.Matches, func(a, b Section) int { return b.Score - a.Score })
	if len(res.Matches) > maxMatches {
		res.Matches = res.Matches[:maxMatches]
	}
	res.Found = len(res.Matches) > 0
	if !res.Found {
		res.Adventures = l.adventures()
	}
	return res, nil
}

// adventures lists the top-level subdirectories of the root.
func (l Library) adventures() []string {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out
}

// Read returns the note at rel.
func (l Library) Read(ctx context.Context, rel string) (string, error) {
	if l.Root == "" {
		return "", errors.New("adventure: no notes directory configured")
	}
	abs, err := safePath(l.Root, rel)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("adventure: read: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("adventure: read: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("adventure: read: %q is a directory", rel)
	}
	if info.Size() > maxReadBytes {
		return "", fmt.Errorf("adventure: read: %q is larger than %d bytes", rel, maxReadBytes)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("adventure: read: %w", err)
	}
	return string(data), nil
}

// ── text helpers ──

type section struct {
	heading string
	body    string
}

// sections splits a note at Markdown headings. Text before the first
// heading forms a section with an empty heading.
func sections(data []byte) []section {
	var (
		out  []section
		cur  section
		body strings.Builder
	)
	flush := func() {
		cur.body = strings.TrimSpace(body.String())
		if cur.heading != "" || cur.body != "" {
			out = append(out, cur)
		}
		body.Reset()
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxReadBytes)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			flush()
			cur = section{heading: strings.TrimSpace(strings.TrimLeft(line, "#"))}
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return out
}

func keywords(q string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		if len(w) >= 3 && !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

// scoreText counts keyword occurrences; heading hits weigh three times.
func scoreText(words []string, heading, body string) int {
	h, b := strings.ToLower(heading), strings.ToLower(body)
	score := 0
	for _, w := range words {
		score += 3*strings.Count(h, w) + strings.Count(b, w)
	}
	return score
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= maxExcerptRune {
		return s
	}
	return string(r[:maxExcerptRune]) + "…"
}

// ── tools ──

// Tools returns adventure_reference and adventure_read over root. An empty
// root yields tools that report no notes instead of failing.
func Tools(root string) []tools.Tool {
	lib := Library{Root: root}
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "adventure_reference",
				Description: "Search the game master's adventure notes for NPCs, locations, encounters and plot details. Optionally restrict the search to one adventure.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "What to look for, e.g. \"goblin warrens boss\".",
						},
						"adventure_context": map[string]any{
							"type":        "string",
							"description": "Adventure folder name to search within.",
						},
					},
					"required": []string{"query"},
				},
				MaxDurationMs: 2000,
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a referenceArgs
				if err := json.Unmarshal([]byte(args), &a); err != nil {
					return "", fmt.Errorf("adventure: adventure_reference: parse arguments: %w", err)
				}
				res, err := lib.Search(ctx, a.Query, a.AdventureContext)
				if err != nil {
					return "", err
				}
				out, err := json.Marshal(res)
				if err != nil {
					return "", fmt.Errorf("adventure: adventure_reference: encode result: %w", err)
				}
				return string(out), nil
			},
		},
		{
			Definition: types.ToolDefinition{
				Name:        "adventure_read",
				Description: "Read one adventure note in full. Use a file path returned by adventure_reference.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "Note path relative to the notes directory.",
						},
					},
					"required": []string{"path"},
				},
				MaxDurationMs: 1000,
			},
			Handler: func(ctx context.Context, args string) (string, error) {
				var a readArgs
				if err := json.Unmarshal([]byte(args), &a); err != nil {
					return "", fmt.Errorf("adventure: adventure_read: parse arguments: %w", err)
				}
				content, err := lib.Read(ctx, a.Path)
				if err != nil {
					return "", err
				}
				out, err := json.Marshal(readResult{Path: a.Path, Content: content})
				if err != nil {
					return "", fmt.Errorf("adventure: adventure_read: encode result: %w", err)
				}
				return string(out), nil
			},
		},
	}
}
