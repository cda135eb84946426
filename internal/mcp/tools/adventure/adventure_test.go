package adventure

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeNotes(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"abomination-vaults/chapter1.md": "# Gauntlight\nA ruined lighthouse on the edge of Otari.\n\n## Otari Market\nWrin Sivinxi runs the curiosity shop.\n",
		"abomination-vaults/npcs.md":     "# Wrin Sivinxi\nA winged tiefling who collects meteorites. Wrin knows the Gauntlight legends.\n",
		"beginner-box/goblins.txt":       "The goblin warrens sit beneath the hill. The goblin boss guards the shrine.\n",
		"beginner-box/map.png":           "goblin goblin goblin",
		"loose.md":                       "Session zero notes about the lighthouse.\n",
	}
	for rel, body := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestSafePath(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	tests := []struct {
		rel     string
		wantErr bool
	}{
		{"notes.md", false},
		{"a/b/c.md", false},
		{"a/../b.md", false},
		{"", true},
		{"../secret", true},
		{"a/../../secret", true},
		{"/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			t.Parallel()
			got, err := safePath(root, tt.rel)
			if (err != nil) != tt.wantErr {
				t.Fatalf("safePath(%q) err = %v, wantErr %v", tt.rel, err, tt.wantErr)
			}
			if err == nil && !strings.HasPrefix(got, filepath.Clean(root)) {
				t.Errorf("safePath(%q) = %q escapes root", tt.rel, got)
			}
		})
	}
}

func TestSearch_RanksHeadingsFirst(t *testing.T) {
	t.Parallel()
	lib := Library{Root: writeNotes(t)}

	res, err := lib.Search(context.Background(), "Wrin Sivinxi", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || len(res.Matches) < 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Matches[0].File != "abomination-vaults/npcs.md" || res.Matches[0].Heading != "Wrin Sivinxi" {
		t.Errorf("top match = %+v", res.Matches[0])
	}
}

func TestSearch_ScopedToAdventure(t *testing.T) {
	t.Parallel()
	lib := Library{Root: writeNotes(t)}

	res, err := lib.Search(context.Background(), "lighthouse", "abomination-vaults")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range res.Matches {
		if !strings.HasPrefix(m.File, "abomination-vaults/") {
			t.Errorf("match outside adventure: %s", m.File)
		}
	}
	if !res.Found {
		t.Error("expected a match for lighthouse")
	}
}

func TestSearch_SkipsNonNotes(t *testing.T) {
	t.Parallel()
	lib := Library{Root: writeNotes(t)}

	res, err := lib.Search(context.Background(), "goblin", "beginner-box")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 1 || res.Matches[0].File != "beginner-box/goblins.txt" {
		t.Errorf("matches = %+v", res.Matches)
	}
}

func TestSearch_NoMatchListsAdventures(t *testing.T) {
	t.Parallel()
	lib := Library{Root: writeNotes(t)}

	res, err := lib.Search(context.Background(), "dragon", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Found || len(res.Matches) != 0 {
		t.Errorf("unexpected matches %+v", res.Matches)
	}
	if strings.Join(res.Adventures, ",") != "abomination-vaults,beginner-box" {
		t.Errorf("adventures = %v", res.Adventures)
	}
}

func TestSearch_UnknownAdventure(t *testing.T) {
	t.Parallel()
	lib := Library{Root: writeNotes(t)}

	res, err := lib.Search(context.Background(), "goblin", "kingmaker")
	if err != nil {
		t.Fatal(err)
	}
	if res.Found || !strings.Contains(res.Message, "kingmaker") || len(res.Adventures) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestSearch_Errors(t *testing.T) {
	t.Parallel()
	lib := Library{Root: writeNotes(t)}

	if _, err := lib.Search(context.Background(), "goblin", "../.."); err == nil {
		t.Error("expected traversal error")
	}
	if _, err := lib.Search(context.Background(), "a b", ""); err == nil {
		t.Error("expected error for a query with no words")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lib.Search(ctx, "goblin", ""); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestSearch_NoRoot(t *testing.T) {
	t.Parallel()
	res, err := Library{}.Search(context.Background(), "goblin", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Found || res.Message == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestRead(t *testing.T) {
	t.Parallel()
	lib := Library{Root: writeNotes(t)}
	ctx := context.Background()

	got, err := lib.Read(ctx, "beginner-box/goblins.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "goblin boss") {
		t.Errorf("content = %q", got)
	}

	for _, rel := range []string{"../x", "missing.md", "beginner-box"} {
		if _, err := lib.Read(ctx, rel); err == nil {
			t.Errorf("Read(%q): expected error", rel)
		}
	}
}

func TestSections(t *testing.T) {
	t.Parallel()
	got := sections([]byte("intro line\n# One\nbody one\n## Two\n\n"))
	if len(got) != 3 {
		t.Fatalf("sections = %+v", got)
	}
	if got[0].heading != "" || got[0].body != "intro line" {
		t.Errorf("preamble = %+v", got[0])
	}
	if got[1].heading != "One" || got[1].body != "body one" {
		t.Errorf("one = %+v", got[1])
	}
	if got[2].heading != "Two" || got[2].body != "" {
		t.Errorf("two = %+v", got[2])
	}
}

func TestExcerptTruncates(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", maxExcerptRune+10)
	if got := []rune(excerpt(long)); len(got) != maxExcerptRune+1 {
		t.Errorf("excerpt rune len = %d", len(got))
	}
	if excerpt("short") != "short" {
		t.Error("short text changed")
	}
}

func TestToolHandlers(t *testing.T) {
	t.Parallel()
	ts := Tools(writeNotes(t))
	if ts[0].Definition.Name != "adventure_reference" || ts[1].Definition.Name != "adventure_read" {
		t.Fatalf("names = %s, %s", ts[0].Definition.Name, ts[1].Definition.Name)
	}

	out, err := ts[0].Handler(context.Background(), `{"query":"goblin boss","adventure_context":"beginner-box"}`)
	if err != nil {
		t.Fatal(err)
	}
	var ref ReferenceResult
	if err := json.Unmarshal([]byte(out), &ref); err != nil {
		t.Fatal(err)
	}
	if !ref.Found || ref.Adventure != "beginner-box" {
		t.Errorf("reference = %+v", ref)
	}

	out, err = ts[1].Handler(context.Background(), `{"path":"loose.md"}`)
	if err != nil {
		t.Fatal(err)
	}
	var rr readResult
	if err := json.Unmarshal([]byte(out), &rr); err != nil {
		t.Fatal(err)
	}
	if rr.Path != "loose.md" || !strings.Contains(rr.Content, "Session zero") {
		t.Errorf("read = %+v", rr)
	}

	if _, err := ts[0].Handler(context.Background(), `{`); err == nil {
		t.Error("expected parse error")
	}
}
