// Package mood labels an assistant reply with one of a small set of moods
// for the client to render.
//
// The label is presentation only. It is never persisted and never fed back
// to the model. Classification is best effort:
//
//  1. a trailing fenced block of mood scores written by the model
//  2. an explicit mood request in the player's message
//  3. hard-coded special cases, then phrase patterns per mood
//  4. [Default]
package mood

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// Mood is a presentation label.
type Mood string

// Known moods, in tie-break order.
const (
	Confused Mood = "confused"
	Happy    Mood = "happy"
	Thinking Mood = "thinking"
	Scared   Mood = "scared"
	Default  Mood = "default"
)

// All lists every mood in tie-break order.
var All = []Mood{Confused, Happy, Thinking, Scared, Default}

// Valid reports whether m is a known mood.
func (m Mood) Valid() bool {
	for _, k := range All {
		if m == k {
			return true
		}
	}
	return false
}

// Source says which rule produced a [Result].
type Source string

const (
	SourceBlock    Source = "block"
	SourceRequest  Source = "request"
	SourceSpecial  Source = "special"
	SourcePattern  Source = "pattern"
	SourceFallback Source = "fallback"
)

// Result is the outcome of [Extract].
type Result struct {
	// Text is the reply to show. It differs from the input only when a mood
	// block was stripped.
	Text   string
	Mood   Mood
	Source Source
}

// blockRE matches a fenced JSON object that ends the text. The body may not
// contain a backtick, so the match can never span two fences.
var blockRE = regexp.MustCompile("(?s)\\s*```(?:mood|json)?[ \\t]*\\r?\\n?\\s*(\\{[^`]*\\})\\s*```\\s*\\z")

// Extract classifies reply, the final assistant text, using userText (the
// inbound message) for explicit mood requests.
func Extract(reply, userText string) Result {
	if text, m, ok := fromBlock(reply); ok {
		return Result{Text: text, Mood: m, Source: SourceBlock}
	}
	if m, ok := Requested(userText); ok {
		return Result{Text: reply, Mood: m, Source: SourceRequest}
	}
	m, src := Analyze(reply)
	return Result{Text: reply, Mood: m, Source: src}
}

// fromBlock parses a trailing mood block. It returns the text with the
// block removed and the highest-scoring mood; ties go to the mood listed
// first in [All].
func fromBlock(text string) (string, Mood, bool) {
	loc := blockRE.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", "", false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text[loc[2]:loc[3]]), &raw); err != nil {
		slog.Debug("mood: ignoring unparsable mood block", "err", err)
		return "", "", false
	}

	scores := make(map[Mood]float64, len(raw))
	for k, v := range raw {
		m := Mood(strings.ToLower(strings.TrimSpace(k)))
		f, ok := v.(float64)
		if !m.Valid() || !ok {
			continue
		}
		scores[m] = min(max(f, 0), 1)
	}
	if len(scores) == 0 {
		return "", "", false
	}

	best, bestScore := Mood(""), -1.0
	for _, m := range All {
		if s, ok := scores[m]; ok && s > bestScore {
			best, bestScore = m, s
		}
	}
	return strings.TrimRight(text[:loc[0]], " \t\r\n"), best, true
}
