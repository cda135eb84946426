package mood

import "strings"

type request struct {
	phrase string
	mood   Mood
}

// requests are checked in order against the player's message.
var requests = []request{
	{"be confused", Confused},
	{"act confused", Confused},
	{"be happy", Happy},
	{"act happy", Happy},
	{"be excited", Happy},
	{"be thoughtful", Thinking},
	{"think about", Thinking},
	{"be scared", Scared},
	{"act scared", Scared},
	{"be frightened", Scared},
}

type category struct {
	mood    Mood
	phrases []string
}

// patterns is scanned in order; the first category with a matching phrase
// wins. All phrases are lower case and matched case-insensitively.
var patterns = []category{
	{Confused, []string{
		"i'm not sure",
		"i don't know",
		"could you clarify",
		"what do you mean",
		"i'm confused",
		"that's unclear",
		"i need more information",
		"can you explain",
		"i'm not familiar",
		"i'm unfamiliar",
		"please provide more details",
		"could you specify",
		"not enough information",
		"i'll need to know more",
	}},
	{Happy, []string{
		"great choice",
		"excellent",
		"perfect",
		"that's awesome",
		"fantastic",
		"congratulations",
		"well done",
		"sounds fun",
		"exciting",
		"i love",
		"awesome",
		"natural 20",
		"critical hit",
		"success",
		"great news",
	}},
	{Thinking, []string{
		"let me think",
		"considering",
		"analyzing",
		"there are several",
		"options include",
		"possibilities",
		"alternatively",
		"on one hand",
		"on the other hand",
		"let's consider",
		"can be a bit tricky",
		"complex",
		"different ways",
		"depends on",
		"understand how",
		"understanding",
		"spell attacks",
	}},
	{Scared, []string{
		"be careful",
		"dangerous",
		"caution",
		"warning",
		"threat",
		"risky",
		"deadly",
		"watch out",
		"hazardous",
		"lethal",
		"oh no",
		"about to die",
		"emergency",
		"critical situation",
		"help",
		"turn things around",
		"danger",
	}},
}

// Requested reports a mood the player explicitly asked for, such as
// "act confused" or "be happy".
func Requested(userText string) (Mood, bool) {
	lower := strings.ToLower(userText)
	for _, r := range requests {
		if strings.Contains(lower, r.phrase) {
			return r.mood, true
		}
	}
	return "", false
}

// Analyze classifies text by phrase matching alone.
func Analyze(text string) (Mood, Source) {
	if strings.TrimSpace(text) == "" {
		return Default, SourceFallback
	}
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "spell attacks"):
		return Thinking, SourceSpecial
	case strings.Contains(lower, "about to die"), strings.Contains(lower, "help!"):
		return Scared, SourceSpecial
	}

	for _, c := range patterns {
		for _, p := range c.phrases {
			if strings.Contains(lower, p) {
				return c.mood, SourcePattern
			}
		}
	}
	return Default, SourceFallback
}
