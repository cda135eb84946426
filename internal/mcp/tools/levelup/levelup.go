// Package levelup provides the "level_up_advisor" tool. It reports what a
// Pathfinder 2E character gains at the next level and turns the player's
// stated goals into concrete feat and skill suggestions.
package levelup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

const maxLevel = 20

// classHP is hit points per level before the Constitution modifier.
var classHP = map[string]int{
	"alchemist": 8, "animist": 8, "barbarian": 12, "bard": 8, "champion": 10,
	"cleric": 8, "commander": 8, "druid": 8, "exemplar": 10, "fighter": 10,
	"guardian": 12, "gunslinger": 8, "inventor": 8, "investigator": 8,
	"kineticist": 8, "magus": 8, "monk": 10, "oracle": 8, "psychic": 6,
	"ranger": 10, "rogue": 8, "sorcerer": 6, "summoner": 10, "swashbuckler": 10,
	"thaumaturge": 8, "witch": 6, "wizard": 6,
}

// fullCasters gain a new spell rank at every odd level.
var fullCasters = []string{"animist", "bard", "cleric", "druid", "oracle", "psychic", "sorcerer", "witch", "wizard"}

// skillfulClasses gain a skill feat and a skill increase every level.
var skillfulClasses = []string{"rogue", "investigator"}

// Character is the subset of a character sheet the advisor reads.
type Character struct {
	Name       string            `json:"name"`
	Class      string            `json:"class"`
	Ancestry   string            `json:"ancestry,omitempty"`
	Level      int               `json:"level"`
	Attributes map[string]int    `json:"attributes,omitempty"` // modifiers: str, dex, con, int, wis, cha
	Skills     map[string]string `json:"skills,omitempty"`     // skill -> untrained|trained|expert|master|legendary
}

// Gains lists what the next level grants.
type Gains struct {
	HitPoints       int    `json:"hit_points"`
	ClassFeat       bool   `json:"class_feat"`
	SkillFeat       bool   `json:"skill_feat"`
	GeneralFeat     bool   `json:"general_feat"`
	AncestryFeat    bool   `json:"ancestry_feat"`
	SkillIncrease   bool   `json:"skill_increase"`
	AttributeBoosts int    `json:"attribute_boosts"`
	NewSpellRank    int    `json:"new_spell_rank,omitempty"`
	MaxProficiency  string `json:"max_skill_proficiency"`
}

// Advice is the output of level_up_advisor.
type Advice struct {
	Character    string   `json:"character"`
	Class        string   `json:"class"`
	CurrentLevel int      `json:"current_level"`
	NextLevel    int      `json:"next_level"`
	Gains        Gains    `json:"gains"`
	Suggestions  []string `json:"suggestions"`
	Notes        []string `json:"notes,omitempty"`
}

// ErrMaxLevel is returned for a level 20 character.
var ErrMaxLevel = errors.New("levelup: character is already level 20")

// GainsAt returns the standard advancement for a class at level.
func GainsAt(class string, level, conMod int) Gains {
	class = strings.ToLower(class)
	skillful := slices.Contains(skillfulClasses, class)

	hp, ok := classHP[class]
	if !ok {
		hp = 8
	}
	g := Gains{
		HitPoints:      max(hp+conMod, 1),
		ClassFeat:      level == 1 || level%2 == 0,
		SkillFeat:      level%2 == 0 || skillful,
		GeneralFeat:    level >= 3 && level%4 == 3,
		AncestryFeat:   level%4 == 1,
		SkillIncrease:  (level >= 3 && level%2 == 1) || (skillful && level >= 2),
		MaxProficiency: maxProficiency(level),
	}
	if level%5 == 0 {
		g.AttributeBoosts = 4
	}
	if slices.Contains(fullCasters, class) && level%2 == 1 {
		g.NewSpellRank = (level + 1) / 2
	}
	return g
}

func maxProficiency(level int) string {
	switch {
	case level >= 15:
		return "legendary"
	case level >= 7:
		return "master"
	default:
		return "expert"
	}
}

// goalHints maps a goal keyword to suggestions, checked in order.
var goalHints = []struct {
	keywords []string
	hint     string
}{
	{[]string{"damage", "offense", "offence", "dps", "strike"}, "For damage, prioritise your key attribute with boosts and look at class feats that add actions-efficient Strikes (e.g. Power Attack, Double Slice, Sneak Attack synergies)."},
	{[]string{"defense", "defence", "tank", "survive", "armor"}, "For survivability, consider Toughness or Diehard as general feats and keep Constitution and Dexterity rising with boosts."},
	{[]string{"heal", "healing", "medic", "support"}, "For healing, Battle Medicine lets you heal in combat with Medicine; raise Medicine to expert to unlock higher DCs."},
	{[]string{"skill", "skills", "explore", "exploration"}, "For skills, Assurance and skill increases into your most used skills pay off every session."},
	{[]string{"social", "face", "diplomacy", "deception", "intimidat"}, "For social play, raise Diplomacy, Deception or Intimidation and pick feats like Group Impression or Intimidating Glare."},
	{[]string{"spell", "magic", "caster", "casting"}, "For spellcasting, boost your casting attribute and review which spells to heighten into your new slots."},
	{[]string{"speed", "mobility", "move", "fast"}, "For mobility, Fleet adds 5 feet of Speed and feats that combine Step or Stride with an attack save actions."},
	{[]string{"initiative", "perception", "scout"}, "For initiative, Incredible Initiative or Canny Acumen in Perception helps you act first."},
}

// proficiencyRank orders the skill ranks.
var proficiencyRank = map[string]int{"untrained": 0, "trained": 1, "expert": 2, "master": 3, "legendary": 4}

// Advise builds the level-up advice for c.
func Advise(c Character, goals []string) (Advice, error) {
	if c.Level < 1 {
		c.Level = 1
	}
	if c.Level >= maxLevel {
		return Advice{}, ErrMaxLevel
	}
	next := c.Level + 1
	class := strings.ToLower(strings.TrimSpace(c.Class))

	a := Advice{
		Character:    c.Name,
		Class:        c.Class,
		CurrentLevel: c.Level,
		NextLevel:    next,
		Gains:        GainsAt(class, next, c.Attributes["con"]),
		Suggestions:  []string{},
	}
	if _, ok := classHP[class]; !ok && class != "" {
		a.Notes = append(a.Notes, fmt.Sprintf("Unknown class %q; hit points assume 8 per level.", c.Class))
	}

	g := a.Gains
	if g.AttributeBoosts > 0 {
		a.Suggestions = append(a.Suggestions, "You boost four different attributes. Modifiers of +4 or more only rise with a partial boost, so spread boosts where you are still below +4.")
	}
	if g.SkillIncrease {
		if s := bestIncrease(c.Skills, g.MaxProficiency); s != "" {
			a.Suggestions = append(a.Suggestions, fmt.Sprintf("Skill increase: %s is your highest skill that can still improve.", s))
		}
	}
	if g.NewSpellRank > 0 {
		a.Suggestions = append(a.Suggestions, fmt.Sprintf("You gain rank %d spells. Cantrips heighten to rank %d automatically.", g.NewSpellRank, g.NewSpellRank))
	}

	seen := map[string]bool{}
	for _, goal := range goals {
		lg := strings.ToLower(goal)
		for _, h := range goalHints {
			if seen[h.hint] {
				continue
			}
			for _, kw := range h.keywords {
				if strings.Contains(lg, kw) {
					a.Suggestions = append(a.Suggestions, h.hint)
					seen[h.hint] = true
					break
				}
			}
		}
	}
	if len(goals) > 0 && len(seen) == 0 {
		a.Notes = append(a.Notes, "No specific suggestions matched the stated goals; ask about them directly for tailored advice.")
	}
	return a, nil
}

// bestIncrease picks the highest-ranked skill still below the level cap.
// Ties go to the alphabetically first name.
func bestIncrease(skills map[string]string, ceiling string) string {
	limit := proficiencyRank[ceiling]
	best, bestRank := "", -1
	names := make([]string, 0, len(skills))
	for n := range skills {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		r, ok := proficiencyRank[strings.ToLower(skills[n])]
		if !ok || r >= limit || r == 0 {
			continue
		}
		if r > bestRank {
			best, bestRank = n, r
		}
	}
	return best
}

type advisorArgs struct {
	CharacterData Character `json:"character_data"`
	LevelUpGoals  []string  `json:"level_up_goals,omitempty"`
}

// Tools returns the level_up_advisor tool.
func Tools() []tools.Tool {
	return []tools.Tool{{
		Definition: types.ToolDefinition{
			Name:        "level_up_advisor",
			Description: "Explain what a Pathfinder 2E character gains at the next level (feats, skill increase, attribute boosts, hit points, spell ranks) and suggest choices for the player's goals.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"character_data": map[string]any{
						"type":        "object",
						"description": "Character sheet: name, class, ancestry, level, attributes (modifiers) and skills (proficiency ranks).",
					},
					"level_up_goals": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "What the player wants to improve, e.g. [\"more damage\", \"healing\"].",
					},
				},
				"required": []string{"character_data"},
			},
			MaxDurationMs: 500,
		},
		Handler: func(_ context.Context, args string) (string, error) {
			var a advisorArgs
			if err := json.Unmarshal([]byte(args), &a); err != nil {
				return "", fmt.Errorf("levelup: level_up_advisor: parse arguments: %w", err)
			}
			res, err := Advise(a.CharacterData, a.LevelUpGoals)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(res)
			if err != nil {
				return "", fmt.Errorf("levelup: level_up_advisor: encode result: %w", err)
			}
			return string(out), nil
		},
	}}
}
