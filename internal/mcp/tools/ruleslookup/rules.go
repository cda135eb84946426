package ruleslookup

import (
	"slices"
	"strings"
)

// Rule is one entry of the embedded Pathfinder 2E quick-reference table.
type Rule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Text     string `json:"text"`
	URL      string `json:"url,omitempty"`
}

// pf2eRules is a short paraphrased reference used when the web search is
// unavailable or comes back empty.
var pf2eRules = []Rule{
	// ── Conditions ──
	{
		ID: "condition-frightened", Name: "Frightened", Category: "condition",
		Text: "You take a status penalty equal to the frightened value to all checks and DCs. At the end of each of your turns the value decreases by 1.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=19",
	},
	{
		ID: "condition-off-guard", Name: "Off-Guard (Flat-Footed)", Category: "condition",
		Text: "You take a -2 circumstance penalty to AC. Flanked creatures are off-guard to the flanking attackers.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=58",
	},
	{
		ID: "condition-prone", Name: "Prone", Category: "condition",
		Text: "You are lying on the ground. You are off-guard and take a -2 circumstance penalty to attack rolls. The only move actions you can use are Crawl and Stand. Standing up ends the condition.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=31",
	},
	{
		ID: "condition-grabbed", Name: "Grabbed", Category: "condition",
		Text: "You are held in place by another creature. You are off-guard and immobilized. Manipulate actions require a DC 5 flat check or are lost.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=20",
	},
	{
		ID: "condition-sickened", Name: "Sickened", Category: "condition",
		Text: "You take a status penalty equal to the sickened value to all checks and DCs, and you cannot willingly ingest anything. You can spend an action retching to attempt a Fortitude save; success reduces the value by 1, critical success by 2.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=34",
	},
	{
		ID: "condition-stunned", Name: "Stunned", Category: "condition",
		Text: "You lose actions. Stunned with a value loses that many actions, reducing the value as actions are lost. Stunned with a duration loses all actions for that duration.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=36",
	},
	{
		ID: "condition-slowed", Name: "Slowed", Category: "condition",
		Text: "When you regain actions at the start of your turn, reduce the number you regain by the slowed value.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=35",
	},
	{
		ID: "condition-dying", Name: "Dying", Category: "condition",
		Text: "You are unconscious and near death. At the start of each turn attempt a recovery check, a flat check against DC 10 plus your dying value. You die at dying 4, reduced by your doomed value.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=11",
	},
	{
		ID: "condition-wounded", Name: "Wounded", Category: "condition",
		Text: "Whenever you gain the dying condition, add your wounded value to it. Wounded increases by 1 each time you lose dying and clears after 10 minutes of rest or full healing via Treat Wounds.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=42",
	},
	{
		ID: "condition-persistent-damage", Name: "Persistent Damage", Category: "condition",
		Text: "You take the listed damage at the end of each of your turns, then attempt a DC 15 flat check to end it. Appropriate help lowers the DC to 10.",
		URL:  "https://2e.aonprd.com/Conditions.aspx?ID=29",
	},

	// ── Combat ──
	{
		ID: "combat-three-actions", Name: "Three-Action Economy", Category: "combat",
		Text: "On your turn you get three actions and one reaction. Activities can cost two or three actions. Free actions cost nothing but may have triggers.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2432",
	},
	{
		ID: "combat-map", Name: "Multiple Attack Penalty", Category: "combat",
		Text: "Your second attack in a turn takes a -5 penalty and the third and later take -10. Agile weapons reduce these to -4 and -8.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2287",
	},
	{
		ID: "combat-flanking", Name: "Flanking", Category: "combat",
		Text: "A creature is flanked when you and an ally are on opposite sides of it and both of you can act and are wielding melee weapons or using unarmed attacks that reach it. The flanked creature is off-guard to you.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2362",
	},
	{
		ID: "combat-strike", Name: "Strike", Category: "combat",
		Text: "Single action. Make an attack roll against the target's AC. A critical hit deals double damage.",
		URL:  "https://2e.aonprd.com/Actions.aspx?ID=2316",
	},
	{
		ID: "combat-raise-shield", Name: "Raise a Shield", Category: "combat",
		Text: "Single action. Until the start of your next turn you gain the shield's circumstance bonus to AC and can use Shield Block.",
		URL:  "https://2e.aonprd.com/Actions.aspx?ID=2302",
	},
	{
		ID: "combat-initiative", Name: "Initiative", Category: "combat",
		Text: "Encounters start with an initiative roll, usually Perception. Creatures act from highest to lowest result; on a tie, enemies go before player characters.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2425",
	},
	{
		ID: "combat-attack-of-opportunity", Name: "Reactive Strike (Attack of Opportunity)", Category: "combat",
		Text: "Reaction. Triggered when a creature in reach uses a manipulate or move action, makes a ranged attack, or leaves a square during a move. Make a melee Strike; on a critical hit against a manipulate action, the action is disrupted.",
		URL:  "https://2e.aonprd.com/Actions.aspx?ID=2258",
	},

	// ── Checks ──
	{
		ID: "checks-degrees-of-success", Name: "Degrees of Success", Category: "checks",
		Text: "Meeting or beating the DC is a success; beating it by 10 or more is a critical success. Failing is a failure; failing by 10 or more is a critical failure. A natural 20 improves the result one step and a natural 1 worsens it one step.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2286",
	},
	{
		ID: "checks-proficiency", Name: "Proficiency", Category: "checks",
		Text: "Proficiency bonus is your level plus 2 for trained, 4 for expert, 6 for master, 8 for legendary. Untrained adds nothing.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2275",
	},
	{
		ID: "checks-hero-points", Name: "Hero Points", Category: "checks",
		Text: "Spend 1 hero point to reroll a check and take the second result. Spend all hero points when you would die to avoid death, stabilising at 0 HP without increasing wounded.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2291",
	},

	// ── Spells ──
	{
		ID: "spells-spell-attack", Name: "Spell Attack Rolls", Category: "spells",
		Text: "Spell attack modifier is your spellcasting attribute modifier plus proficiency. Spell attacks are attacks and count toward your multiple attack penalty.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2238",
	},
	{
		ID: "spells-saves", Name: "Saving Throws Against Spells", Category: "spells",
		Text: "A basic saving throw deals double damage on a critical failure, full damage on a failure, half on a success and none on a critical success.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2297",
	},
	{
		ID: "spells-heightening", Name: "Heightened Spells", Category: "spells",
		Text: "Casting a spell from a higher-rank slot heightens it. Cantrips are automatically heightened to half your level rounded up.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2244",
	},

	// ── Character creation and advancement ──
	{
		ID: "character-ability-boosts", Name: "Attribute Boosts", Category: "character",
		Text: "At levels 5, 10, 15 and 20 you boost four different attributes. A boost adds 1 to a modifier, or adds 1 only partially when the modifier is already +4 or higher.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2108",
	},
	{
		ID: "character-feats", Name: "Feat Progression", Category: "character",
		Text: "Most classes gain class feats at even levels, skill feats at even levels, general feats at levels 3, 7, 11, 15 and 19, and ancestry feats at levels 1, 5, 9, 13 and 17.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2128",
	},
	{
		ID: "character-skill-increase", Name: "Skill Increases", Category: "character",
		Text: "From level 3 onward you gain a skill increase at every odd level. Master proficiency requires level 7 and legendary requires level 15.",
		URL:  "https://2e.aonprd.com/Rules.aspx?ID=2129",
	},

	// ── Exploration ──
	{
		ID: "exploration-treat-wounds", Name: "Treat Wounds", Category: "exploration",
		Text: "10 minutes, requires healer's tools. Medicine check against DC 15 restores 2d8 HP, or 4d8 on a critical success. The target is immune for 1 hour.",
		URL:  "https://2e.aonprd.com/Actions.aspx?ID=2403",
	},
	{
		ID: "exploration-refocus", Name: "Refocus", Category: "exploration",
		Text: "Spend 10 minutes to restore 1 Focus Point.",
		URL:  "https://2e.aonprd.com/Actions.aspx?ID=2412",
	},
}

var rulesByID = func() map[string]Rule {
	m := make(map[string]Rule, len(pf2eRules))
	for _, r := range pf2eRules {
		m[r.ID] = r
	}
	return m
}()

// searchLocal scores every rule by how many query words appear in its name
// or text. Name hits count double. The best matches come first.
func searchLocal(query string, limit int) []Rule {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}

	type scored struct {
		rule  Rule
		score int
	}
	var hits []scored
	for _, r := range pf2eRules {
		name := strings.ToLower(r.Name)
		text := strings.ToLower(r.Text)
		score := 0
		for _, w := range words {
			if len(w) < 3 {
				continue
			}
			if strings.Contains(name, w) {
				score += 2
			}
			if strings.Contains(text, w) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{r, score})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int { return b.score - a.score })

	out := make([]Rule, 0, min(len(hits), limit))
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].rule)
	}
	return out
}
