// Package combat provides the "combat_analyzer" tool: a deterministic
// tactical read of an encounter snapshot sent by the VTT module.
package combat

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

// Sides of a combatant.
const (
	SideAlly  = "ally"
	SideEnemy = "enemy"
)

// lowHP is the fraction of max HP below which a creature counts as in danger.
const lowHP = 0.25

// HP is current and maximum hit points.
type HP struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

// Fraction returns Value/Max, or 1 when Max is unknown.
func (h HP) Fraction() float64 {
	if h.Max <= 0 {
		return 1
	}
	return float64(max(h.Value, 0)) / float64(h.Max)
}

// Position is a grid square. Each square is 5 feet.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Combatant is one creature in the encounter.
type Combatant struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Side             string    `json:"side"`
	Level            int       `json:"level"`
	HP               HP        `json:"hp"`
	AC               int       `json:"ac,omitempty"`
	Conditions       []string  `json:"conditions,omitempty"`
	Position         *Position `json:"position,omitempty"`
	Reach            int       `json:"reach,omitempty"` // in squares, default 1
	ActionsRemaining *int      `json:"actions_remaining,omitempty"`
	AttacksMade      int       `json:"attacks_made,omitempty"`
	AgileWeapon      bool      `json:"agile_weapon,omitempty"`
}

func (c Combatant) reach() int {
	if c.Reach <= 0 {
		return 1
	}
	return c.Reach
}

// State is an encounter snapshot.
type State struct {
	Round       int         `json:"round"`
	CurrentTurn string      `json:"current_turn,omitempty"`
	Combatants  []Combatant `json:"combatants"`
}

// Threat ranks one enemy.
type Threat struct {
	Name      string  `json:"name"`
	Level     int     `json:"level"`
	HPPercent int     `json:"hp_percent"`
	Rating    string  `json:"rating"`
	Flanked   bool    `json:"flanked_by_you,omitempty"`
	distance  int
	hpFrac    float64
}

// Ally reports an ally in danger.
type Ally struct {
	Name      string `json:"name"`
	HPPercent int    `json:"hp_percent"`
}

// Analysis is the output of combat_analyzer.
type Analysis struct {
	CharacterID       string   `json:"character_id"`
	Character         string   `json:"character"`
	Round             int      `json:"round"`
	ActionsRemaining  int      `json:"actions_remaining"`
	NextAttackPenalty int      `json:"next_attack_penalty"`
	Conditions        []string `json:"conditions"`
	Threats           []Threat `json:"threats"`
	AlliesInDanger    []Ally   `json:"allies_in_danger"`
	Advice            []string `json:"advice"`
}

// ErrNoCharacter is returned when the acting character cannot be found.
var ErrNoCharacter = errors.New("combat: acting character not found")

// MultipleAttackPenalty returns the penalty for the next Strike after
// attacksMade attacks this turn.
func MultipleAttackPenalty(attacksMade int, agile bool) int {
	switch {
	case attacksMade <= 0:
		return 0
	case attacksMade == 1 && agile:
		return -4
	case attacksMade == 1:
		return -5
	case agile:
		return -8
	default:
		return -10
	}
}

// threatRating compares an enemy's level to the character's.
func threatRating(enemy, pc int) string {
	switch d := enemy - pc; {
	case d >= 3:
		return "extreme"
	case d == 2:
		return "severe"
	case d == 1:
		return "high"
	case d == 0:
		return "moderate"
	default:
		return "low"
	}
}

func distance(a, b Position) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// flanks reports whether c and ally flank target: both can reach it and the
// line between them crosses opposite sides of its square.
func flanks(c, ally, target Combatant) bool {
	if c.Position == nil || ally.Position == nil || target.Position == nil {
		return false
	}
	if distance(*c.Position, *target.Position) > c.reach() || distance(*ally.Position, *target.Position) > ally.reach() {
		return false
	}
	dx1, dy1 := c.Position.X-target.Position.X, c.Position.Y-target.Position.Y
	dx2, dy2 := ally.Position.X-target.Position.X, ally.Position.Y-target.Position.Y
	return dx1*dx2 <= 0 && dy1*dy2 <= 0 && dx1*dx2+dy1*dy2 < 0
}

// conditionValue finds a condition by name and returns its value, 1 for a
// valueless condition, or 0 when absent.
func conditionValue(conds []string, name string) int {
	for _, c := range conds {
		fields := strings.Fields(strings.ToLower(c))
		if len(fields) == 0 || fields[0] != name {
			continue
		}
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
				return n
			}
		}
		return 1
	}
	return 0
}

func percent(f float64) int {
	return int(f*100 + 0.5)
}

// Analyze builds a tactical summary for characterID, or for the combatant
// whose turn it is when characterID is empty.
func Analyze(s State, characterID string) (Analysis, error) {
	if characterID == "" {
		characterID = s.CurrentTurn
	}
	idx := slices.IndexFunc(s.Combatants, func(c Combatant) bool {
		return c.ID == characterID || (characterID != "" && strings.EqualFold(c.Name, characterID))
	})
	if idx < 0 && characterID == "" {
		idx = slices.IndexFunc(s.Combatants, func(c Combatant) bool { return c.Side == SideAlly })
	}
	if idx < 0 {
		return Analysis{}, fmt.Errorf("%w: %q", ErrNoCharacter, characterID)
	}
	me := s.Combatants[idx]

	a := Analysis{
		CharacterID:       me.ID,
		Character:         me.Name,
		Round:             s.Round,
		ActionsRemaining:  3,
		NextAttackPenalty: MultipleAttackPenalty(me.AttacksMade, me.AgileWeapon),
		Conditions:        append([]string{}, me.Conditions...),
		Threats:           []Threat{},
		AlliesInDanger:    []Ally{},
		Advice:            []string{},
	}
	if me.ActionsRemaining != nil {
		a.ActionsRemaining = *me.ActionsRemaining
	} else {
		a.ActionsRemaining = max(3-conditionValue(me.Conditions, "slowed")-conditionValue(me.Conditions, "stunned"), 0)
	}

	var allies []Combatant
	for i, c := range s.Combatants {
		if i == idx {
			continue
		}
		if c.Side == SideAlly {
			allies = append(allies, c)
			if f := c.HP.Fraction(); c.HP.Max > 0 && f < lowHP {
				a.AlliesInDanger = append(a.AlliesInDanger, Ally{Name: c.Name, HPPercent: percent(f)})
			}
		}
	}

	for _, e := range s.Combatants {
		if e.Side != SideEnemy || (e.HP.Max > 0 && e.HP.Value <= 0) {
			continue
		}
		t := Threat{
			Name:      e.Name,
			Level:     e.Level,
			HPPercent: percent(e.HP.Fraction()),
			Rating:    threatRating(e.Level, me.Level),
			hpFrac:    e.HP.Fraction(),
			distance:  -1,
		}
		if me.Position != nil && e.Position != nil {
			t.distance = distance(*me.Position, *e.Position)
		}
		for _, ally := range allies {
			if flanks(me, ally, e) {
				t.Flanked = true
				a.Advice = append(a.Advice, fmt.Sprintf("%s is flanked by you and %s, so it is off-guard to you (-2 AC).", e.Name, ally.Name))
				break
			}
		}
		a.Threats = append(a.Threats, t)
	}
	slices.SortStableFunc(a.Threats, func(x, y Threat) int {
		return cmp.Or(cmp.Compare(y.Level, x.Level), cmp.Compare(y.hpFrac, x.hpFrac))
	})

	a.Advice = append(a.Advice, advise(me, a)...)
	return a, nil
}

func advise(me Combatant, a Analysis) []string {
	var out []string

	switch {
	case a.ActionsRemaining == 0:
		out = append(out, "You have no actions left this turn; save your reaction for a good trigger.")
	case a.NextAttackPenalty <= -8:
		out = append(out, fmt.Sprintf("Another Strike takes a %d penalty. Consider Raise a Shield, Step, Demoralize, Recall Knowledge or a spell that targets a save instead.", a.NextAttackPenalty))
	case a.NextAttackPenalty < 0:
		out = append(out, fmt.Sprintf("Your next Strike takes a %d multiple attack penalty.", a.NextAttackPenalty))
	}

	if f := me.HP.Fraction(); me.HP.Max > 0 && f < lowHP {
		out = append(out, fmt.Sprintf("You are at %d%% HP. Consider healing, retreating or taking cover.", percent(f)))
	}
	if v := conditionValue(me.Conditions, "frightened"); v > 0 {
		out = append(out, fmt.Sprintf("Frightened %d gives -%d to all your checks and DCs; it drops by 1 at the end of your turn.", v, v))
	}
	if conditionValue(me.Conditions, "prone") > 0 {
		out = append(out, "You are prone: Stand costs an action and you take -2 to attacks until you do.")
	}
	if conditionValue(me.Conditions, "grabbed") > 0 {
		out = append(out, "You are grabbed: Escape first, and manipulate actions need a DC 5 flat check.")
	}
	if v := conditionValue(me.Conditions, "sickened"); v > 0 {
		out = append(out, fmt.Sprintf("Sickened %d: spend an action to retch and attempt a Fortitude save to reduce it.", v))
	}

	for _, ally := range a.AlliesInDanger {
		out = append(out, fmt.Sprintf("%s is at %d%% HP and may need healing or protection.", ally.Name, ally.HPPercent))
	}

	if len(a.Threats) > 0 {
		top := a.Threats[0]
		out = append(out, fmt.Sprintf("Biggest threat: %s (level %d, %s threat, %d%% HP).", top.Name, top.Level, top.Rating, top.HPPercent))
		for _, t := range a.Threats {
			if t.HPPercent <= 25 && t.distance >= 0 && t.distance <= me.reach() {
				out = append(out, fmt.Sprintf("%s is nearly down and within reach; finishing it removes its actions from the fight.", t.Name))
				break
			}
		}
	} else {
		out = append(out, "No active enemies in the snapshot.")
	}
	return out
}

type analyzerArgs struct {
	CombatState State  `json:"combat_state"`
	CharacterID string `json:"character_id,omitempty"`
}

// Tools returns the combat_analyzer tool.
func Tools() []tools.Tool {
	return []tools.Tool{{
		Definition: types.ToolDefinition{
			Name:        "combat_analyzer",
			Description: "Analyze a Pathfinder 2E combat snapshot for one character: remaining actions, multiple attack penalty, flanking, allies in danger and enemies ranked by threat.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"combat_state": map[string]any{
						"type":        "object",
						"description": "Current combat state: round, current_turn and combatants with side, level, hp, conditions and grid position.",
					},
					"character_id": map[string]any{
						"type":        "string",
						"description": "ID or name of the character to advise. Defaults to the combatant whose turn it is.",
					},
				},
				"required": []string{"combat_state"},
			},
			MaxDurationMs: 500,
		},
		Handler: func(_ context.Context, args string) (string, error) {
			var a analyzerArgs
			if err := json.Unmarshal([]byte(args), &a); err != nil {
				return "", fmt.Errorf("combat: combat_analyzer: parse arguments: %w", err)
			}
			if len(a.CombatState.Combatants) == 0 {
				return "", errors.New("combat: combat_analyzer: combat_state has no combatants")
			}
			res, err := Analyze(a.CombatState, a.CharacterID)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(res)
			if err != nil {
				return "", fmt.Errorf("combat: combat_analyzer: encode result: %w", err)
			}
			return string(out), nil
		},
	}}
}
