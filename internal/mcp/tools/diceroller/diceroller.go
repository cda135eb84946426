// Package diceroller provides the dice tools: "roll_dice" evaluates dice
// expressions such as "2d6+1d4+3", and "check" rolls a d20 check against a DC
// and reports the Pathfinder 2E degree of success.
//
// Handlers are safe for concurrent use.
package diceroller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

const (
	maxDice  = 100
	maxSides = 1000
)

// Degree is a Pathfinder 2E degree of success.
type Degree int

const (
	CriticalFailure Degree = iota
	Failure
	Success
	CriticalSuccess
)

func (d Degree) String() string {
	switch d {
	case CriticalFailure:
		return "critical failure"
	case Failure:
		return "failure"
	case Success:
		return "success"
	case CriticalSuccess:
		return "critical success"
	default:
		return "unknown"
	}
}

// DegreeOf grades a check. Beating dc by 10 or more is a critical success,
// missing it by 10 or more a critical failure. A natural 20 then improves the
// result one step and a natural 1 worsens it one step.
func DegreeOf(total, dc, natural int) Degree {
	var d Degree
	switch {
	case total >= dc+10:
		d = CriticalSuccess
	case total >= dc:
		d = Success
	case total <= dc-10:
		d = CriticalFailure
	default:
		d = Failure
	}
	switch natural {
	case 20:
		d = min(d+1, CriticalSuccess)
	case 1:
		d = max(d-1, CriticalFailure)
	}
	return d
}

// term is one signed component of an expression: NdS or a flat number.
type term struct {
	sign  int
	count int // zero for a flat modifier
	sides int
	flat  int
}

// parseExpression splits expr on + and - into dice and flat terms. "d20" is
// shorthand for "1d20".
func parseExpression(expr string) ([]term, error) {
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(expr)), " ", "")
	if s == "" {
		return nil, errors.New("diceroller: expression must not be empty")
	}

	var terms []term
	sign := 1
	start := 0
	flush := func(end int) error {
		raw := s[start:end]
		if raw == "" {
			return fmt.Errorf("diceroller: invalid expression %q: empty term", expr)
		}
		t, err := parseTerm(raw, expr)
		if err != nil {
			return err
		}
		t.sign = sign
		terms = append(terms, t)
		return nil
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '+' || c == '-' {
			if i == 0 && c == '-' {
				sign = -1
				start = 1
				continue
			}
			if err := flush(i); err != nil {
				return nil, err
			}
			sign = 1
			if c == '-' {
				sign = -1
			}
			start = i + 1
		}
	}
	if err := flush(len(s)); err != nil {
		return nil, err
	}

	dice := 0
	for _, t := range terms {
		dice += t.count
	}
	if dice == 0 {
		return nil, fmt.Errorf("diceroller: invalid expression %q: no dice", expr)
	}
	if dice > maxDice {
		return nil, fmt.Errorf("diceroller: expression %q rolls %d dice, limit is %d", expr, dice, maxDice)
	}
	return terms, nil
}

func parseTerm(raw, expr string) (term, error) {
	dIdx := strings.IndexByte(raw, 'd')
	if dIdx == -1 {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return term{}, fmt.Errorf("diceroller: invalid modifier %q in expression %q", raw, expr)
		}
		return term{flat: n}, nil
	}

	count := 1
	if dIdx > 0 {
		n, err := strconv.Atoi(raw[:dIdx])
		if err != nil {
			return term{}, fmt.Errorf("diceroller: invalid dice count %q in expression %q", raw[:dIdx], expr)
		}
		count = n
	}
	if count < 1 {
		return term{}, fmt.Errorf("diceroller: dice count must be at least 1 in expression %q", expr)
	}
	sides, err := strconv.Atoi(raw[dIdx+1:])
	if err != nil {
		return term{}, fmt.Errorf("diceroller: invalid sides %q in expression %q", raw[dIdx+1:], expr)
	}
	if sides < 1 || sides > maxSides {
		return term{}, fmt.Errorf("diceroller: sides must be between 1 and %d in expression %q", maxSides, expr)
	}
	return term{count: count, sides: sides}, nil
}

// Roller rolls dice from a shared source.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller returns a Roller. A nil rng uses the automatically seeded
// global source.
func NewRoller(rng *rand.Rand) *Roller {
	return &Roller{rng: rng}
}

func (r *Roller) die(sides int) int {
	if r == nil || r.rng == nil {
		return rand.IntN(sides) + 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(sides) + 1
}

// ── roll_dice ──

type rollArgs struct {
	Expression string `json:"expression"`
}

// DiceGroup reports the dice rolled for one NdS term.
type DiceGroup struct {
	Dice     string `json:"dice"`
	Rolls    []int  `json:"rolls"`
	Subtotal int    `json:"subtotal"`
}

// RollResult is the output of roll_dice.
type RollResult struct {
	Expression string      `json:"expression"`
	Groups     []DiceGroup `json:"groups"`
	Modifier   int         `json:"modifier"`
	Total      int         `json:"total"`
}

// Roll evaluates expr.
func (r *Roller) Roll(expr string) (RollResult, error) {
	terms, err := parseExpression(expr)
	if err != nil {
		return RollResult{}, err
	}
	res := RollResult{Expression: expr}
	for _, t := range terms {
		if t.count == 0 {
			res.Modifier += t.sign * t.flat
			continue
		}
		g := DiceGroup{Dice: fmt.Sprintf("%dd%d", t.count, t.sides), Rolls: make([]int, t.count)}
		if t.sign < 0 {
			g.Dice = "-" + g.Dice
		}
		for i := range t.count {
			g.Rolls[i] = r.die(t.sides)
			g.Subtotal += g.Rolls[i]
		}
		g.Subtotal *= t.sign
		res.Groups = append(res.Groups, g)
		res.Total += g.Subtotal
	}
	res.Total += res.Modifier
	return res, nil
}

func (r *Roller) rollHandler(_ context.Context, args string) (string, error) {
	var a rollArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("diceroller: parse arguments: %w", err)
	}
	res, err := r.Roll(a.Expression)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("diceroller: encode result: %w", err)
	}
	return string(out), nil
}

// ── check ──

// Roll modes for a check.
const (
	ModeNormal     = "normal"
	ModeFortune    = "fortune"
	ModeMisfortune = "misfortune"
)

type checkArgs struct {
	Modifier int    `json:"modifier"`
	DC       *int   `json:"dc"`
	Mode     string `json:"mode,omitempty"`
}

// CheckResult is the output of check.
type CheckResult struct {
	Rolls    []int  `json:"rolls"`
	Natural  int    `json:"natural"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
	DC       int    `json:"dc"`
	Mode     string `json:"mode"`
	Degree   string `json:"degree"`
}

// Check rolls a d20 plus modifier against dc. Fortune rolls twice and keeps
// the higher die; misfortune keeps the lower.
func (r *Roller) Check(modifier, dc int, mode string) (CheckResult, error) {
	if mode == "" {
		mode = ModeNormal
	}
	res := CheckResult{Modifier: modifier, DC: dc, Mode: mode}
	switch mode {
	case ModeNormal:
		res.Rolls = []int{r.die(20)}
		res.Natural = res.Rolls[0]
	case ModeFortune, ModeMisfortune:
		res.Rolls = []int{r.die(20), r.die(20)}
		if mode == ModeFortune {
			res.Natural = max(res.Rolls[0], res.Rolls[1])
		} else {
			res.Natural = min(res.Rolls[0], res.Rolls[1])
		}
	default:
		return CheckResult{}, fmt.Errorf("diceroller: unknown mode %q", mode)
	}
	res.Total = res.Natural + modifier
	res.Degree = DegreeOf(res.Total, dc, res.Natural).String()
	return res, nil
}

func (r *Roller) checkHandler(_ context.Context, args string) (string, error) {
	var a checkArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("diceroller: parse arguments: %w", err)
	}
	if a.DC == nil {
		return "", errors.New("diceroller: dc is required")
	}
	res, err := r.Check(a.Modifier, *a.DC, a.Mode)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("diceroller: encode result: %w", err)
	}
	return string(out), nil
}

// Tools returns roll_dice and check backed by r. A nil r uses the global
// random source.
func Tools(r *Roller) []tools.Tool {
	if r == nil {
		r = NewRoller(nil)
	}
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "roll_dice",
				Description: "Roll dice. Supports expressions such as 1d20+7, 2d6+1d4+3 or 4d8-1 and returns every die plus the total.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"expression": map[string]any{
							"type":        "string",
							"description": "Dice expression, e.g. 2d8+4",
						},
					},
					"required": []string{"expression"},
				},
				MaxDurationMs: 100,
			},
			Handler: r.rollHandler,
		},
		{
			Definition: types.ToolDefinition{
				Name:        "check",
				Description: "Roll a Pathfinder 2E check: d20 plus modifier against a DC. Returns the total and the degree of success, applying the natural 20 and natural 1 step rules.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"modifier": map[string]any{
							"type":        "integer",
							"description": "Total check modifier, e.g. 12 for a +12 Athletics.",
						},
						"dc": map[string]any{
							"type":        "integer",
							"description": "Difficulty class to beat.",
						},
						"mode": map[string]any{
							"type":        "string",
							"description": "fortune rolls twice and keeps the higher, misfortune keeps the lower.",
							"enum":        []string{ModeNormal, ModeFortune, ModeMisfortune},
						},
					},
					"required": []string{"modifier", "dc"},
				},
				MaxDurationMs: 100,
			},
			Handler: r.checkHandler,
		},
	}
}
