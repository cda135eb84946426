package diceroller

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"
)

func seeded() *Roller {
	return NewRoller(rand.New(rand.NewPCG(1, 2)))
}

// ── parseExpression ──

func TestParseExpression_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr     string
		dice     int
		modifier int
	}{
		{"1d6", 1, 0},
		{"2d6+3", 2, 3},
		{"4d8-1", 4, -1},
		{"d20", 1, 0},
		{"D6", 1, 0},
		{"1d20 + 7", 1, 7},
		{"2d6+1d4+3", 3, 3},
		{"-1+1d4", 1, -1},
		{"1d100-50", 1, -50},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			terms, err := parseExpression(tt.expr)
			if err != nil {
				t.Fatalf("parseExpression(%q): %v", tt.expr, err)
			}
			dice, mod := 0, 0
			for _, term := range terms {
				dice += term.count
				mod += term.sign * term.flat
			}
			if dice != tt.dice || mod != tt.modifier {
				t.Errorf("dice=%d mod=%d, want dice=%d mod=%d", dice, mod, tt.dice, tt.modifier)
			}
		})
	}
}

func TestParseExpression_Invalid(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{
		"",
		"6",
		"0d6",
		"2d0",
		"xd6",
		"2dx",
		"2d6+",
		"2d6++1",
		"1d1001",
		"101d6",
		"60d6+41d6",
	} {
		t.Run(expr, func(t *testing.T) {
			t.Parallel()
			_, err := parseExpression(expr)
			if err == nil {
				t.Fatalf("parseExpression(%q): expected error", expr)
			}
			if !strings.HasPrefix(err.Error(), "diceroller:") {
				t.Errorf("error %q lacks package prefix", err)
			}
		})
	}
}

// ── Roll ──

func TestRoll_TotalsAddUp(t *testing.T) {
	t.Parallel()
	r := seeded()

	for range 200 {
		res, err := r.Roll("2d6+1d4-1d8+3")
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Groups) != 3 {
			t.Fatalf("groups = %d, want 3", len(res.Groups))
		}
		sum := res.Modifier
		for _, g := range res.Groups {
			groupSum := 0
			for _, v := range g.Rolls {
				groupSum += v
			}
			if strings.HasPrefix(g.Dice, "-") {
				groupSum = -groupSum
			}
			if groupSum != g.Subtotal {
				t.Errorf("%s subtotal = %d, rolls sum to %d", g.Dice, g.Subtotal, groupSum)
			}
			sum += g.Subtotal
		}
		if sum != res.Total || res.Modifier != 3 {
			t.Fatalf("total = %d, recomputed %d (modifier %d)", res.Total, sum, res.Modifier)
		}
		if res.Groups[2].Dice != "-1d8" {
			t.Errorf("third group = %q", res.Groups[2].Dice)
		}
	}
}

func TestRoll_DieRange(t *testing.T) {
	t.Parallel()
	r := seeded()
	seen := map[int]bool{}
	for range 500 {
		res, err := r.Roll("1d6")
		if err != nil {
			t.Fatal(err)
		}
		v := res.Groups[0].Rolls[0]
		if v < 1 || v > 6 {
			t.Fatalf("roll %d out of range", v)
		}
		seen[v] = true
	}
	if len(seen) != 6 {
		t.Errorf("saw faces %v, want all six", seen)
	}
}

func TestRollHandler(t *testing.T) {
	t.Parallel()
	h := Tools(seeded())[0].Handler

	out, err := h(context.Background(), `{"expression":"1d20+7"}`)
	if err != nil {
		t.Fatal(err)
	}
	var res RollResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Expression != "1d20+7" || res.Total < 8 || res.Total > 27 {
		t.Errorf("result = %+v", res)
	}

	for _, bad := range []string{`{`, `{}`, `{"expression":"banana"}`} {
		if _, err := h(context.Background(), bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

// ── degrees of success ──

func TestDegreeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		total   int
		dc      int
		natural int
		want    Degree
	}{
		{"meets dc", 20, 20, 10, Success},
		{"beats by ten", 30, 20, 15, CriticalSuccess},
		{"misses by one", 19, 20, 10, Failure},
		{"misses by ten", 10, 20, 5, CriticalFailure},
		{"nat 20 lifts failure", 19, 25, 20, Success},
		{"nat 20 lifts success", 25, 20, 20, CriticalSuccess},
		{"nat 20 caps at critical", 40, 20, 20, CriticalSuccess},
		{"nat 1 drops success", 30, 25, 1, Failure},
		{"nat 1 drops critical success", 40, 25, 1, Success},
		{"nat 1 floors at critical failure", 5, 25, 1, CriticalFailure},
		{"nat 20 lifts critical failure", 21, 35, 20, Failure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DegreeOf(tt.total, tt.dc, tt.natural); got != tt.want {
				t.Errorf("DegreeOf(%d, %d, %d) = %v, want %v", tt.total, tt.dc, tt.natural, got, tt.want)
			}
		})
	}
}

func TestDegreeString(t *testing.T) {
	t.Parallel()
	want := map[Degree]string{
		CriticalFailure: "critical failure",
		Failure:         "failure",
		Success:         "success",
		CriticalSuccess: "critical success",
		Degree(9):       "unknown",
	}
	for d, s := range want {
		if d.String() != s {
			t.Errorf("%d.String() = %q, want %q", int(d), d.String(), s)
		}
	}
}

// ── check ──

func TestCheck_Modes(t *testing.T) {
	t.Parallel()
	r := seeded()

	for range 100 {
		res, err := r.Check(5, 15, ModeFortune)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Rolls) != 2 || res.Natural != max(res.Rolls[0], res.Rolls[1]) {
			t.Fatalf("fortune = %+v", res)
		}
		res, err = r.Check(5, 15, ModeMisfortune)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Rolls) != 2 || res.Natural != min(res.Rolls[0], res.Rolls[1]) {
			t.Fatalf("misfortune = %+v", res)
		}
		res, err = r.Check(5, 15, "")
		if err != nil {
			t.Fatal(err)
		}
		if res.Mode != ModeNormal || len(res.Rolls) != 1 || res.Total != res.Natural+5 {
			t.Fatalf("normal = %+v", res)
		}
		if res.Degree != DegreeOf(res.Total, 15, res.Natural).String() {
			t.Fatalf("degree = %q for %+v", res.Degree, res)
		}
	}

	if _, err := r.Check(0, 10, "advantage"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCheckHandler(t *testing.T) {
	t.Parallel()
	h := Tools(seeded())[1].Handler

	out, err := h(context.Background(), `{"modifier":12,"dc":20}`)
	if err != nil {
		t.Fatal(err)
	}
	var res CheckResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.DC != 20 || res.Modifier != 12 || res.Degree == "" {
		t.Errorf("result = %+v", res)
	}

	if _, err := h(context.Background(), `{"modifier":12}`); err == nil {
		t.Error("expected error without dc")
	}
}

func TestTools(t *testing.T) {
	t.Parallel()
	ts := Tools(nil)
	if len(ts) != 2 || ts[0].Definition.Name != "roll_dice" || ts[1].Definition.Name != "check" {
		t.Fatalf("tools = %+v", ts)
	}
	if _, err := ts[0].Handler(context.Background(), `{"expression":"d4"}`); err != nil {
		t.Errorf("global source roll: %v", err)
	}
}
