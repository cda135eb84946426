package persona

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestPersona_ResponseField(t *testing.T) {
	t.Parallel()

	p := FrinnyPersona()
	tests := []struct {
		event string
		want  string
	}{
		{"query", FieldContent},
		{"combat_turn", FieldMessage},
		{"level_up", FieldMessage},
		{"character_creation", FieldMessage},
		{"", FieldMessage},
	}
	for _, tt := range tests {
		if got := p.ResponseField(tt.event); got != tt.want {
			t.Errorf("ResponseField(%q) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestPersona_PromptCarriesMoodInstruction(t *testing.T) {
	t.Parallel()

	for _, p := range []Persona{FrinnyPersona(), GameMasterPersona()} {
		prompt := p.Prompt()
		if !strings.HasPrefix(prompt, p.SystemPrompt[:40]) {
			t.Errorf("%s: prompt does not start with persona text", p.Name)
		}
		if !strings.HasSuffix(prompt, MoodInstruction) {
			t.Errorf("%s: prompt does not end with mood instruction", p.Name)
		}
	}
}

func TestPersona_UserError(t *testing.T) {
	t.Parallel()

	if got := (Persona{Name: "Plain"}).UserError(); got != BaseErrorMessage {
		t.Errorf("UserError() = %q, want base message", got)
	}
	if got := FrinnyPersona().UserError(); !strings.Contains(got, "goddess") {
		t.Errorf("Frinny UserError() = %q", got)
	}
}

func TestBuiltin_Get(t *testing.T) {
	t.Parallel()

	r, err := Builtin("")
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	tests := []struct {
		name string
		want string
	}{
		{"", Frinny},
		{"Frinny", Frinny},
		{"gamemaster", GameMaster},
		{"  GameMaster ", GameMaster},
	}
	for _, tt := range tests {
		p, err := r.Get(tt.name)
		if err != nil {
			t.Errorf("Get(%q): %v", tt.name, err)
			continue
		}
		if p.Name != tt.want {
			t.Errorf("Get(%q) = %s, want %s", tt.name, p.Name, tt.want)
		}
	}
}

func TestRegistry_UnknownSuggestsClosest(t *testing.T) {
	t.Parallel()

	r, _ := Builtin("")
	_, err := r.Get("game master")
	if !errors.Is(err, ErrUnknownPersona) {
		t.Fatalf("err = %v, want ErrUnknownPersona", err)
	}
	if !strings.Contains(err.Error(), `did you mean "GameMaster"`) {
		t.Errorf("err = %v, want suggestion", err)
	}

	_, err = r.Get("Zeus")
	if !errors.Is(err, ErrUnknownPersona) || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("err = %v, want unknown without suggestion", err)
	}
}

func TestRegistry_ResolveFallsBackToDefault(t *testing.T) {
	t.Parallel()

	r, _ := Builtin(GameMaster)
	if got := r.Resolve("Nobody").Name; got != GameMaster {
		t.Errorf("Resolve(unknown) = %s, want default %s", got, GameMaster)
	}
	if got := r.Resolve("frinny").Name; got != Frinny {
		t.Errorf("Resolve(frinny) = %s", got)
	}
}

func TestRegistry_SetDefault(t *testing.T) {
	t.Parallel()

	r, _ := Builtin("")
	if err := r.SetDefault("Nobody"); !errors.Is(err, ErrUnknownPersona) {
		t.Errorf("SetDefault(unknown) = %v", err)
	}
	if r.Default().Name != Frinny {
		t.Error("failed SetDefault changed the default")
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() { defer wg.Done(); _ = r.SetDefault(GameMaster) }()
		go func() { defer wg.Done(); _ = r.Default() }()
	}
	wg.Wait()
	if r.Default().Name != GameMaster {
		t.Errorf("Default = %s, want %s", r.Default().Name, GameMaster)
	}
}

func TestNewRegistry_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry("A", Persona{Name: "A"}, Persona{Name: "a"}); err == nil {
		t.Error("duplicate names: expected error")
	}
	if _, err := NewRegistry("B", Persona{Name: "A"}); err == nil {
		t.Error("missing default: expected error")
	}
	if _, err := NewRegistry("A", Persona{}); err == nil {
		t.Error("empty name: expected error")
	}
}

func TestMatchName(t *testing.T) {
	t.Parallel()

	names := []string{Frinny, GameMaster}
	tests := []struct {
		input   string
		want    string
		matched bool
	}{
		{"frinnie", Frinny, true},
		{"Game Master", GameMaster, true},
		{"gamemastr", GameMaster, true},
		{"zzz", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, _, ok := matchName(tt.input, names)
		if ok != tt.matched || got != tt.want {
			t.Errorf("matchName(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.matched)
		}
	}
}
