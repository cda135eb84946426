// Package ruleslookup provides the Pathfinder 2E rules tools.
//
//   - "pf2e_rules_lookup" searches the Archives of Nethys through Tavily and
//     falls back to an embedded quick-reference table.
//   - "pf2e_get_rule" returns one entry of that table by ID.
//
// All handlers are safe for concurrent use.
package ruleslookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Monterroso/Frinny-Backend/internal/mcp/tools"
	"github.com/Monterroso/Frinny-Backend/pkg/types"
)

const localLimit = 5

// SuggestedTopics is offered to the model when a search comes back empty.
var SuggestedTopics = []string{"Basic rules", "Combat", "Skills", "Spells", "Character creation"}

type lookupArgs struct {
	Query string `json:"query"`
}

type getRuleArgs struct {
	ID string `json:"id"`
}

// LookupResult is the JSON document returned by pf2e_rules_lookup.
type LookupResult struct {
	Query           string         `json:"query"`
	Found           bool           `json:"found"`
	Results         []SearchResult `json:"results"`
	SuggestedTopics []string       `json:"suggested_topics"`
	LocalResults    []Rule         `json:"local_results,omitempty"`
	Message         string         `json:"message,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func lookupHandler(client *Client) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var a lookupArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("ruleslookup: pf2e_rules_lookup: parse arguments: %w", err)
		}
		if a.Query == "" {
			return "", errors.New("ruleslookup: pf2e_rules_lookup: query must not be empty")
		}

		res := Lookup(ctx, client, a.Query)
		out, err := json.Marshal(res)
		if err != nil {
			return "", fmt.Errorf("ruleslookup: pf2e_rules_lookup: encode result: %w", err)
		}
		return string(out), nil
	}
}

// Lookup runs a remote search for query and fills in local matches whenever
// the remote side is unavailable or finds nothing.
func Lookup(ctx context.Context, client *Client, query string) LookupResult {
	res := LookupResult{Query: query, Results: []SearchResult{}, SuggestedTopics: []string{}}

	hits, err := client.Search(ctx, query)
	switch {
	case errors.Is(err, ErrNoAPIKey):
		res.Message = "Search service is not available. Please contact the administrator."
		res.Error = ErrNoAPIKey.Error()
	case err != nil:
		slog.Warn("rules search failed", "query", query, "err", err)
		res.Message = fmt.Sprintf("Error occurred during search: %v", err)
		res.Error = err.Error()
	default:
		res.Results = hits
		res.Found = len(hits) > 0
	}

	if !res.Found {
		res.SuggestedTopics = SuggestedTopics
		res.LocalResults = searchLocal(query, localLimit)
	}
	return res
}

func getRuleHandler(_ context.Context, args string) (string, error) {
	var a getRuleArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("ruleslookup: pf2e_get_rule: parse arguments: %w", err)
	}
	if a.ID == "" {
		return "", errors.New("ruleslookup: pf2e_get_rule: id must not be empty")
	}
	rule, ok := rulesByID[a.ID]
	if !ok {
		return "", fmt.Errorf("ruleslookup: pf2e_get_rule: rule %q not found", a.ID)
	}
	out, err := json.Marshal(rule)
	if err != nil {
		return "", fmt.Errorf("ruleslookup: pf2e_get_rule: encode result: %w", err)
	}
	return string(out), nil
}

// Tools returns the rules tools. client may be nil or unconfigured; lookups
// then answer from the embedded table only.
func Tools(client *Client) []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        "pf2e_rules_lookup",
				Description: "Look up Pathfinder 2E rules on the Archives of Nethys. Use this for conditions, actions, spells, feats and any rules question. Returns titles, excerpts and source URLs.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "The rules question or keyword, e.g. \"how does frightened work\".",
						},
					},
					"required": []string{"query"},
				},
				MaxDurationMs: 20000,
			},
			Handler: lookupHandler(client),
		},
		{
			Definition: types.ToolDefinition{
				Name:        "pf2e_get_rule",
				Description: "Return one entry of the built-in Pathfinder 2E quick reference by ID. IDs appear in the local_results of pf2e_rules_lookup.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{
							"type":        "string",
							"description": "Rule ID, e.g. condition-frightened or combat-map.",
						},
					},
					"required": []string{"id"},
				},
				MaxDurationMs: 100,
			},
			Handler: getRuleHandler,
		},
	}
}
