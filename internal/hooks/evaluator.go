package hooks

import (
	"fmt"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// Match records a triggered action.
type Match struct {
	HookID string
	Node   *ActionNode
}

// Evaluate walks the graph depth-first for ev and returns the matched actions
// and the IDs of hooks that produced at least one. A failing condition prunes
// its branch; the first such error is returned alongside the matches.
func Evaluate(g *Graph, ev event.ConsoleEvent) ([]Match, []string, error) {
	ctx := NewEvalContext(ev)

	var matches []Match
	var hooksMatched []string

	for _, root := range g.Roots() {
		ok, err := root.Evaluate(ctx)
		if err != nil {
			ctx.Errors = append(ctx.Errors, fmt.Errorf("hook %s: %w", root.ID(), err))
			continue
		}
		if !ok {
			continue
		}
		actions := dfs(g, ctx, root.ID(), root.ID())
		if len(actions) > 0 {
			hooksMatched = append(hooksMatched, root.ID())
			matches = append(matches, actions...)
		}
	}

	var err error
	if len(ctx.Errors) > 0 {
		err = ctx.Errors[0]
	}
	return matches, hooksMatched, err
}

func dfs(g *Graph, ctx *EvalContext, parentID, hookID string) []Match {
	var results []Match
	for _, child := range g.Children(parentID) {
		ok, err := child.Evaluate(ctx)
		if err != nil {
			ctx.Errors = append(ctx.Errors, fmt.Errorf("node %s: %w", child.ID(), err))
			continue
		}
		if !ok {
			continue
		}
		if an, isAction := child.(*ActionNode); isAction {
			results = append(results, Match{HookID: hookID, Node: an})
			continue
		}
		results = append(results, dfs(g, ctx, child.ID(), hookID)...)
	}
	return results
}
