package hooks

import (
	"fmt"

	"github.com/gyaneshwarpardhi/switchrelay/internal/condition"
	"github.com/gyaneshwarpardhi/switchrelay/internal/config"
)

// ParamValidator checks action params at build time.
type ParamValidator interface {
	ValidateParams(actionType string, params map[string]interface{}) error
}

// Build constructs a Graph from the configured hooks. Disabled hooks are skipped.
// Expressions are compiled here so evaluation never parses.
// A nil validator skips action param checks.
func Build(hooks []config.Hook, v ParamValidator) (*Graph, error) {
	g := NewGraph()
	for _, h := range hooks {
		if !h.Enabled {
			continue
		}
		g.AddNode(NewHookNode(h.ID, h.Description, h.Actions, h.Serials))
		if err := buildChildren(g, h.ID, h.Children, v); err != nil {
			return nil, fmt.Errorf("hook %s: %w", h.ID, err)
		}
	}
	return g, nil
}

func buildChildren(g *Graph, parentID string, refs []config.NodeRef, v ParamValidator) error {
	for _, ref := range refs {
		switch {
		case ref.Condition != nil:
			c := ref.Condition
			ast, err := condition.Parse(c.Expression)
			if err != nil {
				return fmt.Errorf("condition %s: parse %q: %w", c.ID, c.Expression, err)
			}
			cn := NewConditionNode(c.ID, ast)
			g.AddNode(cn)
			g.AddEdge(parentID, cn)
			if err := buildChildren(g, c.ID, c.Children, v); err != nil {
				return fmt.Errorf("condition %s: %w", c.ID, err)
			}
		case ref.Action != nil:
			a := ref.Action
			if v != nil {
				if err := v.ValidateParams(a.Type, a.Params); err != nil {
					return fmt.Errorf("action %s: %w", a.ID, err)
				}
			}
			an := NewActionNode(a.ID, a.Type, a.Params)
			g.AddNode(an)
			g.AddEdge(parentID, an)
		}
	}
	return nil
}
