package decisiontree

import (
	"context"
	"fmt"

	"github.com/fourkites/rca-engine/pkg/evidence"
)

// ActionRunner executes one node's action against whatever adapter set the
// caller wired in. Implementations run synchronously; the walker does not
// retry or schedule — that is the generative loop's job, not the
// deterministic one's.
type ActionRunner interface {
	RunAction(ctx context.Context, action Action) error
}

// ActionRunnerFunc adapts a plain function to ActionRunner.
type ActionRunnerFunc func(ctx context.Context, action Action) error

func (f ActionRunnerFunc) RunAction(ctx context.Context, action Action) error { return f(ctx, action) }

// Walker drives one Tree to completion: run the current node's action (if
// any), evaluate its decisions against the freshest evidence snapshot, and
// follow the first matching decision until a conclusion is reached or the
// tree runs out of path.
type Walker struct {
	Tree     Tree
	Runner   ActionRunner
	Snapshot func() []evidence.Evidence
}

// Run walks the tree from its root. It returns a nil Conclusion (with no
// error) if the walk reaches a node where no decision matches — the tree
// simply has nothing to conclude yet, which is not itself a failure.
func (w *Walker) Run(ctx context.Context) (*Conclusion, error) {
	if w.Tree.Root == "" {
		return nil, fmt.Errorf("decisiontree: tree %q has no root node", w.Tree.ID)
	}

	visited := make(map[string]bool, len(w.Tree.Nodes))
	nodeID := w.Tree.Root

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if visited[nodeID] {
			return nil, fmt.Errorf("decisiontree: tree %q: cycle detected at node %q", w.Tree.ID, nodeID)
		}
		visited[nodeID] = true

		node, ok := w.Tree.Nodes[nodeID]
		if !ok {
			return nil, fmt.Errorf("decisiontree: tree %q: unknown node %q", w.Tree.ID, nodeID)
		}

		if node.Action != nil && w.Runner != nil {
			if err := w.Runner.RunAction(ctx, *node.Action); err != nil {
				return nil, fmt.Errorf("decisiontree: tree %q: node %q action: %w", w.Tree.ID, nodeID, err)
			}
		}

		snapshot := w.Snapshot()
		var matched *Decision
		for i := range node.Decisions {
			if node.Decisions[i].Predicate.Matches(snapshot) {
				matched = &node.Decisions[i]
				break
			}
		}
		if matched == nil {
			return nil, nil
		}
		if matched.Conclusion != nil {
			c := *matched.Conclusion
			return &c, nil
		}
		if matched.NextNode == "" {
			return nil, fmt.Errorf("decisiontree: tree %q: node %q decision has neither next_node nor conclusion", w.Tree.ID, nodeID)
		}
		nodeID = matched.NextNode
	}
}
