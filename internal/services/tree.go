package services

import (
	"context"

	"github.com/gofrs/uuid"
)

// childLister is the slice of the task repository the traversal needs.
type childLister interface {
	ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error)
}

// collectDescendants walks the subtree below rootID with an explicit stack
// and returns the ids in depth-first pre-order, siblings in creation order.
// rootID itself is not included. A visited set keeps corrupted parent links
// from looping forever.
func collectDescendants(ctx context.Context, tasks childLister, rootID uuid.UUID) ([]uuid.UUID, error) {
	descendants := []uuid.UUID{}
	visited := map[uuid.UUID]struct{}{rootID: {}}
	stack := []uuid.UUID{rootID}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current != rootID {
			descendants = append(descendants, current)
		}

		children, err := tasks.ChildIDs(ctx, current)
		if err != nil {
			return nil, err
		}
		// Push in reverse so the oldest sibling is popped first.
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			stack = append(stack, child)
		}
	}
	return descendants, nil
}
