package graph

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

const (
	leftSide  = 0
	rightSide = 1
)

// FindLowestCommonAncestor walks parent edges from both commits
// breadth-first, one step per side in turn. A commit reached from both
// sides becomes a candidate and its ancestry is not explored further. The
// candidates are then verified: a candidate that is an ancestor of another
// candidate is dropped. When several candidates survive, the first one
// discovered is returned, the left side being expanded first at every step.
func (d *Database) FindLowestCommonAncestor(ctx context.Context, left, right model.ObjectId) (model.ObjectId, bool, error) {
	var (
		seen       = [2]map[model.ObjectId]bool{{}, {}}
		queues     [2][]model.ObjectId
		stopped    = map[model.ObjectId]bool{}
		candidates []model.ObjectId
	)

	visit := func(side int, id model.ObjectId) {
		if seen[side][id] {
			return
		}
		seen[side][id] = true
		if seen[1-side][id] {
			if !stopped[id] {
				stopped[id] = true
				candidates = append(candidates, id)
			}
			return
		}
		queues[side] = append(queues[side], id)
	}

	visit(leftSide, left)
	visit(rightSide, right)

	for len(queues[leftSide]) > 0 || len(queues[rightSide]) > 0 {
		for side := leftSide; side <= rightSide; side++ {
			if len(queues[side]) == 0 {
				continue
			}
			id := queues[side][0]
			queues[side] = queues[side][1:]
			if stopped[id] {
				continue
			}
			parents, _, err := d.parents(ctx, id)
			if err != nil {
				return model.NullID, false, err
			}
			for _, p := range parents {
				visit(side, p)
			}
		}
	}

	if len(candidates) == 0 {
		return model.NullID, false, nil
	}

	verified, err := d.verifyAncestors(ctx, candidates)
	if err != nil {
		return model.NullID, false, err
	}
	d.log.WithFields(logrus.Fields{
		"left":       left.Short(8),
		"right":      right.Short(8),
		"candidates": len(candidates),
		"verified":   len(verified),
	}).Debug("lowest common ancestor")
	return verified[0], true, nil
}

// verifyAncestors drops every candidate reachable from another candidate.
// Order is preserved.
func (d *Database) verifyAncestors(ctx context.Context, candidates []model.ObjectId) ([]model.ObjectId, error) {
	if len(candidates) == 1 {
		return candidates, nil
	}
	isCandidate := make(map[model.ObjectId]bool, len(candidates))
	for _, c := range candidates {
		isCandidate[c] = true
	}

	reachable := map[model.ObjectId]bool{}
	for _, c := range candidates {
		// ancestors of c that are candidates themselves are not lowest
		queue := []model.ObjectId{c}
		seen := map[model.ObjectId]bool{c: true}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			parents, _, err := d.parents(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, p := range parents {
				if seen[p] {
					continue
				}
				seen[p] = true
				if isCandidate[p] {
					reachable[p] = true
				}
				queue = append(queue, p)
			}
		}
	}

	out := candidates[:0:0]
	for _, c := range candidates {
		if !reachable[c] {
			out = append(out, c)
		}
	}
	return out, nil
}
