// Package nestedset encodes a forest as nested-set intervals so that
// ancestor/descendant questions become integer comparisons.
//
// Every node receives a (Left, Right) pair from a depth-first walk: Left when
// the walk enters the node and Right when it leaves. A node's descendants are
// exactly the nodes whose interval lies inside its own. Numbering is global
// across the forest, so intervals of different trees never overlap.
package nestedset

import (
	"sort"

	"github.com/zeebo/errs"
)

// Error is the error class for nested-set failures.
var Error = errs.Class("nestedset")

// Bounds is the nested-set interval of one node.
type Bounds struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Valid reports whether the bounds were assigned.
func (b Bounds) Valid() bool {
	return b.Left > 0 && b.Right > b.Left
}

// Contains reports whether inner lies within outer. A node contains itself.
func Contains(outer, inner Bounds) bool {
	if !outer.Valid() || !inner.Valid() {
		return false
	}
	return inner.Left >= outer.Left && inner.Right <= outer.Right
}

// Node is the structural input to Renumber. SortKey orders siblings; ties
// fall back to ID so numbering is deterministic.
type Node struct {
	ID       string
	ParentID string
	SortKey  string
}

// Position is the result of numbering one node.
type Position struct {
	Bounds
	Depth int
}

// Renumber assigns bounds to every node. Nodes whose ParentID is empty are
// roots. A parent that does not exist or a cycle is an error.
func Renumber(nodes []Node) (map[string]Position, error) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, Error.New("node without id")
		}
		if _, dup := byID[n.ID]; dup {
			return nil, Error.New("duplicate node %q", n.ID)
		}
		byID[n.ID] = n
	}

	children := make(map[string][]Node, len(nodes))
	var roots []Node
	for _, n := range nodes {
		if n.ParentID == "" {
			roots = append(roots, n)
			continue
		}
		if _, ok := byID[n.ParentID]; !ok {
			return nil, Error.New("node %q references missing parent %q", n.ID, n.ParentID)
		}
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	sortNodes(roots)
	for id := range children {
		sortNodes(children[id])
	}

	out := make(map[string]Position, len(nodes))
	counter := 0
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		counter++
		left := counter
		for _, child := range children[n.ID] {
			walk(child, depth+1)
		}
		counter++
		out[n.ID] = Position{Bounds: Bounds{Left: left, Right: counter}, Depth: depth}
	}
	for _, root := range roots {
		walk(root, 0)
	}

	// nodes never reached from a root sit on a cycle
	if len(out) != len(nodes) {
		for _, n := range nodes {
			if _, ok := out[n.ID]; !ok {
				return nil, Error.New("node %q is part of a cycle", n.ID)
			}
		}
	}
	return out, nil
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].SortKey != nodes[j].SortKey {
			return nodes[i].SortKey < nodes[j].SortKey
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// Ancestors returns the indexes of the entries in all whose bounds contain
// target, outermost first. The target itself is included when present.
func Ancestors(all []Bounds, target Bounds) []int {
	var idx []int
	for i, b := range all {
		if Contains(b, target) {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(i, j int) bool { return all[idx[i]].Left < all[idx[j]].Left })
	return idx
}

// IsAncestor reports whether candidate is a strict ancestor of node.
func IsAncestor(candidate, node Bounds) bool {
	return Contains(candidate, node) && candidate != node
}
