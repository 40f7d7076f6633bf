package hierarchy

import (
	"fmt"
	"sort"

	apperrors "stockroom/internal/errors"
)

// MemorySource is a Source over a snapshot of the whole table. It backs the
// tree view and integrity checks, which need every node anyway, and tests.
type MemorySource struct {
	nodes    map[string]Node
	children map[string][]string
}

// NewMemorySource indexes nodes by id and by parent id.
func NewMemorySource(nodes []Node) *MemorySource {
	m := &MemorySource{
		nodes:    make(map[string]Node, len(nodes)),
		children: make(map[string][]string),
	}
	for _, n := range nodes {
		m.Put(n)
	}
	return m
}

// Put inserts or replaces a node, keeping the parent index current.
func (m *MemorySource) Put(n Node) {
	if old, ok := m.nodes[n.ID]; ok && old.ParentID != nil {
		m.children[*old.ParentID] = removeID(m.children[*old.ParentID], n.ID)
	}
	m.nodes[n.ID] = n
	if n.ParentID != nil {
		m.children[*n.ParentID] = append(m.children[*n.ParentID], n.ID)
	}
}

// Node implements Source.
func (m *MemorySource) Node(id string) (Node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, apperrors.WithMessage(apperrors.ErrCategoryNotFound, fmt.Sprintf("category %s not found", id))
	}
	return n, nil
}

// Children implements Source. Siblings come back in display order.
func (m *MemorySource) Children(parentIDs []string) ([]Node, error) {
	var out []Node
	for _, pid := range parentIDs {
		for _, id := range m.children[pid] {
			out = append(out, m.nodes[id])
		}
	}
	SortSiblings(out)
	return out, nil
}

// Roots returns every node without a parent, in display order.
func (m *MemorySource) Roots() []Node {
	var roots []Node
	for _, n := range m.nodes {
		if n.ParentID == nil {
			roots = append(roots, n)
		}
	}
	SortSiblings(roots)
	return roots
}

// All returns every node ordered by id.
func (m *MemorySource) All() []Node {
	all := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Len returns the number of nodes.
func (m *MemorySource) Len() int {
	return len(m.nodes)
}

// SortSiblings orders nodes by display order, then name, then id.
func SortSiblings(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID < nodes[j].ID
	})
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
