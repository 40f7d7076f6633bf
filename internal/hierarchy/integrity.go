package hierarchy

import (
	"errors"
	"sort"

	apperrors "stockroom/internal/errors"
)

// LevelDrift is a node whose stored level disagrees with its ancestry.
type LevelDrift struct {
	ID     string `json:"id"`
	Stored int    `json:"stored"`
	Actual int    `json:"actual"`
}

// Report lists the structural problems found in a tree snapshot.
type Report struct {
	Nodes           int          `json:"nodes"`
	Cycles          []string     `json:"cycles"`
	DanglingParents []string     `json:"dangling_parents"`
	TooDeep         []string     `json:"too_deep"`
	LevelDrift      []LevelDrift `json:"level_drift"`
}

// Healthy reports whether the snapshot satisfies every tree invariant.
func (r Report) Healthy() bool {
	return len(r.Cycles) == 0 && len(r.DanglingParents) == 0 &&
		len(r.TooDeep) == 0 && len(r.LevelDrift) == 0
}

// Inspect checks acyclicity, parent existence, the depth cap and stored
// levels for every node in src.
func Inspect(src *MemorySource) Report {
	report := Report{
		Nodes:           src.Len(),
		Cycles:          []string{},
		DanglingParents: []string{},
		TooDeep:         []string{},
		LevelDrift:      []LevelDrift{},
	}

	for _, n := range src.All() {
		if n.ParentID != nil {
			if _, err := src.Node(*n.ParentID); err != nil {
				report.DanglingParents = append(report.DanglingParents, n.ID)
				continue
			}
		}

		chain, err := Ancestors(src, n)
		switch {
		case errors.Is(err, apperrors.ErrCycleDetected):
			report.Cycles = append(report.Cycles, n.ID)
			continue
		case err != nil:
			// An ancestor has a dangling parent; it is reported on its own.
			continue
		}

		actual := len(chain)
		if actual > MaxLevel {
			report.TooDeep = append(report.TooDeep, n.ID)
		}
		if n.Level != actual {
			report.LevelDrift = append(report.LevelDrift, LevelDrift{ID: n.ID, Stored: n.Level, Actual: actual})
		}
	}
	return report
}

// Repair reasons.
const (
	ReasonDanglingParent = "dangling_parent"
	ReasonCycle          = "cycle"
	ReasonTooDeep        = "too_deep"
	ReasonLevelDrift     = "level_drift"
)

// Fix is one row change computed by PlanRepair.
type Fix struct {
	ID          string  `json:"id"`
	OldParentID *string `json:"old_parent_id"`
	NewParentID *string `json:"new_parent_id"`
	OldLevel    int     `json:"old_level"`
	NewLevel    int     `json:"new_level"`
	Reason      string  `json:"reason"`
}

// ParentChanged reports whether the fix rewrites the parent link.
func (f Fix) ParentChanged() bool {
	return !sameParent(f.OldParentID, f.NewParentID)
}

// PlanRepair computes the changes that bring nodes back within the tree
// invariants: dangling parents and cycle members are detached to root,
// nodes below MaxLevel are re-hung under their deepest allowed ancestor,
// and every level is recomputed from the repaired ancestry.
func PlanRepair(nodes []Node) []Fix {
	original := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		original[n.ID] = n
	}
	work := NewMemorySource(nodes)
	reasons := make(map[string]string)

	for _, n := range work.All() {
		if n.ParentID == nil {
			continue
		}
		if _, err := work.Node(*n.ParentID); err != nil {
			n.ParentID = nil
			work.Put(n)
			reasons[n.ID] = ReasonDanglingParent
		}
	}

	for _, snapshot := range work.All() {
		n, _ := work.Node(snapshot.ID)
		if onCycle(work, n) {
			n.ParentID = nil
			work.Put(n)
			reasons[n.ID] = ReasonCycle
		}
	}

	for changed := true; changed; {
		changed = false
		for _, snapshot := range work.All() {
			n, _ := work.Node(snapshot.ID)
			chain, ok := parentChain(work, n)
			if !ok || len(chain) <= MaxLevel {
				continue
			}
			newParent := chain[MaxLevel-1].ID
			n.ParentID = &newParent
			work.Put(n)
			reasons[n.ID] = ReasonTooDeep
			changed = true
		}
	}

	var fixes []Fix
	for _, n := range work.All() {
		chain, _ := parentChain(work, n)
		level := len(chain)
		before := original[n.ID]
		if sameParent(before.ParentID, n.ParentID) && before.Level == level {
			continue
		}
		reason, ok := reasons[n.ID]
		if !ok {
			reason = ReasonLevelDrift
		}
		fixes = append(fixes, Fix{
			ID:          n.ID,
			OldParentID: before.ParentID,
			NewParentID: n.ParentID,
			OldLevel:    before.Level,
			NewLevel:    level,
			Reason:      reason,
		})
	}
	sort.Slice(fixes, func(i, j int) bool { return fixes[i].ID < fixes[j].ID })
	return fixes
}

// onCycle reports whether following parents from n leads back to n.
// Nodes hanging below a loop are not members of it.
func onCycle(src *MemorySource, n Node) bool {
	seen := make(map[string]struct{})
	for cur := n.ParentID; cur != nil; {
		if *cur == n.ID {
			return true
		}
		if _, dup := seen[*cur]; dup {
			return false
		}
		seen[*cur] = struct{}{}
		p, err := src.Node(*cur)
		if err != nil {
			return false
		}
		cur = p.ParentID
	}
	return false
}

// parentChain is Ancestors without the step ceiling, for repair of chains
// longer than any legal tree.
func parentChain(src *MemorySource, n Node) ([]Node, bool) {
	var chain []Node
	seen := map[string]struct{}{n.ID: {}}
	for cur := n.ParentID; cur != nil; {
		if _, dup := seen[*cur]; dup {
			return nil, false
		}
		seen[*cur] = struct{}{}
		p, err := src.Node(*cur)
		if err != nil {
			return nil, false
		}
		chain = append(chain, p)
		cur = p.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, true
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
