// Package hierarchy implements the tree algorithms of the category engine
// over a flat, id-keyed node store: ancestry walks, level calculation,
// reparent validation, descendant enumeration and breadcrumbs.
//
// Every walk is iterative and tracks visited ids, so corrupted parent links
// (cycles left behind by earlier bugs or manual edits) surface as
// CYCLE_DETECTED instead of looping forever. Nothing here writes.
package hierarchy

import (
	"fmt"
	"strings"

	apperrors "stockroom/internal/errors"
)

// MaxLevel is the deepest allowed level: roots are level 0, so the tree has
// at most three tiers.
const MaxLevel = 2

// walkCeiling bounds ancestry walks independently of the visited set.
const walkCeiling = 10 * MaxLevel

// PathSeparator joins breadcrumb names for display.
const PathSeparator = " > "

// Node is the part of a category the algorithms need.
type Node struct {
	ID        string
	ParentID  *string
	Name      string
	Level     int
	SortOrder int
	Active    bool
}

// Source resolves nodes by id and children by parent id. Implementations
// return an error matching ErrCategoryNotFound for unknown ids.
type Source interface {
	Node(id string) (Node, error)
	Children(parentIDs []string) ([]Node, error)
}

// Ancestors returns the ancestor chain of n, root first, excluding n.
func Ancestors(src Source, n Node) ([]Node, error) {
	var chain []Node
	visited := map[string]struct{}{n.ID: {}}

	for parentID := n.ParentID; parentID != nil; {
		if len(chain) >= walkCeiling {
			return nil, cycleError(n.ID, "", fmt.Sprintf("ancestry of %s exceeds %d steps", n.ID, walkCeiling))
		}
		if _, seen := visited[*parentID]; seen {
			return nil, cycleError(n.ID, *parentID, fmt.Sprintf("category %s appears twice in the ancestry of %s", *parentID, n.ID))
		}
		visited[*parentID] = struct{}{}

		parent, err := src.Node(*parentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		parentID = parent.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ComputeLevel returns the depth of n derived from its actual ancestry.
func ComputeLevel(src Source, n Node) (int, error) {
	chain, err := Ancestors(src, n)
	if err != nil {
		return 0, err
	}
	if len(chain) > MaxLevel {
		return 0, depthError(fmt.Sprintf("category %s sits at level %d, the maximum is %d", n.ID, len(chain), MaxLevel))
	}
	return len(chain), nil
}

// LevelUnder returns the level a new child of parent would get. A nil
// parent means a root. The check runs against the target parent, before
// anything is written.
func LevelUnder(src Source, parent *Node) (int, error) {
	if parent == nil {
		return 0, nil
	}
	parentLevel, err := ComputeLevel(src, *parent)
	if err != nil {
		return 0, err
	}
	if parentLevel >= MaxLevel {
		return 0, depthError(fmt.Sprintf("%q is at level %d and cannot hold subcategories", parent.Name, parentLevel))
	}
	return parentLevel + 1, nil
}

// ValidateReparent checks that node may be placed under proposed and
// returns the node's new level. Rules, in order: self parent, proposed
// parent inside the node's ancestry walk (a descendant), proposed parent
// already at the deepest tier, and the node's own subtree still fitting
// below MaxLevel after the move.
func ValidateReparent(src Source, node, proposed Node) (int, error) {
	if proposed.ID == node.ID {
		return 0, apperrors.ErrSelfParentCategory
	}

	chain, err := Ancestors(src, proposed)
	if err != nil {
		return 0, err
	}
	for _, a := range chain {
		if a.ID == node.ID {
			return 0, cycleError(node.ID, proposed.ID,
				fmt.Sprintf("%q is a descendant of %q; placing it above would create a loop", proposed.Name, node.Name))
		}
	}

	parentLevel := len(chain)
	if parentLevel >= MaxLevel {
		return 0, depthError(fmt.Sprintf("%q is at level %d and cannot hold subcategories", proposed.Name, parentLevel))
	}

	newLevel := parentLevel + 1
	height, err := SubtreeHeight(src, node.ID)
	if err != nil {
		return 0, err
	}
	if newLevel+height > MaxLevel {
		return 0, depthError(fmt.Sprintf("moving %q under %q would push its subcategories to level %d", node.Name, proposed.Name, newLevel+height))
	}
	return newLevel, nil
}

// Walk visits every descendant of rootID breadth-first with its depth
// relative to the root (children are depth 1). Ids already visited are
// skipped silently, so cyclic data terminates.
func Walk(src Source, rootID string, fn func(n Node, depth int) error) error {
	visited := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}

	for depth := 1; len(frontier) > 0; depth++ {
		children, err := src.Children(frontier)
		if err != nil {
			return err
		}
		next := make([]string, 0, len(children))
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			if err := fn(child, depth); err != nil {
				return err
			}
			next = append(next, child.ID)
		}
		frontier = next
	}
	return nil
}

// Descendants returns the ids of every node below rootID, breadth-first.
func Descendants(src Source, rootID string) ([]string, error) {
	var ids []string
	err := Walk(src, rootID, func(n Node, _ int) error {
		ids = append(ids, n.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SubtreeHeight returns how many tiers hang below rootID (0 for a leaf).
func SubtreeHeight(src Source, rootID string) (int, error) {
	height := 0
	err := Walk(src, rootID, func(_ Node, depth int) error {
		if depth > height {
			height = depth
		}
		return nil
	})
	return height, err
}

// Contains reports whether id is in ids.
func Contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Breadcrumb returns the names from the root down to n. Display only.
func Breadcrumb(src Source, n Node) ([]string, error) {
	chain, err := Ancestors(src, n)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(chain)+1)
	for _, a := range chain {
		names = append(names, a.Name)
	}
	return append(names, n.Name), nil
}

// Path joins breadcrumb names, e.g. "Engine > Belts > Timing".
func Path(names []string) string {
	return strings.Join(names, PathSeparator)
}

func cycleError(categoryID, repeatedID, message string) *apperrors.AppError {
	details := map[string]string{"category_id": categoryID}
	if repeatedID != "" {
		details["repeated_id"] = repeatedID
	}
	return apperrors.WithDetails(apperrors.ErrCycleDetected, message, details)
}

func depthError(message string) *apperrors.AppError {
	return apperrors.WithDetails(apperrors.ErrDepthExceeded, message, map[string]int{"max_level": MaxLevel})
}
