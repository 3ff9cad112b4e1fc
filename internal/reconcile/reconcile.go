// Package reconcile derives bundle-group state from a live cart snapshot and
// computes the corrective mutations for orphaned add-on lines. Grouping is
// reconstructed purely from the tracking properties echoed on each line;
// there is no server-side join.
package reconcile

import (
	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/model"
)

// GroupState is the per-group verdict of one evaluation pass.
type GroupState int

const (
	// StateIntact means the group's main line is still present.
	StateIntact GroupState = iota

	// StateOrphaned means the main line is gone, add-on lines remain, and at
	// least one of them carries a true cascade flag. The whole group must be
	// removed.
	StateOrphaned

	// StateIgnorable means the main line is gone but no add-on asked for
	// cascade removal. The remaining lines stay in the cart.
	StateIgnorable
)

func (s GroupState) String() string {
	switch s {
	case StateIntact:
		return "intact"
	case StateOrphaned:
		return "orphaned"
	case StateIgnorable:
		return "ignorable"
	default:
		return "unknown"
	}
}

// Group is one bundle group reconstructed from cart line properties.
type Group struct {
	ID          string
	MainPresent bool
	Cascade     bool // true if any addon line in the group carries the flag
	AddonLines  []cart.Line
}

// State computes the group's verdict for this pass.
func (g *Group) State() GroupState {
	if g.MainPresent {
		return StateIntact
	}
	if len(g.AddonLines) > 0 && g.Cascade {
		return StateOrphaned
	}
	return StateIgnorable
}

// PartitionGroups reconstructs bundle groups from a cart snapshot.
// Lines without a group id (everything the host theme added on its own)
// are skipped entirely.
func PartitionGroups(lines []cart.Line) map[string]*Group {
	groups := make(map[string]*Group)

	for _, line := range lines {
		groupID := model.GroupIDOf(line.Properties)
		if groupID == "" {
			continue
		}

		g, ok := groups[groupID]
		if !ok {
			g = &Group{ID: groupID}
			groups[groupID] = g
		}

		switch model.RoleOf(line.Properties) {
		case model.RoleMain:
			g.MainPresent = true
		case model.RoleAddon:
			g.AddonLines = append(g.AddonLines, line)
			if model.CascadeOf(line.Properties) {
				g.Cascade = true
			}
		}
	}
	return groups
}

// CollectOrphans returns every add-on line belonging to an orphaned group.
func CollectOrphans(snapshot *cart.Cart) []cart.Line {
	var orphans []cart.Line
	for _, g := range PartitionGroups(snapshot.Items) {
		if g.State() == StateOrphaned {
			orphans = append(orphans, g.AddonLines...)
		}
	}
	return orphans
}

// OrphanUpdates builds the batched quantity-zeroing update for the collected
// orphan lines, keyed by the cart service's per-line key. Never keyed by
// position: indexes shift across updates.
func OrphanUpdates(orphans []cart.Line) map[string]int {
	if len(orphans) == 0 {
		return nil
	}
	updates := make(map[string]int, len(orphans))
	for _, line := range orphans {
		if line.Key != "" {
			updates[line.Key] = 0
		}
	}
	return updates
}
