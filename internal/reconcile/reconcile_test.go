package reconcile

import (
	"testing"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/model"
)

func addonLine(key, groupID string, cascade bool) cart.Line {
	return cart.Line{
		ID:         222,
		Key:        key,
		Quantity:   1,
		Properties: model.AddonProperties(groupID, "bundle-1", 111, cascade),
	}
}

func mainLine(key, groupID string) cart.Line {
	return cart.Line{
		ID:         111,
		Key:        key,
		Quantity:   1,
		Properties: model.MainProperties(groupID, "bundle-1"),
	}
}

func TestPartitionGroups_SkipsUntaggedLines(t *testing.T) {
	lines := []cart.Line{
		{ID: 999, Key: "theme-line", Quantity: 3},
		mainLine("m1", "bg_1"),
		addonLine("a1", "bg_1", true),
	}

	groups := PartitionGroups(lines)

	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	g := groups["bg_1"]
	if g == nil || !g.MainPresent || len(g.AddonLines) != 1 {
		t.Errorf("group = %+v, want main present with one addon", g)
	}
}

func TestGroupState(t *testing.T) {
	tests := []struct {
		name  string
		group Group
		want  GroupState
	}{
		{"main present", Group{MainPresent: true, AddonLines: []cart.Line{{}}}, StateIntact},
		{"main present no addons", Group{MainPresent: true}, StateIntact},
		{"orphaned with cascade", Group{Cascade: true, AddonLines: []cart.Line{{}}}, StateOrphaned},
		{"main gone cascade false", Group{AddonLines: []cart.Line{{}}}, StateIgnorable},
		{"empty group", Group{}, StateIgnorable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.group.State(); got != tt.want {
				t.Errorf("State() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCollectOrphans_CascadeTrue(t *testing.T) {
	// Addon with cascade true and no main in its group: orphaned.
	// The intact group's addon must be left alone.
	snapshot := &cart.Cart{Items: []cart.Line{
		addonLine("orphan-1", "bg_1", true),
		mainLine("m2", "bg_2"),
		addonLine("kept-1", "bg_2", true),
	}}

	orphans := CollectOrphans(snapshot)

	if len(orphans) != 1 {
		t.Fatalf("orphans = %d, want 1", len(orphans))
	}
	if orphans[0].Key != "orphan-1" {
		t.Errorf("orphan key = %s, want orphan-1", orphans[0].Key)
	}

	updates := OrphanUpdates(orphans)
	if len(updates) != 1 || updates["orphan-1"] != 0 {
		t.Errorf("updates = %v, want orphan-1 → 0 and none other", updates)
	}
}

func TestCollectOrphans_CascadeFalse(t *testing.T) {
	snapshot := &cart.Cart{Items: []cart.Line{
		addonLine("a1", "bg_1", false),
	}}

	if orphans := CollectOrphans(snapshot); len(orphans) != 0 {
		t.Errorf("orphans = %d, want 0 for cascade-false group", len(orphans))
	}
}

func TestCollectOrphans_MixedCascadeInGroup(t *testing.T) {
	// One true flag anywhere in the group orphans the whole group.
	snapshot := &cart.Cart{Items: []cart.Line{
		addonLine("a1", "bg_1", false),
		addonLine("a2", "bg_1", true),
	}}

	orphans := CollectOrphans(snapshot)
	if len(orphans) != 2 {
		t.Errorf("orphans = %d, want the whole group (2)", len(orphans))
	}
}

func TestOrphanUpdates_Empty(t *testing.T) {
	if updates := OrphanUpdates(nil); updates != nil {
		t.Errorf("updates = %v, want nil for no orphans", updates)
	}
}

func TestOrphanUpdates_SkipsKeylessLines(t *testing.T) {
	orphans := []cart.Line{
		{Key: "k1", Quantity: 1},
		{Key: "", Quantity: 1},
	}
	updates := OrphanUpdates(orphans)
	if len(updates) != 1 {
		t.Errorf("updates = %v, keyless line must be skipped", updates)
	}
}
