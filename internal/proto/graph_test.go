package proto

import "testing"

func int32p(v int32) *int32 { return &v }

func TestTarjanSCCCycle(t *testing.T) {
	// 0 -> 1 -> 0 (cycle), 1 -> 2 (no cycle back)
	adj := [][]int{
		0: {1},
		1: {0, 2},
		2: {},
	}
	sccs := tarjanSCC(3, adj)

	var sawCycle, sawSingleton bool
	for _, c := range sccs {
		switch len(c) {
		case 2:
			sawCycle = true
			has0, has1 := false, false
			for _, v := range c {
				if v == 0 {
					has0 = true
				}
				if v == 1 {
					has1 = true
				}
			}
			if !has0 || !has1 {
				t.Errorf("cycle component = %v, want to contain 0 and 1", c)
			}
		case 1:
			if c[0] == 2 {
				sawSingleton = true
			}
		}
	}
	if !sawCycle {
		t.Error("expected a 2-node SCC for the 0<->1 cycle")
	}
	if !sawSingleton {
		t.Error("expected a singleton SCC for node 2")
	}
}

func TestTarjanSCCAcyclic(t *testing.T) {
	adj := [][]int{
		0: {1},
		1: {2},
		2: {},
	}
	sccs := tarjanSCC(3, adj)
	if len(sccs) != 3 {
		t.Fatalf("got %d components, want 3 (fully acyclic)", len(sccs))
	}
	for _, c := range sccs {
		if len(c) != 1 {
			t.Errorf("component %v has %d members, want 1", c, len(c))
		}
	}
}

func TestMessagesToMessageGroupsPartitionsByReference(t *testing.T) {
	a := NewMessage("A", 1)
	b := NewMessage("B", 2)
	c := NewMessage("C", 3)

	// A <-> B is a cycle; C references A but nothing references C.
	a.AddField(NewField(nil, "b", "B", int32p(2), 1, nil))
	b.AddField(NewField(nil, "a", "A", int32p(1), 1, nil))
	c.AddField(NewField(nil, "a", "A", int32p(1), 1, nil))

	groups := messagesToMessageGroups([]*Message{a, b, c})

	var foundCycleGroup, foundSingletonC bool
	for _, g := range groups {
		if len(g.Messages) == 2 {
			foundCycleGroup = true
		}
		if len(g.Messages) == 1 && g.Messages[0].TypeIndex == 3 {
			foundSingletonC = true
		}
	}
	if !foundCycleGroup {
		t.Error("expected A and B to be grouped together (mutual reference)")
	}
	if !foundSingletonC {
		t.Error("expected C to be its own group (no back-reference)")
	}
}

func TestMessageGroupGetPrimarySingleton(t *testing.T) {
	m := NewMessage("Solo", 1)
	g := MessageGroup{Messages: []*Message{m}}
	if got := g.GetPrimary(); got != m {
		t.Errorf("GetPrimary() on singleton = %v, want %v", got, m)
	}
}

func TestMessageGroupGetPrimaryPicksMostReferenced(t *testing.T) {
	a := NewMessage("A", 1)
	b := NewMessage("B", 2)
	c := NewMessage("C", 3)

	// B and C both reference A; nothing references B or C (the group is
	// built directly rather than via Tarjan, so it need not be one SCC).
	b.AddField(NewField(nil, "a", "A", int32p(1), 1, nil))
	c.AddField(NewField(nil, "a", "A", int32p(1), 1, nil))

	g := MessageGroup{Messages: []*Message{a, b, c}}
	if got := g.GetPrimary(); got != a {
		t.Errorf("GetPrimary() = %v, want A (referenced by both B and C)", got.Name)
	}
}
