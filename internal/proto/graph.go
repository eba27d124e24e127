package proto

// MessageGroup is a maximal set of messages that reference each other
// (directly or transitively) within one package — protobuf requires
// mutually-recursive messages to be declared in the same file.
type MessageGroup struct {
	Messages []*Message
}

// GetUsedTypes is the union of every member message's used types.
func (g MessageGroup) GetUsedTypes() map[int32]struct{} {
	used := make(map[int32]struct{})
	for _, m := range g.Messages {
		for _, idx := range m.GetUsedTypes() {
			used[idx] = struct{}{}
		}
	}
	return used
}

// GetContainedTypes is the union of every member message's contained types.
func (g MessageGroup) GetContainedTypes() map[int32]struct{} {
	contained := make(map[int32]struct{})
	for _, m := range g.Messages {
		for _, idx := range m.GetContainedTypes() {
			contained[idx] = struct{}{}
		}
	}
	return contained
}

// GetPrimary picks the file-naming representative of the group: the sole
// member for a singleton group, otherwise whichever member is referenced
// most often by its group-mates (ties break toward the member listed first
// in g.Messages).
func (g MessageGroup) GetPrimary() *Message {
	if len(g.Messages) == 1 {
		return g.Messages[0]
	}

	contained := g.GetContainedTypes()
	counts := make(map[int32]int)
	for _, m := range g.Messages {
		for _, idx := range m.GetUsedTypes() {
			if _, ok := contained[idx]; ok {
				counts[idx]++
			}
		}
	}

	var bestIdx int32
	bestCount := -1
	for _, m := range g.Messages {
		if c, ok := counts[m.TypeIndex]; ok && c > bestCount {
			bestCount = c
			bestIdx = m.TypeIndex
		}
	}
	if bestCount < 0 {
		return g.Messages[0]
	}
	for _, m := range g.Messages {
		if m.TypeIndex == bestIdx {
			return m
		}
	}
	return g.Messages[0]
}

// messagesToMessageGroups partitions messages into message groups using
// Tarjan's strongly-connected-components algorithm over the directed graph
// where an edge A->B exists whenever A references B's type index (and B is
// itself one of the messages being partitioned — a reference to a type
// outside this set is an import, not a cycle edge).
func messagesToMessageGroups(messages []*Message) []MessageGroup {
	n := len(messages)
	indexOf := make(map[int32]int, n)
	for i, m := range messages {
		indexOf[m.TypeIndex] = i
	}

	adj := make([][]int, n)
	for i, m := range messages {
		for _, used := range m.GetUsedTypes() {
			if j, ok := indexOf[used]; ok {
				adj[i] = append(adj[i], j)
			}
		}
	}

	sccs := tarjanSCC(n, adj)

	groups := make([]MessageGroup, 0, len(sccs))
	for _, component := range sccs {
		members := make([]*Message, len(component))
		for i, nodeIdx := range component {
			members[i] = messages[nodeIdx]
		}
		groups = append(groups, MessageGroup{Messages: members})
	}
	return groups
}

// tarjanSCC partitions the n nodes of adj (an adjacency list over node
// indices [0,n)) into strongly-connected components, returned innermost
// (most deeply nested on the recursion stack) component first, matching the
// order petgraph::algo::tarjan_scc produces.
func tarjanSCC(n int, adj [][]int) [][]int {
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	visited := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var stack []int
	var components [][]int
	nextIndex := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = nextIndex
		lowlink[v] = nextIndex
		nextIndex++
		stack = append(stack, v)
		onStack[v] = true
		visited[v] = true

		for _, w := range adj[v] {
			if !visited[w] {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var component []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for v := 0; v < n; v++ {
		if !visited[v] {
			strongconnect(v)
		}
	}
	return components
}
