package owlmon

import (
	"github.com/bits-and-blooms/bitset"
)

// Trim removes every state that cannot lie on an accepting run, i.e. a run
// visiting a final state infinitely often. A synthetic root with transitions
// to all initial states is added, the SCCs of the augmented graph are
// computed, SCCs that cannot reach an accepting cycle are discarded, and the
// automaton is restricted to the surviving states. Trimming an already
// trimmed automaton is a no-op.
func (a *LabelledAutomaton) Trim() {
	n := a.NumStates()
	root := n

	sccs := a.tarjanSCCs(root)

	sccOf := make([]int, n+1)
	for i := range sccOf {
		sccOf[i] = -1
	}
	for i, scc := range sccs {
		for _, v := range scc {
			sccOf[v] = i
		}
	}
	rootSCC := sccOf[root]

	// An SCC is intrinsically accepting when it carries a final state and can
	// be looped through: more than one state, or a single state with a
	// self-loop. A final singleton without a self-loop is spurious, a single
	// visit is not an infinite accepting path.
	accepting := make([]bool, len(sccs))
	for i, scc := range sccs {
		if i == rootSCC {
			continue
		}
		hasFinal := false
		for _, v := range scc {
			if a.IsFinal(v) {
				hasFinal = true
				break
			}
		}
		if !hasFinal {
			continue
		}
		if len(scc) > 1 || a.hasSelfLoop(scc[0]) {
			accepting[i] = true
		}
	}

	// Badness fixed point: a non-accepting SCC whose every outgoing edge
	// leads back into itself or into an already-bad SCC can never resume an
	// accepting run. Re-scans all SCCs each round; automaton sizes in this
	// domain keep that cheap.
	bad := make([]bool, len(sccs))
	for changed := true; changed; {
		changed = false
		for i, scc := range sccs {
			if i == rootSCC || accepting[i] || bad[i] {
				continue
			}
			escapes := false
			for _, v := range scc {
				for _, dsts := range a.delta[v] {
					for d, ok := dsts.NextSet(0); ok; d, ok = dsts.NextSet(d + 1) {
						j := sccOf[int(d)]
						if j != i && !bad[j] {
							escapes = true
							break
						}
					}
					if escapes {
						break
					}
				}
				if escapes {
					break
				}
			}
			if !escapes {
				bad[i] = true
				changed = true
			}
		}
	}

	good := bitset.New(uint(n))
	for i, scc := range sccs {
		if i == rootSCC || bad[i] {
			continue
		}
		for _, v := range scc {
			good.Set(uint(v))
		}
	}

	a.initial.InPlaceIntersection(good)
	a.final.InPlaceIntersection(good)
	for s := 0; s < n; s++ {
		if !good.Test(uint(s)) {
			a.delta[s] = nil
			continue
		}
		for sym, dsts := range a.delta[s] {
			dsts.InPlaceIntersection(good)
			if dsts.None() {
				delete(a.delta[s], sym)
			}
		}
		if len(a.delta[s]) == 0 {
			a.delta[s] = nil
		}
	}
}

func (a *LabelledAutomaton) hasSelfLoop(state int) bool {
	for _, dsts := range a.delta[state] {
		if dsts.Test(uint(state)) {
			return true
		}
	}
	return false
}

// successors returns the outgoing states of v in the augmented graph, in
// ascending order so that SCC emission is deterministic. The synthetic root
// steps to all declared initial states.
func (a *LabelledAutomaton) successors(v, root int) []int {
	if v == root {
		succ := make([]int, 0, a.initial.Count())
		for s, ok := a.initial.NextSet(0); ok; s, ok = a.initial.NextSet(s + 1) {
			succ = append(succ, int(s))
		}
		return succ
	}
	if len(a.delta[v]) == 0 {
		return nil
	}
	seen := bitset.New(uint(a.NumStates()))
	for _, dsts := range a.delta[v] {
		seen.InPlaceUnion(dsts)
	}
	succ := make([]int, 0, seen.Count())
	for s, ok := seen.NextSet(0); ok; s, ok = seen.NextSet(s + 1) {
		succ = append(succ, int(s))
	}
	return succ
}

type tarjanFrame struct {
	v    int
	succ []int
	next int
}

// tarjanSCCs runs Tarjan's algorithm from the synthetic root with an explicit
// work stack instead of recursion, keeping index assignment and SCC emission
// in the same post-order as the recursive formulation. Only states reachable
// from the root are assigned to an SCC.
func (a *LabelledAutomaton) tarjanSCCs(root int) [][]int {
	n := root + 1
	index := make([]int, n)
	lowlink := make([]int, n)
	for i := range index {
		index[i] = -1
	}
	onStack := bitset.New(uint(n))
	stack := make([]int, 0, n)
	sccs := make([][]int, 0)

	next := 0
	frames := make([]tarjanFrame, 0, n)

	push := func(v int) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack.Set(uint(v))
		frames = append(frames, tarjanFrame{v: v, succ: a.successors(v, root)})
	}

	push(root)
	for len(frames) > 0 {
		fr := &frames[len(frames)-1]
		if fr.next < len(fr.succ) {
			w := fr.succ[fr.next]
			fr.next++
			if index[w] < 0 {
				push(w)
			} else if onStack.Test(uint(w)) {
				if index[w] < lowlink[fr.v] {
					lowlink[fr.v] = index[w]
				}
			}
			continue
		}

		v := fr.v
		if lowlink[v] == index[v] {
			scc := make([]int, 0, 1)
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack.Clear(uint(w))
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}

		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := &frames[len(frames)-1]
			if lowlink[v] < lowlink[parent.v] {
				lowlink[parent.v] = lowlink[v]
			}
		}
	}

	return sccs
}
