package owlmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lit(s string) Literal { return ParseLiteral(s) }

func sym(a *LabelledAutomaton, lits ...string) Symbol {
	parsed := make([]Literal, len(lits))
	for i, l := range lits {
		parsed[i] = lit(l)
	}
	return a.Alphabet().Intern(parsed)
}

func TestTrim(t *testing.T) {
	t.Run("selfLoopFinalSingletonRetained", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		a.SetInitial(s0, true)
		a.SetFinal(s0, true)
		a.AddTransition(s0, sym(a, "p"), s0)

		before := a.String()
		a.Trim()

		assert.Equal(t, before, a.String())
		assert.True(t, a.IsInitial(s0))
		assert.True(t, a.IsFinal(s0))
	})

	t.Run("finalSingletonWithoutSelfLoopRemoved", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		s1 := a.State("s1")
		a.SetInitial(s0, true)
		a.SetFinal(s1, true)
		a.AddTransition(s0, sym(a, "p"), s1)

		a.Trim()

		assert.False(t, a.IsInitial(s0))
		assert.False(t, a.IsFinal(s1))
		assert.Empty(t, a.Transitions(s0))
		assert.Equal(t, uint(0), a.InitialStates().Count())
	})

	t.Run("transitStateRetained", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		s1 := a.State("s1")
		a.SetInitial(s0, true)
		a.SetFinal(s1, true)
		a.AddTransition(s0, sym(a, "p"), s1)
		a.AddTransition(s1, sym(a, "q"), s1)

		a.Trim()

		assert.True(t, a.IsInitial(s0))
		assert.True(t, a.IsFinal(s1))
		assert.Len(t, a.Transitions(s0), 1)
		assert.Len(t, a.Transitions(s1), 1)
	})

	t.Run("deadBranchPruned", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		s1 := a.State("s1")
		s2 := a.State("s2")
		a.SetInitial(s0, true)
		a.SetFinal(s1, true)
		a.AddTransition(s0, sym(a, "p"), s1)
		a.AddTransition(s1, sym(a, "p"), s1)
		a.AddTransition(s0, sym(a, "r"), s2)

		a.Trim()

		// the branch into the dead end disappears with its symbol
		assert.Len(t, a.Transitions(s0), 1)
		assert.Empty(t, a.Transitions(s2))
		assert.True(t, a.IsFinal(s1))
	})

	t.Run("sharedSymbolShrinksToGoodDestinations", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		s1 := a.State("s1")
		s2 := a.State("s2")
		a.SetInitial(s0, true)
		a.SetFinal(s1, true)
		p := sym(a, "p")
		a.AddTransition(s0, p, s1)
		a.AddTransition(s0, p, s2)
		a.AddTransition(s1, p, s1)

		a.Trim()

		dsts := a.Transitions(s0)[p]
		assert.True(t, dsts.Test(uint(s1)))
		assert.False(t, dsts.Test(uint(s2)))
	})

	t.Run("unreachableAcceptingCycleRemoved", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		s1 := a.State("s1")
		a.SetInitial(s0, true)
		a.AddTransition(s0, sym(a, "p"), s0)
		// s1 has an accepting cycle but no path from any initial state
		a.SetFinal(s1, true)
		a.AddTransition(s1, sym(a, "q"), s1)

		a.Trim()

		assert.False(t, a.IsInitial(s0))
		assert.False(t, a.IsFinal(s1))
		assert.Empty(t, a.Transitions(s0))
		assert.Empty(t, a.Transitions(s1))
	})

	t.Run("noFinalStatesTrimsToEmpty", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		s1 := a.State("s1")
		a.SetInitial(s0, true)
		a.AddTransition(s0, sym(a, "p"), s1)
		a.AddTransition(s1, sym(a, "p"), s0)

		a.Trim()

		assert.Equal(t, uint(0), a.InitialStates().Count())
		assert.Empty(t, a.Transitions(s0))
		assert.Empty(t, a.Transitions(s1))
	})

	t.Run("noInitialStatesTrimsToEmpty", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		a.SetFinal(s0, true)
		a.AddTransition(s0, sym(a, "p"), s0)

		a.Trim()

		assert.Equal(t, uint(0), a.FinalStates().Count())
		assert.Empty(t, a.Transitions(s0))
	})

	t.Run("emptyAutomaton", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		a.Trim()
		assert.Equal(t, 0, a.NumStates())
	})

	t.Run("idempotent", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		s1 := a.State("s1")
		s2 := a.State("s2")
		s3 := a.State("s3")
		a.SetInitial(s0, true)
		a.SetFinal(s2, true)
		a.AddTransition(s0, sym(a, "p"), s1)
		a.AddTransition(s1, sym(a, "q"), s2)
		a.AddTransition(s2, sym(a, "p"), s1)
		a.AddTransition(s1, sym(a, "r"), s3)

		a.Trim()
		once := a.String()
		a.Trim()

		assert.Equal(t, once, a.String())
	})
}

func TestTarjanSCCPartition(t *testing.T) {
	a := NewLabelledAutomaton(nil)
	s0 := a.State("s0")
	s1 := a.State("s1")
	s2 := a.State("s2")
	s3 := a.State("s3")
	a.State("orphan") // unreachable, must not appear in any SCC
	a.SetInitial(s0, true)
	p := sym(a, "p")
	a.AddTransition(s0, p, s1)
	a.AddTransition(s1, p, s2)
	a.AddTransition(s2, p, s0)
	a.AddTransition(s1, p, s3)
	a.AddTransition(s3, p, s3)

	root := a.NumStates()
	sccs := a.tarjanSCCs(root)

	seen := make(map[int]int)
	for _, scc := range sccs {
		for _, v := range scc {
			seen[v]++
		}
	}
	// reachable states plus the synthetic root, each in exactly one SCC
	assert.Len(t, seen, 5)
	for _, v := range []int{s0, s1, s2, s3, root} {
		assert.Equal(t, 1, seen[v], "state %d", v)
	}

	sizes := make(map[int]int)
	for _, scc := range sccs {
		sizes[len(scc)]++
	}
	assert.Equal(t, 1, sizes[3], "one three-state cycle")
	assert.Equal(t, 2, sizes[1], "self-loop state and synthetic root")
}
