package owlmon

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// litOracle judges fact axioms the way the real oracle judges axiom sets: a
// set is inconsistent iff some name occurs with both signs in the same
// scope. Over time, rigid names share one scope across all positions while
// the rest are scoped per position.
type litOracle struct{}

func (litOracle) IsConsistent(_ context.Context, axioms []Axiom) (bool, error) {
	return factsConsistent(axioms, make(map[string]bool))
}

func (litOracle) IsConsistentOverTime(_ context.Context, steps [][]Axiom, rigid []string) (bool, error) {
	rset := make(map[string]struct{}, len(rigid))
	for _, r := range rigid {
		rset[r] = struct{}{}
	}
	global := make(map[string]bool)
	for _, axioms := range steps {
		local := make(map[string]bool)
		for _, ax := range axioms {
			s := ax.String()
			if s == "true" {
				continue
			}
			neg := strings.HasPrefix(s, "!")
			name := strings.TrimPrefix(s, "!")
			scope := local
			if _, ok := rset[name]; ok {
				scope = global
			}
			if prev, seen := scope[name]; seen && prev != neg {
				return false, nil
			}
			scope[name] = neg
		}
	}
	return true, nil
}

func factsConsistent(axioms []Axiom, sign map[string]bool) (bool, error) {
	for _, ax := range axioms {
		s := ax.String()
		if s == "true" {
			continue
		}
		neg := strings.HasPrefix(s, "!")
		name := strings.TrimPrefix(s, "!")
		if prev, seen := sign[name]; seen && prev != neg {
			return false, nil
		}
		sign[name] = neg
	}
	return true, nil
}

type errOracle struct{ err error }

func (o errOracle) IsConsistent(context.Context, []Axiom) (bool, error) {
	return false, o.err
}

func (o errOracle) IsConsistentOverTime(context.Context, [][]Axiom, []string) (bool, error) {
	return false, o.err
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	compiler := EdgeListCompiler{
		"f": []Edge{
			{Source: "s0", Target: "s1", Label: []Literal{lit("p")}, SourceInitial: true, TargetFinal: true},
			{Source: "s0", Target: "s2", Label: []Literal{lit("q")}, SourceInitial: true, TargetFinal: true},
		},
	}

	t.Run("keepsOnlyConsistentEdges", func(t *testing.T) {
		f, err := NewTemporalFormula("f", testTranslation("p", "q"), nil)
		require.NoError(t, err)
		b := NewBuilder(compiler, litOracle{})

		a, err := b.Build(ctx, f, []Axiom{fact("!q")})
		require.NoError(t, err)

		// the q edge contradicts the global context and is dropped
		assert.Equal(t, 2, a.NumStates())
		assert.Equal(t, []string{"s0"}, a.StateNames(a.InitialStates()))
		assert.Equal(t, []string{"s1"}, a.StateNames(a.FinalStates()))
	})

	t.Run("unknownAtomFailsFast", func(t *testing.T) {
		f, err := NewTemporalFormula("f", testTranslation("p"), nil)
		require.NoError(t, err)
		b := NewBuilder(compiler, litOracle{})

		_, err = b.Build(ctx, f, nil)
		assert.ErrorIs(t, err, ErrUnknownSymbol)
	})

	t.Run("unknownAbstractionPropagates", func(t *testing.T) {
		f, err := NewTemporalFormula("missing", testTranslation("p"), nil)
		require.NoError(t, err)
		b := NewBuilder(compiler, litOracle{})

		_, err = b.Build(ctx, f, nil)
		assert.ErrorIs(t, err, ErrUnknownAbstraction)
	})

	t.Run("oracleFailurePropagates", func(t *testing.T) {
		f, err := NewTemporalFormula("f", testTranslation("p", "q"), nil)
		require.NoError(t, err)
		boom := assert.AnError
		b := NewBuilder(compiler, errOracle{err: boom})

		_, err = b.Build(ctx, f, nil)
		assert.ErrorIs(t, err, boom)
	})
}

func TestCompleteEdges(t *testing.T) {
	ctx := context.Background()

	t.Run("enumeratesFreeAtoms", func(t *testing.T) {
		f, err := NewTemporalFormula("f", testTranslation("p", "q"), []string{"p"})
		require.NoError(t, err)
		b := NewBuilder(nil, litOracle{})
		edges := []Edge{{Source: "s0", Target: "s1", Label: []Literal{lit("p")}, SourceInitial: true, TargetFinal: true}}

		completed, err := b.completeEdges(ctx, f, nil, edges)
		require.NoError(t, err)

		// q is free: both sign choices are consistent on their own
		require.Len(t, completed, 2)
		assert.Equal(t, []Literal{lit("p"), lit("q")}, completed[0].Label)
		assert.Equal(t, []Literal{lit("p"), lit("!q")}, completed[1].Label)
	})

	t.Run("dropsInconsistentCompletions", func(t *testing.T) {
		f, err := NewTemporalFormula("f", testTranslation("p", "q"), []string{"p"})
		require.NoError(t, err)
		b := NewBuilder(nil, litOracle{})
		edges := []Edge{{Source: "s0", Target: "s1", Label: []Literal{lit("p")}}}

		completed, err := b.completeEdges(ctx, f, []Axiom{fact("!q")}, edges)
		require.NoError(t, err)

		require.Len(t, completed, 1)
		assert.Equal(t, []Literal{lit("p"), lit("!q")}, completed[0].Label)
	})

	t.Run("fullLabelHasNoFreeAtoms", func(t *testing.T) {
		f, err := NewTemporalFormula("f", testTranslation("p", "q"), []string{"p"})
		require.NoError(t, err)
		b := NewBuilder(nil, litOracle{})
		edges := []Edge{{Source: "s0", Target: "s1", Label: []Literal{lit("p"), lit("!q")}}}

		completed, err := b.completeEdges(ctx, f, nil, edges)
		require.NoError(t, err)

		require.Len(t, completed, 1)
		assert.Equal(t, edges[0].Label, completed[0].Label)
	})
}

func TestRespectRigidNames(t *testing.T) {
	ctx := context.Background()

	t.Run("historiesCollapseAsSets", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		a.SetInitial(s0, true)
		a.SetFinal(s0, true)
		a.AddTransition(s0, sym(a, "p"), s0)
		a.AddTransition(s0, sym(a, "q"), s0)

		f, err := NewTemporalFormula("f", testTranslation("p", "q"), []string{"p"})
		require.NoError(t, err)
		b := NewBuilder(nil, litOracle{})

		prod, err := b.RespectRigidNames(ctx, a, f, nil)
		require.NoError(t, err)

		// reading p then q and q then p reach the same product state, so the
		// state count is the number of symbol subsets, not of paths
		assert.Equal(t, 4, prod.NumStates())
		assert.Equal(t, uint(1), prod.InitialStates().Count())
		assert.Equal(t, uint(4), prod.FinalStates().Count())
	})

	t.Run("rigidNamesActAsInvariants", func(t *testing.T) {
		build := func(rigid []string) int {
			a := NewLabelledAutomaton(nil)
			s0 := a.State("s0")
			a.SetInitial(s0, true)
			a.SetFinal(s0, true)
			a.AddTransition(s0, sym(a, "p"), s0)
			a.AddTransition(s0, sym(a, "!p"), s0)

			f, err := NewTemporalFormula("f", testTranslation("p"), rigid)
			require.NoError(t, err)
			prod, err := NewBuilder(nil, litOracle{}).RespectRigidNames(ctx, a, f, nil)
			require.NoError(t, err)
			return prod.NumStates()
		}

		// rigid p: a history holding both p and !p is rejected, so the
		// {p,!p} product states never appear
		assert.Equal(t, 3, build([]string{"p"}))
		// flexible p: the signs live at distinct time points and coexist
		assert.Equal(t, 4, build(nil))
	})

	t.Run("oracleFailurePropagates", func(t *testing.T) {
		a := NewLabelledAutomaton(nil)
		s0 := a.State("s0")
		a.SetInitial(s0, true)
		a.AddTransition(s0, sym(a, "p"), s0)

		f, err := NewTemporalFormula("f", testTranslation("p"), []string{"p"})
		require.NoError(t, err)
		boom := assert.AnError

		_, err = NewBuilder(nil, errOracle{err: boom}).RespectRigidNames(ctx, a, f, nil)
		assert.ErrorIs(t, err, boom)
	})
}
