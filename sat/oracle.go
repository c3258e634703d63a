// Package sat provides a propositional satisfiability oracle backed by the
// gini SAT solver. Axioms are CNF clauses over named atoms; the
// multi-timestep call shape stamps non-rigid atoms per position while rigid
// atoms share one variable across all positions, which is what makes rigid
// names behave as time invariants.
package sat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	owlmon "github.com/mzq42/OWLMonTool"
)

var (
	// ErrUnsupportedAxiom marks an axiom of a concrete type this oracle
	// cannot interpret.
	ErrUnsupportedAxiom = errors.New("axiom type not supported by the propositional oracle")

	// ErrIndeterminate marks a solver run that finished without a verdict.
	ErrIndeterminate = errors.New("solver returned an indeterminate result")
)

// Literal is a signed propositional atom.
type Literal struct {
	Atom    string
	Negated bool
}

func (l Literal) String() string {
	if l.Negated {
		return "!" + l.Atom
	}
	return l.Atom
}

// Clause is a disjunction of literals. The empty clause is unsatisfiable.
type Clause []Literal

func (c Clause) String() string {
	if len(c) == 0 {
		return "false"
	}
	parts := make([]string, len(c))
	for i, l := range c {
		parts[i] = l.String()
	}
	return strings.Join(parts, " | ")
}

// ParseClause reads a clause in the textual form produced by String.
func ParseClause(s string) Clause {
	s = strings.TrimSpace(s)
	if s == "" || s == "false" {
		return Clause{}
	}
	parts := strings.Split(s, "|")
	c := make(Clause, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "!") {
			c = append(c, Literal{Atom: strings.TrimSpace(p[1:]), Negated: true})
		} else {
			c = append(c, Literal{Atom: p})
		}
	}
	return c
}

// Verum is the vacuously true axiom, used for the reserved wildcard entry of
// a translation map.
type Verum struct{}

func (Verum) String() string { return "true" }

var (
	_ owlmon.Axiom = Clause{}
	_ owlmon.Axiom = Verum{}
)

// Oracle is a stateless satisfiability oracle over clause axioms. Each call
// builds a fresh solver, so the oracle is safe for concurrent use.
type Oracle struct{}

func NewOracle() *Oracle {
	return &Oracle{}
}

// IsConsistent reports whether a single axiom set is jointly satisfiable.
func (o *Oracle) IsConsistent(ctx context.Context, axioms []owlmon.Axiom) (bool, error) {
	return o.solve(ctx, [][]owlmon.Axiom{axioms}, nil)
}

// IsConsistentOverTime reports whether an ordered sequence of per-time-point
// axiom sets is jointly satisfiable when the given names are rigid.
func (o *Oracle) IsConsistentOverTime(ctx context.Context, steps [][]owlmon.Axiom, rigid []string) (bool, error) {
	return o.solve(ctx, steps, rigid)
}

func (o *Oracle) solve(ctx context.Context, steps [][]owlmon.Axiom, rigid []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	rigidSet := make(map[string]struct{}, len(rigid))
	for _, r := range rigid {
		rigidSet[r] = struct{}{}
	}

	g := gini.New()
	vars := make(map[string]z.Var)
	for t, axioms := range steps {
		for _, ax := range axioms {
			switch ax := ax.(type) {
			case Verum:
				// vacuously true, contributes nothing
			case Clause:
				for _, lit := range ax {
					v := varFor(vars, stamp(lit.Atom, t, rigidSet))
					if lit.Negated {
						g.Add(v.Neg())
					} else {
						g.Add(v.Pos())
					}
				}
				g.Add(z.LitNull)
			default:
				return false, fmt.Errorf("%w: %T", ErrUnsupportedAxiom, ax)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	switch g.Solve() {
	case 1:
		return true, nil
	case -1:
		return false, nil
	default:
		return false, ErrIndeterminate
	}
}

// stamp gives non-rigid atoms a distinct variable per time point; rigid
// atoms keep one variable for the whole sequence. A rigid name matches an
// atom either exactly or as its predicate symbol, so declaring "Broken"
// rigid covers "Broken(system)".
func stamp(atom string, t int, rigid map[string]struct{}) string {
	if _, ok := rigid[atom]; ok {
		return atom
	}
	if i := strings.IndexByte(atom, '('); i > 0 {
		if _, ok := rigid[atom[:i]]; ok {
			return atom
		}
	}
	return atom + "@" + strconv.Itoa(t)
}

func varFor(vars map[string]z.Var, key string) z.Var {
	if v, ok := vars[key]; ok {
		return v
	}
	v := z.Var(len(vars) + 1)
	vars[key] = v
	return v
}
