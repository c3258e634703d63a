package owlmon

import (
	"fmt"
	"sort"
	"strings"
)

// Axiom is one logical statement about an observation. The core never looks
// inside an axiom; it only hands sets of them to the Oracle. String is the
// rendering used in logs and diagnostics.
type Axiom interface {
	String() string
}

// AnyKey is the reserved translation-map entry for the automaton-wide
// wildcard label. It must map to a vacuously true axiom.
const AnyKey = "any"

// TranslationMap maps atom names to axioms. The logical complement of each
// atom is stored under the '!'-prefixed name; the AnyKey entry is mandatory.
type TranslationMap map[string]Axiom

// TemporalFormula is an immutable LTL property: the propositional
// abstraction handed to the external compiler, the translation from
// propositional atoms to axioms, and the set of rigid (time-invariant)
// names. Combinators construct new formulas; a formula is never mutated
// after construction, so translation maps are shared by reference.
type TemporalFormula struct {
	abstraction string
	translation TranslationMap
	rigid       map[string]struct{}
}

// NewTemporalFormula builds a formula. The translation map must carry the
// reserved AnyKey entry.
func NewTemporalFormula(abstraction string, translation TranslationMap, rigid []string) (*TemporalFormula, error) {
	if _, ok := translation[AnyKey]; !ok {
		return nil, ErrMissingAnyEntry
	}
	rset := make(map[string]struct{}, len(rigid))
	for _, r := range rigid {
		rset[r] = struct{}{}
	}
	return &TemporalFormula{
		abstraction: abstraction,
		translation: translation,
		rigid:       rset,
	}, nil
}

// Abstraction returns the propositional abstraction string.
func (f *TemporalFormula) Abstraction() string {
	return f.abstraction
}

// AxiomFor resolves one signed literal against the translation map. A
// literal whose atom (or '!'-complement) is absent is a data error and is
// reported, not dropped: silently dropping a transition would unsoundly
// shrink the automaton's language.
func (f *TemporalFormula) AxiomFor(lit Literal) (Axiom, error) {
	key := lit.Atom
	if lit.Negated {
		key = "!" + lit.Atom
	}
	ax, ok := f.translation[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, key)
	}
	return ax, nil
}

// Atoms returns the un-negated atom names of the translation map in sorted
// order, excluding the wildcard entry.
func (f *TemporalFormula) Atoms() []string {
	atoms := make([]string, 0, len(f.translation)/2)
	for k := range f.translation {
		if k == AnyKey || strings.HasPrefix(k, "!") {
			continue
		}
		atoms = append(atoms, k)
	}
	sort.Strings(atoms)
	return atoms
}

// Translation returns a copy of the translation map.
func (f *TemporalFormula) Translation() TranslationMap {
	out := make(TranslationMap, len(f.translation))
	for k, v := range f.translation {
		out[k] = v
	}
	return out
}

// RigidNames returns the rigid names in sorted order.
func (f *TemporalFormula) RigidNames() []string {
	names := make([]string, 0, len(f.rigid))
	for r := range f.rigid {
		names = append(names, r)
	}
	sort.Strings(names)
	return names
}

// HasRigidNames reports whether any name is declared rigid.
func (f *TemporalFormula) HasRigidNames() bool {
	return len(f.rigid) > 0
}

// Negation returns the negated formula. Translation map and rigid names are
// shared with the receiver.
func (f *TemporalFormula) Negation() *TemporalFormula {
	return &TemporalFormula{
		abstraction: "!(" + f.abstraction + ")",
		translation: f.translation,
		rigid:       f.rigid,
	}
}

// Conjunction returns the conjunction of two formulas. Translation maps are
// merged with the argument winning on key collisions; rigid-name sets are
// unioned.
func (f *TemporalFormula) Conjunction(g *TemporalFormula) *TemporalFormula {
	translation := make(TranslationMap, len(f.translation)+len(g.translation))
	for k, v := range f.translation {
		translation[k] = v
	}
	for k, v := range g.translation {
		translation[k] = v
	}
	rigid := make(map[string]struct{}, len(f.rigid)+len(g.rigid))
	for r := range f.rigid {
		rigid[r] = struct{}{}
	}
	for r := range g.rigid {
		rigid[r] = struct{}{}
	}
	return &TemporalFormula{
		abstraction: "(" + f.abstraction + ") && (" + g.abstraction + ")",
		translation: translation,
		rigid:       rigid,
	}
}
