package owlmon

import (
	"sort"
	"strings"
)

// Literal is a single signed propositional atom inside a transition label.
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

// ParseLiteral reads a literal in the textual form produced by String,
// i.e. an atom name with an optional leading '!'.
func ParseLiteral(s string) Literal {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "!") {
		return Literal{Atom: strings.TrimSpace(s[1:]), Negated: true}
	}
	return Literal{Atom: s}
}

// Symbol identifies one interned transition label (a set of signed literals).
// Symbols are only meaningful relative to the Alphabet that interned them;
// two symbols from the same alphabet are equal iff their literal sets are.
type Symbol int

// NoSymbol is returned by lookups that find nothing.
const NoSymbol Symbol = -1

// Alphabet interns transition labels. Each distinct set of signed literals
// gets a dense int id, so downstream code compares and hashes labels as
// plain ints. Interning canonicalizes the literal set first: sorted by atom
// name then by sign, duplicates removed.
type Alphabet struct {
	ids      map[string]Symbol
	literals [][]Literal
	keys     []string
}

func NewAlphabet() *Alphabet {
	return &Alphabet{ids: make(map[string]Symbol)}
}

// Intern returns the symbol for the given literal set, creating it on first
// sight. The input slice is not retained.
func (ab *Alphabet) Intern(lits []Literal) Symbol {
	canon := canonicalLiterals(lits)
	key := literalsKey(canon)
	if sym, ok := ab.ids[key]; ok {
		return sym
	}
	sym := Symbol(len(ab.literals))
	ab.ids[key] = sym
	ab.literals = append(ab.literals, canon)
	ab.keys = append(ab.keys, key)
	return sym
}

// Lookup returns the symbol for a literal set without creating it.
func (ab *Alphabet) Lookup(lits []Literal) Symbol {
	if sym, ok := ab.ids[literalsKey(canonicalLiterals(lits))]; ok {
		return sym
	}
	return NoSymbol
}

// Literals returns the canonical literal set of an interned symbol. Callers
// must not modify the returned slice.
func (ab *Alphabet) Literals(sym Symbol) []Literal {
	return ab.literals[sym]
}

// Key returns the canonical text encoding of an interned symbol.
func (ab *Alphabet) Key(sym Symbol) string {
	return ab.keys[sym]
}

// Size returns the number of distinct symbols interned so far.
func (ab *Alphabet) Size() int {
	return len(ab.literals)
}

func canonicalLiterals(lits []Literal) []Literal {
	canon := make([]Literal, len(lits))
	copy(canon, lits)
	sort.Slice(canon, func(i, j int) bool {
		if canon[i].Atom != canon[j].Atom {
			return canon[i].Atom < canon[j].Atom
		}
		return !canon[i].Negated && canon[j].Negated
	})
	out := canon[:0]
	for i, l := range canon {
		if i > 0 && l == canon[i-1] {
			continue
		}
		out = append(out, l)
	}
	return out
}

func literalsKey(canon []Literal) string {
	var sb strings.Builder
	for i, l := range canon {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(l.String())
	}
	return sb.String()
}
