package owlmon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// LabelledAutomaton is a nondeterministic automaton over interned symbols.
// States are dense ints created via State; initial and final marks live in
// bitsets; the transition relation is an adjacency list per state, keyed by
// symbol id, with destinations held in bitsets. The relation only ever grows
// through AddTransition; the single removal primitive is Trim.
type LabelledAutomaton struct {
	alphabet *Alphabet

	names []string
	index map[string]int

	initial *bitset.BitSet
	final   *bitset.BitSet

	delta []map[Symbol]*bitset.BitSet
}

// NewLabelledAutomaton creates an empty automaton. A nil alphabet allocates
// a fresh one; passing an existing alphabet lets several automatons share
// one symbol table (the formula automaton and its negation counterpart do).
func NewLabelledAutomaton(alphabet *Alphabet) *LabelledAutomaton {
	if alphabet == nil {
		alphabet = NewAlphabet()
	}
	return &LabelledAutomaton{
		alphabet: alphabet,
		index:    make(map[string]int),
		initial:  bitset.New(2),
		final:    bitset.New(2),
	}
}

func (a *LabelledAutomaton) Alphabet() *Alphabet {
	return a.alphabet
}

// State returns the dense index for the named state, creating it on first
// sight.
func (a *LabelledAutomaton) State(name string) int {
	if s, ok := a.index[name]; ok {
		return s
	}
	s := len(a.names)
	a.index[name] = s
	a.names = append(a.names, name)
	a.delta = append(a.delta, nil)
	return s
}

// NumStates returns how many states this automaton has.
func (a *LabelledAutomaton) NumStates() int {
	return len(a.names)
}

// Name returns the external identifier of a state.
func (a *LabelledAutomaton) Name(state int) string {
	return a.names[state]
}

func (a *LabelledAutomaton) SetInitial(state int, v bool) {
	a.initial.SetTo(uint(state), v)
}

func (a *LabelledAutomaton) SetFinal(state int, v bool) {
	a.final.SetTo(uint(state), v)
}

func (a *LabelledAutomaton) IsInitial(state int) bool {
	return a.initial.Test(uint(state))
}

func (a *LabelledAutomaton) IsFinal(state int) bool {
	return a.final.Test(uint(state))
}

// InitialStates returns a copy of the initial-state set.
func (a *LabelledAutomaton) InitialStates() *bitset.BitSet {
	return a.initial.Clone()
}

// FinalStates returns a copy of the final-state set.
func (a *LabelledAutomaton) FinalStates() *bitset.BitSet {
	return a.final.Clone()
}

// AddTransition inserts dst into the destination set of (src, sym), creating
// intermediate entries as needed.
func (a *LabelledAutomaton) AddTransition(src int, sym Symbol, dst int) {
	if a.delta[src] == nil {
		a.delta[src] = make(map[Symbol]*bitset.BitSet)
	}
	dsts, ok := a.delta[src][sym]
	if !ok {
		dsts = bitset.New(2)
		a.delta[src][sym] = dsts
	}
	dsts.Set(uint(dst))
}

// Transitions returns the outgoing relation of one state. The returned map
// is the automaton's own storage; callers must treat it as read-only. A nil
// map means the state has no outgoing transitions.
func (a *LabelledAutomaton) Transitions(src int) map[Symbol]*bitset.BitSet {
	return a.delta[src]
}

// Symbols returns the outgoing symbol ids of a state in ascending order.
func (a *LabelledAutomaton) Symbols(src int) []Symbol {
	if len(a.delta[src]) == 0 {
		return nil
	}
	syms := make([]Symbol, 0, len(a.delta[src]))
	for sym := range a.delta[src] {
		syms = append(syms, sym)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
	return syms
}

// StateNames renders a state set as its sorted external identifiers.
func (a *LabelledAutomaton) StateNames(set *bitset.BitSet) []string {
	names := make([]string, 0, set.Count())
	for s, ok := set.NextSet(0); ok; s, ok = set.NextSet(s + 1) {
		names = append(names, a.names[s])
	}
	sort.Strings(names)
	return names
}

// String renders the automaton in a canonical one-line-per-fact form, sorted,
// so that two automatons with equal structure render identically.
func (a *LabelledAutomaton) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "initial: %s\n", strings.Join(a.StateNames(a.initial), " "))
	fmt.Fprintf(&sb, "final: %s\n", strings.Join(a.StateNames(a.final), " "))

	lines := make([]string, 0)
	for src := range a.delta {
		for _, sym := range a.Symbols(src) {
			for _, dst := range a.StateNames(a.delta[src][sym]) {
				lines = append(lines, fmt.Sprintf("%s --{%s}--> %s", a.names[src], a.alphabet.Key(sym), dst))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}
