package owlmon

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Edge is one labelled transition as emitted by the external LTL-to-automaton
// compiler, with initial/final tags for both endpoints.
type Edge struct {
	Source string
	Target string
	Label  []Literal

	SourceInitial bool
	SourceFinal   bool
	TargetInitial bool
	TargetFinal   bool
}

// Compiler translates a propositional LTL abstraction into a labelled
// transition system. Implemented externally; failures propagate unchanged.
type Compiler interface {
	Compile(ctx context.Context, abstraction string) ([]Edge, error)
}

// Oracle answers joint-satisfiability questions about axiom sets. The
// single-set shape judges one time point; the sequence shape judges an
// ordered run of time points where non-rigid names are stamped per position
// and rigid names are shared across all positions.
type Oracle interface {
	IsConsistent(ctx context.Context, axioms []Axiom) (bool, error)
	IsConsistentOverTime(ctx context.Context, steps [][]Axiom, rigid []string) (bool, error)
}

// EdgeListCompiler is a Compiler backed by pre-compiled edge lists keyed by
// propositional abstraction. It is the serialized form of the external LTL
// compiler's output.
type EdgeListCompiler map[string][]Edge

func (c EdgeListCompiler) Compile(_ context.Context, abstraction string) ([]Edge, error) {
	edges, ok := c[abstraction]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAbstraction, abstraction)
	}
	return edges, nil
}

// Builder constructs LabelledAutomatons from compiler output, keeping an
// edge iff the oracle reports its translated axiom set satisfiable.
type Builder struct {
	compiler Compiler
	oracle   Oracle
	logger   *slog.Logger
	workers  int
}

type BuilderOption func(*Builder)

// WithLogger installs a structured logger; the default is slog.Default().
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithWorkers bounds the number of concurrent oracle calls during edge
// filtering; the default is GOMAXPROCS.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

func NewBuilder(compiler Compiler, oracle Oracle, opts ...BuilderOption) *Builder {
	b := &Builder{
		compiler: compiler,
		oracle:   oracle,
		logger:   slog.Default(),
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build compiles the formula's propositional abstraction and keeps each edge
// iff its translated axiom set, unioned with the global context, is
// satisfiable. With rigid names declared the edge set is first completed
// into a total transition function and the rigid-name product is built on
// top; without them the partial transition function is used directly.
func (b *Builder) Build(ctx context.Context, f *TemporalFormula, global []Axiom) (*LabelledAutomaton, error) {
	edges, err := b.compiler.Compile(ctx, f.Abstraction())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", f.Abstraction(), err)
	}

	var kept []Edge
	if f.HasRigidNames() {
		kept, err = b.completeEdges(ctx, f, global, edges)
	} else {
		kept, err = b.filterEdges(ctx, f, global, edges)
	}
	if err != nil {
		return nil, err
	}
	b.logger.Debug("built automaton",
		"abstraction", f.Abstraction(),
		"edges_in", len(edges),
		"edges_kept", len(kept))

	a := assembleAutomaton(kept)
	if f.HasRigidNames() {
		return b.RespectRigidNames(ctx, a, f, global)
	}
	return a, nil
}

// filterEdges checks every edge's axiom set against the oracle, in parallel
// over a bounded worker pool. Results are merged back by edge index, so the
// outcome does not depend on completion order.
func (b *Builder) filterEdges(ctx context.Context, f *TemporalFormula, global []Axiom, edges []Edge) ([]Edge, error) {
	axiomSets := make([][]Axiom, len(edges))
	for i, e := range edges {
		axioms, err := translateLabel(f, e.Label, global)
		if err != nil {
			return nil, err
		}
		axiomSets[i] = axioms
	}

	keep := make([]bool, len(edges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range edges {
		i := i
		g.Go(func() error {
			ok, err := b.oracle.IsConsistent(gctx, axiomSets[i])
			if err != nil {
				return fmt.Errorf("check edge %s->%s: %w", edges[i].Source, edges[i].Target, err)
			}
			keep[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]Edge, 0, len(edges))
	for i, e := range edges {
		if keep[i] {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

// completeEdges turns the compiler's partial transition function into a
// total one: every edge is expanded into one candidate per sign-permutation
// over the translation-map atoms its label leaves free, and each candidate
// is kept iff its full axiom set is satisfiable.
func (b *Builder) completeEdges(ctx context.Context, f *TemporalFormula, global []Axiom, edges []Edge) ([]Edge, error) {
	type candidate struct {
		edge   int
		label  []Literal
		axioms []Axiom
	}

	atoms := f.Atoms()
	cands := make([]candidate, 0, len(edges))
	for ei, e := range edges {
		fixed := make(map[string]struct{}, len(e.Label))
		for _, l := range e.Label {
			fixed[l.Atom] = struct{}{}
		}
		free := make([]string, 0, len(atoms))
		for _, atom := range atoms {
			if _, ok := fixed[atom]; !ok {
				free = append(free, atom)
			}
		}

		for mask := 0; mask < 1<<len(free); mask++ {
			label := make([]Literal, 0, len(e.Label)+len(free))
			label = append(label, e.Label...)
			for bit, atom := range free {
				label = append(label, Literal{Atom: atom, Negated: mask&(1<<bit) != 0})
			}
			axioms, err := translateLabel(f, label, global)
			if err != nil {
				return nil, err
			}
			cands = append(cands, candidate{edge: ei, label: label, axioms: axioms})
		}
	}

	keep := make([]bool, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range cands {
		i := i
		g.Go(func() error {
			ok, err := b.oracle.IsConsistent(gctx, cands[i].axioms)
			if err != nil {
				e := edges[cands[i].edge]
				return fmt.Errorf("check completion of edge %s->%s: %w", e.Source, e.Target, err)
			}
			keep[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	completed := make([]Edge, 0, len(edges))
	for i, c := range cands {
		if !keep[i] {
			continue
		}
		e := edges[c.edge]
		e.Label = c.label
		completed = append(completed, e)
	}
	return completed, nil
}

// RespectRigidNames builds the product automaton whose states are pairs of
// an original state and the set of symbols read so far. An edge enters the
// product iff the oracle finds the candidate history satisfiable as an
// ordered sequence of per-time-point axiom sets, with the formula's rigid
// names shared across positions. Visited pairs are memoized under the
// canonical history encoding, which both guarantees termination and
// collapses syntactically distinct histories with the same content.
func (b *Builder) RespectRigidNames(ctx context.Context, orig *LabelledAutomaton, f *TemporalFormula, global []Axiom) (*LabelledAutomaton, error) {
	prod := NewLabelledAutomaton(orig.Alphabet())
	bound := productBound(orig)
	rigid := f.RigidNames()

	memo := make(map[string]int)
	histSat := make(map[string]bool)
	prodOrig := make([]int, 0)
	prodHist := make([][]Symbol, 0)

	intern := func(origState int, hist []Symbol) (id int, created bool) {
		key := strconv.Itoa(origState) + "|" + historyKey(hist)
		if id, ok := memo[key]; ok {
			return id, false
		}
		name := orig.Name(origState) + "|{" + historyKey(hist) + "}"
		id = prod.State(name)
		memo[key] = id
		prodOrig = append(prodOrig, origState)
		prodHist = append(prodHist, hist)
		prod.SetFinal(id, orig.IsFinal(origState))
		return id, true
	}

	stack := make([]int, 0)
	init := orig.InitialStates()
	for s, ok := init.NextSet(0); ok; s, ok = init.NextSet(s + 1) {
		id, _ := intern(int(s), nil)
		prod.SetInitial(id, true)
		stack = append(stack, id)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s := prodOrig[p]

		for _, sym := range orig.Symbols(s) {
			hist := extendHistory(prodHist[p], sym)
			hk := historyKey(hist)
			sat, known := histSat[hk]
			if !known {
				steps, err := historySteps(f, orig.Alphabet(), global, hist)
				if err != nil {
					return nil, err
				}
				sat, err = b.oracle.IsConsistentOverTime(ctx, steps, rigid)
				if err != nil {
					return nil, fmt.Errorf("check history {%s}: %w", hk, err)
				}
				histSat[hk] = sat
			}
			if !sat {
				continue
			}

			dsts := orig.Transitions(s)[sym]
			for d, ok := dsts.NextSet(0); ok; d, ok = dsts.NextSet(d + 1) {
				q, created := intern(int(d), hist)
				if prod.NumStates() > bound {
					return nil, fmt.Errorf("%w: %d states over %d original states", ErrProductTooLarge, prod.NumStates(), orig.NumStates())
				}
				prod.AddTransition(p, sym, q)
				if created {
					stack = append(stack, q)
				}
			}
		}
	}

	b.logger.Debug("built rigid-name product",
		"original_states", orig.NumStates(),
		"product_states", prod.NumStates(),
		"histories_checked", len(histSat))
	return prod, nil
}

func assembleAutomaton(edges []Edge) *LabelledAutomaton {
	a := NewLabelledAutomaton(nil)
	for _, e := range edges {
		src := a.State(e.Source)
		dst := a.State(e.Target)
		if e.SourceInitial {
			a.SetInitial(src, true)
		}
		if e.SourceFinal {
			a.SetFinal(src, true)
		}
		if e.TargetInitial {
			a.SetInitial(dst, true)
		}
		if e.TargetFinal {
			a.SetFinal(dst, true)
		}
		a.AddTransition(src, a.alphabet.Intern(e.Label), dst)
	}
	return a
}

// translateLabel resolves a label's literals to axioms and appends the
// global context.
func translateLabel(f *TemporalFormula, label []Literal, global []Axiom) ([]Axiom, error) {
	axioms := make([]Axiom, 0, len(label)+len(global))
	for _, lit := range label {
		ax, err := f.AxiomFor(lit)
		if err != nil {
			return nil, err
		}
		axioms = append(axioms, ax)
	}
	return append(axioms, global...), nil
}

// extendHistory returns hist ∪ {sym}, keeping the ascending-id canonical
// order. The input slice is never modified.
func extendHistory(hist []Symbol, sym Symbol) []Symbol {
	i := 0
	for i < len(hist) && hist[i] < sym {
		i++
	}
	if i < len(hist) && hist[i] == sym {
		return hist
	}
	out := make([]Symbol, 0, len(hist)+1)
	out = append(out, hist[:i]...)
	out = append(out, sym)
	return append(out, hist[i:]...)
}

// historyKey is the canonical structural encoding of a history; equal
// contents encode equally regardless of how the history was built.
func historyKey(hist []Symbol) string {
	var sb strings.Builder
	for i, sym := range hist {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(sym)))
	}
	return sb.String()
}

// historySteps interprets a history as an ordered sequence of per-time-point
// axiom sets, with the global context present at every position.
func historySteps(f *TemporalFormula, ab *Alphabet, global []Axiom, hist []Symbol) ([][]Axiom, error) {
	steps := make([][]Axiom, 0, len(hist))
	for _, sym := range hist {
		axioms, err := translateLabel(f, ab.Literals(sym), global)
		if err != nil {
			return nil, err
		}
		steps = append(steps, axioms)
	}
	return steps, nil
}

// productBound is the structural ceiling on product size: one state per
// (original state, symbol subset) pair. Exceeding it means memoization broke.
func productBound(a *LabelledAutomaton) int {
	syms := make(map[Symbol]struct{})
	for s := 0; s < a.NumStates(); s++ {
		for sym := range a.Transitions(s) {
			syms[sym] = struct{}{}
		}
	}
	if len(syms) >= 62 {
		return math.MaxInt
	}
	bound := a.NumStates() << len(syms)
	if bound < a.NumStates() {
		return math.MaxInt
	}
	return bound
}
